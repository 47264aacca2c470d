package queue

import "sync"

// partitionLocks serializes mutating operations per (doctorID, date) while
// leaving independent partitions free to proceed in parallel.
type partitionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPartitionLocks() *partitionLocks {
	return &partitionLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *partitionLocks) lock(doctorID, date string) func() {
	key := doctorID + "|" + date

	p.mu.Lock()
	lock, ok := p.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[key] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
