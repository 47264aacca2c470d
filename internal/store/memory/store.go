package memory

import (
	"context"
	"sort"
	"sync"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

// Store keeps tokens in process memory. It is the default backend when no
// DSN is configured and the substrate for engine tests.
type Store struct {
	mu           sync.RWMutex
	tokens       map[string]models.QueueToken
	byDoctorDate map[string][]string
	byPatient    map[string][]string
	sequences    map[string]int
}

func NewStore() *Store {
	return &Store{
		tokens:       make(map[string]models.QueueToken),
		byDoctorDate: make(map[string][]string),
		byPatient:    make(map[string][]string),
		sequences:    make(map[string]int),
	}
}

func partitionKey(doctorID, date string) string {
	return doctorID + "|" + date
}

func (s *Store) Put(ctx context.Context, token models.QueueToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.ID]; !exists {
		key := partitionKey(token.DoctorID, token.Date)
		s.byDoctorDate[key] = append(s.byDoctorDate[key], token.ID)
		s.byPatient[token.PatientID] = append(s.byPatient[token.PatientID], token.ID)
	}
	s.tokens[token.ID] = token
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (models.QueueToken, error) {
	if err := ctx.Err(); err != nil {
		return models.QueueToken{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[id]
	if !ok {
		return models.QueueToken{}, store.ErrTokenNotFound
	}
	return token, nil
}

func (s *Store) ListByDoctorDate(ctx context.Context, doctorID, date string) ([]models.QueueToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byDoctorDate[partitionKey(doctorID, date)]
	tokens := make([]models.QueueToken, 0, len(ids))
	for _, id := range ids {
		tokens = append(tokens, s.tokens[id])
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].TokenNumber < tokens[j].TokenNumber })
	return tokens, nil
}

func (s *Store) ListByDoctorDateStatus(ctx context.Context, doctorID, date string, status models.Status) ([]models.QueueToken, error) {
	tokens, err := s.ListByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	filtered := tokens[:0]
	for _, token := range tokens {
		if token.Status == status {
			filtered = append(filtered, token)
		}
	}
	return filtered, nil
}

func (s *Store) FindActiveByPatientDoctorDate(ctx context.Context, patientID, doctorID, date string) (models.QueueToken, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.QueueToken{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.byPatient[patientID] {
		token := s.tokens[id]
		if token.DoctorID == doctorID && token.Date == date && token.Status == models.StatusWaiting {
			return token, true, nil
		}
	}
	return models.QueueToken{}, false, nil
}

func (s *Store) CountByDoctorDate(ctx context.Context, doctorID, date string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byDoctorDate[partitionKey(doctorID, date)]), nil
}

func (s *Store) NextTokenNumber(ctx context.Context, doctorID, date string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := partitionKey(doctorID, date)
	s.sequences[key]++
	return s.sequences[key], nil
}

func (s *Store) ListByPatient(ctx context.Context, patientID string) ([]models.QueueToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byPatient[patientID]
	tokens := make([]models.QueueToken, 0, len(ids))
	for _, id := range ids {
		tokens = append(tokens, s.tokens[id])
	}
	return tokens, nil
}
