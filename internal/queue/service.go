package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"

	"github.com/google/uuid"
)

const (
	defaultAvgConsultationMinutes = 15
	defaultStoreTimeout           = 2 * time.Second
)

// Publisher receives lifecycle events after a mutation has been persisted.
// Publishing is fire-and-forget; it must not block the caller.
type Publisher interface {
	Publish(event string, token models.QueueToken)
}

type IssueInput struct {
	PatientID     string
	DoctorID      string
	DepartmentID  string
	Date          string
	AppointmentID string
	Priority      string
}

// StatusSnapshot is the at-a-glance queue state for a (doctor, date).
type StatusSnapshot struct {
	DoctorID           string `json:"doctor_id"`
	Date               string `json:"date"`
	CurrentToken       int    `json:"current_token"`
	TotalWaiting       int    `json:"total_waiting"`
	AverageWaitMinutes int    `json:"average_wait_minutes"`
	LastServedToken    int    `json:"last_served_token"`
}

type Options struct {
	AvgConsultationMinutes int
	StoreTimeout           time.Duration
	Publisher              Publisher
	Now                    func() time.Time
}

// Service is the token queue engine. Mutating operations are serialized per
// (doctorID, date) partition; reads and independent partitions do not block
// each other.
type Service struct {
	store      store.TokenStore
	avgMinutes int
	timeout    time.Duration
	publisher  Publisher
	now        func() time.Time
	locks      *partitionLocks
}

func NewService(tokens store.TokenStore, options Options) *Service {
	avg := options.AvgConsultationMinutes
	if avg <= 0 {
		avg = defaultAvgConsultationMinutes
	}
	timeout := options.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      tokens,
		avgMinutes: avg,
		timeout:    timeout,
		publisher:  options.Publisher,
		now:        now,
		locks:      newPartitionLocks(),
	}
}

// Issue allocates a new WAITING token for the patient. At most one WAITING
// token may exist per (patient, doctor, date).
func (s *Service) Issue(ctx context.Context, input IssueInput) (models.QueueToken, error) {
	unlock := s.locks.lock(input.DoctorID, input.Date)
	defer unlock()

	_, found, err := s.findActive(ctx, input.PatientID, input.DoctorID, input.Date)
	if err != nil {
		return models.QueueToken{}, err
	}
	if found {
		return models.QueueToken{}, ErrDuplicateActiveToken
	}

	number, err := s.nextNumber(ctx, input.DoctorID, input.Date)
	if err != nil {
		return models.QueueToken{}, err
	}
	waiting, err := s.listWaiting(ctx, input.DoctorID, input.Date)
	if err != nil {
		return models.QueueToken{}, err
	}

	position := len(waiting) + 1
	wait := position * s.avgMinutes
	now := s.now()

	token := models.QueueToken{
		ID:                   uuid.NewString(),
		PatientID:            input.PatientID,
		DoctorID:             input.DoctorID,
		DepartmentID:         input.DepartmentID,
		TokenNumber:          number,
		Date:                 input.Date,
		IssueTime:            now,
		EstimatedTime:        now.Add(time.Duration(wait) * time.Minute),
		Status:               models.StatusWaiting,
		Position:             position,
		EstimatedWaitMinutes: wait,
		AppointmentID:        input.AppointmentID,
		Priority:             models.ParsePriority(input.Priority),
	}

	if err := s.put(ctx, token); err != nil {
		return models.QueueToken{}, err
	}

	log.Printf("issued token number=%d doctor=%s date=%s patient=%s", number, input.DoctorID, input.Date, input.PatientID)
	s.publish("token.issued", token)
	return token, nil
}

// GetToken returns a token by id, refreshing its position first when it is
// still WAITING.
func (s *Service) GetToken(ctx context.Context, id string) (models.QueueToken, error) {
	token, err := s.get(ctx, id)
	if err != nil {
		return models.QueueToken{}, err
	}
	if token.Status != models.StatusWaiting {
		return token, nil
	}

	unlock := s.locks.lock(token.DoctorID, token.Date)
	defer unlock()

	// Re-read under the partition lock; the token may have been dispatched
	// between the two reads.
	token, err = s.get(ctx, id)
	if err != nil {
		return models.QueueToken{}, err
	}
	if token.Status != models.StatusWaiting {
		return token, nil
	}
	return s.recompute(ctx, token)
}

// CallNext dispatches the next WAITING token for the partition: lowest
// priority rank first, then lowest token number.
func (s *Service) CallNext(ctx context.Context, doctorID, date string) (models.QueueToken, error) {
	unlock := s.locks.lock(doctorID, date)
	defer unlock()

	waiting, err := s.listWaiting(ctx, doctorID, date)
	if err != nil {
		return models.QueueToken{}, err
	}
	if len(waiting) == 0 {
		return models.QueueToken{}, ErrEmptyQueue
	}

	sort.Slice(waiting, func(i, j int) bool {
		if waiting[i].Priority.Rank() != waiting[j].Priority.Rank() {
			return waiting[i].Priority.Rank() < waiting[j].Priority.Rank()
		}
		return waiting[i].TokenNumber < waiting[j].TokenNumber
	})

	next := waiting[0]
	if !ValidTransition("call", next.Status) {
		return models.QueueToken{}, ErrInvalidTransition
	}

	now := s.now()
	next.Status = models.StatusCalled
	next.ActualCallTime = &now
	next.Position = 0

	if err := s.put(ctx, next); err != nil {
		return models.QueueToken{}, err
	}

	log.Printf("called token number=%d doctor=%s date=%s", next.TokenNumber, doctorID, date)
	s.publish("token.called", next)
	return next, nil
}

// Start moves a CALLED token into consultation.
func (s *Service) Start(ctx context.Context, id string) (models.QueueToken, error) {
	return s.transition(ctx, id, "start", models.StatusInProgress, "token.started")
}

// Complete finishes an IN_PROGRESS consultation and recomputes positions for
// the tokens still waiting on the same partition.
func (s *Service) Complete(ctx context.Context, id string) (models.QueueToken, error) {
	token, err := s.transition(ctx, id, "complete", models.StatusCompleted, "token.completed")
	if err != nil {
		return models.QueueToken{}, err
	}
	if err := s.recomputeAll(ctx, token.DoctorID, token.Date); err != nil {
		log.Printf("recompute positions doctor=%s date=%s: %v", token.DoctorID, token.Date, err)
	}
	return token, nil
}

// Cancel withdraws a WAITING token. The waiting set shrank, so positions are
// recomputed the same way completion does it.
func (s *Service) Cancel(ctx context.Context, id string) (models.QueueToken, error) {
	token, err := s.transition(ctx, id, "cancel", models.StatusCanceled, "token.cancelled")
	if err != nil {
		return models.QueueToken{}, err
	}
	if err := s.recomputeAll(ctx, token.DoctorID, token.Date); err != nil {
		log.Printf("recompute positions doctor=%s date=%s: %v", token.DoctorID, token.Date, err)
	}
	return token, nil
}

// NoShow marks a CALLED token whose patient did not show up.
func (s *Service) NoShow(ctx context.Context, id string) (models.QueueToken, error) {
	return s.transition(ctx, id, "no_show", models.StatusNoShow, "token.no_show")
}

// Status derives the live snapshot for a (doctor, date).
func (s *Service) Status(ctx context.Context, doctorID, date string) (StatusSnapshot, error) {
	tokens, err := s.listAll(ctx, doctorID, date)
	if err != nil {
		return StatusSnapshot{}, err
	}

	snapshot := StatusSnapshot{DoctorID: doctorID, Date: date}
	for _, token := range tokens {
		switch token.Status {
		case models.StatusInProgress:
			if snapshot.CurrentToken == 0 {
				snapshot.CurrentToken = token.TokenNumber
			}
		case models.StatusWaiting:
			snapshot.TotalWaiting++
		case models.StatusCompleted:
			if token.TokenNumber > snapshot.LastServedToken {
				snapshot.LastServedToken = token.TokenNumber
			}
		}
	}
	snapshot.AverageWaitMinutes = snapshot.TotalWaiting * s.avgMinutes
	return snapshot, nil
}

// PatientTokens lists every token a patient holds, newest first.
func (s *Service) PatientTokens(ctx context.Context, patientID string) ([]models.QueueToken, error) {
	tokens, err := s.listByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].IssueTime.After(tokens[j].IssueTime) })
	return tokens, nil
}

func (s *Service) transition(ctx context.Context, id, action string, to models.Status, event string) (models.QueueToken, error) {
	token, err := s.get(ctx, id)
	if err != nil {
		return models.QueueToken{}, err
	}

	unlock := s.locks.lock(token.DoctorID, token.Date)
	defer unlock()

	token, err = s.get(ctx, id)
	if err != nil {
		return models.QueueToken{}, err
	}
	if !ValidTransition(action, token.Status) {
		return models.QueueToken{}, ErrInvalidTransition
	}

	token.Status = to
	token.Position = 0

	if err := s.put(ctx, token); err != nil {
		return models.QueueToken{}, err
	}
	s.publish(event, token)
	return token, nil
}

// recompute refreshes one WAITING token: rank among waiting tokens with a
// smaller number, wait time, and ETA. Caller holds the partition lock.
func (s *Service) recompute(ctx context.Context, token models.QueueToken) (models.QueueToken, error) {
	waiting, err := s.listWaiting(ctx, token.DoctorID, token.Date)
	if err != nil {
		return models.QueueToken{}, err
	}

	ahead := 0
	for _, other := range waiting {
		if other.TokenNumber < token.TokenNumber {
			ahead++
		}
	}

	token.Position = ahead + 1
	token.EstimatedWaitMinutes = token.Position * s.avgMinutes
	token.EstimatedTime = s.now().Add(time.Duration(token.EstimatedWaitMinutes) * time.Minute)

	if err := s.put(ctx, token); err != nil {
		return models.QueueToken{}, err
	}
	return token, nil
}

func (s *Service) recomputeAll(ctx context.Context, doctorID, date string) error {
	unlock := s.locks.lock(doctorID, date)
	defer unlock()

	waiting, err := s.listWaiting(ctx, doctorID, date)
	if err != nil {
		return err
	}
	for _, token := range waiting {
		if _, err := s.recompute(ctx, token); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) publish(event string, token models.QueueToken) {
	if s.publisher != nil {
		s.publisher.Publish(event, token)
	}
}

// Store access helpers: every call runs under a bounded timeout, and timeout
// or cancellation surfaces as ErrUnavailable so the transport can answer
// with a retryable status.

func (s *Service) get(ctx context.Context, id string) (models.QueueToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	token, err := s.store.Get(ctx, id)
	return token, transient(err)
}

func (s *Service) put(ctx context.Context, token models.QueueToken) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return transient(s.store.Put(ctx, token))
}

func (s *Service) listAll(ctx context.Context, doctorID, date string) ([]models.QueueToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	tokens, err := s.store.ListByDoctorDate(ctx, doctorID, date)
	return tokens, transient(err)
}

func (s *Service) listWaiting(ctx context.Context, doctorID, date string) ([]models.QueueToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	tokens, err := s.store.ListByDoctorDateStatus(ctx, doctorID, date, models.StatusWaiting)
	return tokens, transient(err)
}

func (s *Service) findActive(ctx context.Context, patientID, doctorID, date string) (models.QueueToken, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	token, found, err := s.store.FindActiveByPatientDoctorDate(ctx, patientID, doctorID, date)
	return token, found, transient(err)
}

func (s *Service) nextNumber(ctx context.Context, doctorID, date string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	number, err := s.store.NextTokenNumber(ctx, doctorID, date)
	return number, transient(err)
}

func (s *Service) listByPatient(ctx context.Context, patientID string) ([]models.QueueToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	tokens, err := s.store.ListByPatient(ctx, patientID)
	return tokens, transient(err)
}

func transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
