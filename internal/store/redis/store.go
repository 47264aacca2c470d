package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"

	"github.com/redis/go-redis/v9"
)

// Store keeps one JSON value per token plus index sets per doctor-day and
// per patient. Token numbers come from an INCR counter per doctor-day, so
// allocation is collision-free across processes.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func NewClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

func tokenKey(id string) string {
	return "queue:token:" + id
}

func doctorDateKey(doctorID, date string) string {
	return fmt.Sprintf("queue:doctor:%s:%s", doctorID, date)
}

func patientKey(patientID string) string {
	return "queue:patient:" + patientID
}

func sequenceKey(doctorID, date string) string {
	return fmt.Sprintf("queue:seq:%s:%s", doctorID, date)
}

func (s *Store) Put(ctx context.Context, token models.QueueToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenKey(token.ID), payload, 0)
	pipe.SAdd(ctx, doctorDateKey(token.DoctorID, token.Date), token.ID)
	pipe.SAdd(ctx, patientKey(token.PatientID), token.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (models.QueueToken, error) {
	payload, err := s.client.Get(ctx, tokenKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.QueueToken{}, store.ErrTokenNotFound
		}
		return models.QueueToken{}, err
	}

	var token models.QueueToken
	if err := json.Unmarshal([]byte(payload), &token); err != nil {
		return models.QueueToken{}, err
	}
	return token, nil
}

func (s *Store) ListByDoctorDate(ctx context.Context, doctorID, date string) ([]models.QueueToken, error) {
	tokens, err := s.listSet(ctx, doctorDateKey(doctorID, date))
	if err != nil {
		return nil, err
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].TokenNumber < tokens[j].TokenNumber })
	return tokens, nil
}

func (s *Store) ListByDoctorDateStatus(ctx context.Context, doctorID, date string, status models.Status) ([]models.QueueToken, error) {
	tokens, err := s.listSet(ctx, doctorDateKey(doctorID, date))
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
	waiting, err := s.ListByDoctorDateStatus(ctx, doctorID, date, models.StatusWaiting)
	if err != nil {
		return models.QueueToken{}, false, err
	}
	for _, token := range waiting {
		if token.PatientID == patientID {
			return token, true, nil
		}
	}
	return models.QueueToken{}, false, nil
}

func (s *Store) CountByDoctorDate(ctx context.Context, doctorID, date string) (int, error) {
	count, err := s.client.SCard(ctx, doctorDateKey(doctorID, date)).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *Store) NextTokenNumber(ctx context.Context, doctorID, date string) (int, error) {
	next, err := s.client.Incr(ctx, sequenceKey(doctorID, date)).Result()
	if err != nil {
		return 0, err
	}
	return int(next), nil
}

func (s *Store) ListByPatient(ctx context.Context, patientID string) ([]models.QueueToken, error) {
	return s.listSet(ctx, patientKey(patientID))
}

func (s *Store) listSet(ctx context.Context, setKey string) ([]models.QueueToken, error) {
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, tokenKey(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	tokens := make([]models.QueueToken, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var token models.QueueToken
		if err := json.Unmarshal([]byte(raw), &token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}
