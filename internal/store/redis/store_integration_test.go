package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T, ctx context.Context) *Store {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR or REDIS_ADDR is required for integration tests")
	}

	client := NewClient(addr, os.Getenv("REDIS_PASSWORD"))
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func redisTestToken(doctorID, date string, number int) models.QueueToken {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.QueueToken{
		ID:                   uuid.NewString(),
		PatientID:            uuid.NewString(),
		DoctorID:             doctorID,
		DepartmentID:         uuid.NewString(),
		TokenNumber:          number,
		Date:                 date,
		IssueTime:            now,
		EstimatedTime:        now.Add(time.Duration(number) * 15 * time.Minute),
		Status:               models.StatusWaiting,
		Position:             number,
		EstimatedWaitMinutes: number * 15,
		Priority:             models.PriorityNormal,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t, ctx)

	token := redisTestToken(uuid.NewString(), "2026-03-02", 1)
	if err := st.Put(ctx, token); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := st.Get(ctx, token.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != token.ID || got.TokenNumber != token.TokenNumber || got.Status != token.Status {
		t.Fatalf("got %+v, want %+v", got, token)
	}

	if _, err := st.Get(ctx, uuid.NewString()); !errors.Is(err, store.ErrTokenNotFound) {
		t.Fatalf("get missing err = %v, want ErrTokenNotFound", err)
	}
}

func TestNextTokenNumberIncrements(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t, ctx)

	doctorID := uuid.NewString()
	date := "2026-03-02"
	for i := 1; i <= 3; i++ {
		n, err := st.NextTokenNumber(ctx, doctorID, date)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if n != i {
			t.Fatalf("sequence = %d, want %d", n, i)
		}
	}

	n, err := st.NextTokenNumber(ctx, doctorID, "2026-03-03")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if n != 1 {
		t.Fatalf("other day sequence = %d, want 1", n)
	}
}

func TestListAndFindActive(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t, ctx)

	doctorID := uuid.NewString()
	date := "2026-03-02"

	first := redisTestToken(doctorID, date, 1)
	second := redisTestToken(doctorID, date, 2)
	second.Status = models.StatusCompleted
	third := redisTestToken(doctorID, date, 3)
	for _, token := range []models.QueueToken{third, first, second} {
		if err := st.Put(ctx, token); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	tokens, err := st.ListByDoctorDate(ctx, doctorID, date)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("list returned %d tokens, want 3", len(tokens))
	}
	for i, token := range tokens {
		if token.TokenNumber != i+1 {
			t.Fatalf("list not ordered by token number: %v", tokens)
		}
	}

	waiting, err := st.ListByDoctorDateStatus(ctx, doctorID, date, models.StatusWaiting)
	if err != nil {
		t.Fatalf("list waiting: %v", err)
	}
	if len(waiting) != 2 {
		t.Fatalf("waiting = %d, want 2", len(waiting))
	}

	got, found, err := st.FindActiveByPatientDoctorDate(ctx, first.PatientID, doctorID, date)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if !found || got.ID != first.ID {
		t.Fatalf("found=%v id=%s, want %s", found, got.ID, first.ID)
	}

	count, err := st.CountByDoctorDate(ctx, doctorID, date)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	mine, err := st.ListByPatient(ctx, first.PatientID)
	if err != nil {
		t.Fatalf("list by patient: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != first.ID {
		t.Fatalf("list by patient = %v", mine)
	}
}
