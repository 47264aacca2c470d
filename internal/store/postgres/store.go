package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists tokens in a queue_tokens table. Token numbers come from a
// token_sequences row per (doctor_id, date) advanced with an upsert, so
// allocation is collision-free across processes.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const tokenColumns = `id, patient_id, doctor_id, department_id, token_number, date, issue_time, estimated_time, actual_call_time, status, position, estimated_wait_minutes, appointment_id, priority`

func (s *Store) Put(ctx context.Context, token models.QueueToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queue_tokens (`+tokenColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			position = EXCLUDED.position,
			estimated_time = EXCLUDED.estimated_time,
			estimated_wait_minutes = EXCLUDED.estimated_wait_minutes,
			actual_call_time = EXCLUDED.actual_call_time
	`, token.ID, token.PatientID, token.DoctorID, nullIfEmpty(token.DepartmentID), token.TokenNumber,
		token.Date, token.IssueTime, token.EstimatedTime, token.ActualCallTime, token.Status,
		token.Position, token.EstimatedWaitMinutes, nullIfEmpty(token.AppointmentID), token.Priority)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (models.QueueToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM queue_tokens
		WHERE id = $1
	`, id)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueToken{}, store.ErrTokenNotFound
		}
		return models.QueueToken{}, err
	}
	return token, nil
}

func (s *Store) ListByDoctorDate(ctx context.Context, doctorID, date string) ([]models.QueueToken, error) {
	return s.list(ctx, `
		SELECT `+tokenColumns+`
		FROM queue_tokens
		WHERE doctor_id = $1 AND date = $2
		ORDER BY token_number ASC
	`, doctorID, date)
}

func (s *Store) ListByDoctorDateStatus(ctx context.Context, doctorID, date string, status models.Status) ([]models.QueueToken, error) {
	return s.list(ctx, `
		SELECT `+tokenColumns+`
		FROM queue_tokens
		WHERE doctor_id = $1 AND date = $2 AND status = $3
	`, doctorID, date, string(status))
}

func (s *Store) FindActiveByPatientDoctorDate(ctx context.Context, patientID, doctorID, date string) (models.QueueToken, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM queue_tokens
		WHERE patient_id = $1 AND doctor_id = $2 AND date = $3 AND status = $4
		LIMIT 1
	`, patientID, doctorID, date, string(models.StatusWaiting))
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueToken{}, false, nil
		}
		return models.QueueToken{}, false, err
	}
	return token, true, nil
}

func (s *Store) CountByDoctorDate(ctx context.Context, doctorID, date string) (int, error) {
	var count int
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(1)
		FROM queue_tokens
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) NextTokenNumber(ctx context.Context, doctorID, date string) (int, error) {
	var next int
	row := s.pool.QueryRow(ctx, `
		INSERT INTO token_sequences (doctor_id, date, next_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (doctor_id, date)
		DO UPDATE SET next_number = token_sequences.next_number + 1
		RETURNING next_number
	`, doctorID, date)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) ListByPatient(ctx context.Context, patientID string) ([]models.QueueToken, error) {
	tokens, err := s.list(ctx, `
		SELECT `+tokenColumns+`
		FROM queue_tokens
		WHERE patient_id = $1
	`, patientID)
	if err != nil {
		return nil, err
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].IssueTime.After(tokens[j].IssueTime) })
	return tokens, nil
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]models.QueueToken, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.QueueToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

func scanToken(row pgx.Row) (models.QueueToken, error) {
	var token models.QueueToken
	var departmentNull sql.NullString
	var callTimeNull sql.NullTime
	var appointmentNull sql.NullString
	if err := row.Scan(&token.ID, &token.PatientID, &token.DoctorID, &departmentNull,
		&token.TokenNumber, &token.Date, &token.IssueTime, &token.EstimatedTime, &callTimeNull,
		&token.Status, &token.Position, &token.EstimatedWaitMinutes, &appointmentNull, &token.Priority); err != nil {
		return models.QueueToken{}, err
	}
	if departmentNull.Valid {
		token.DepartmentID = departmentNull.String
	}
	if callTimeNull.Valid {
		callTime := callTimeNull.Time
		token.ActualCallTime = &callTime
	}
	if appointmentNull.Valid {
		token.AppointmentID = appointmentNull.String
	}
	return token, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
