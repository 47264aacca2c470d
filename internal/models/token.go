package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the service-day format used across the API and the stores.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusCalled     Status = "CALLED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCanceled   Status = "CANCELED"
	StatusNoShow     Status = "NO_SHOW"
)

type Priority string

const (
	PriorityEmergency Priority = "EMERGENCY"
	PriorityHigh      Priority = "HIGH"
	PriorityNormal    Priority = "NORMAL"
	PriorityLow       Priority = "LOW"
)

// Rank orders priorities for dispatch; lower is served first.
func (p Priority) Rank() int {
	switch p {
	case PriorityEmergency:
		return 1
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 3
	case PriorityLow:
		return 4
	default:
		return 3
	}
}

// ParsePriority normalizes a raw priority string. Unknown values fall back to
// NORMAL; a bad priority never fails a request.
func ParsePriority(raw string) Priority {
	switch Priority(strings.ToUpper(strings.TrimSpace(raw))) {
	case PriorityEmergency:
		return PriorityEmergency
	case PriorityHigh:
		return PriorityHigh
	case PriorityNormal:
		return PriorityNormal
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

type QueueToken struct {
	ID                   string     `json:"id"`
	PatientID            string     `json:"patient_id"`
	DoctorID             string     `json:"doctor_id"`
	DepartmentID         string     `json:"department_id,omitempty"`
	TokenNumber          int        `json:"token_number"`
	Date                 string     `json:"date"`
	IssueTime            time.Time  `json:"issue_time"`
	EstimatedTime        time.Time  `json:"estimated_time"`
	ActualCallTime       *time.Time `json:"actual_call_time,omitempty"`
	Status               Status     `json:"status"`
	Position             int        `json:"position,omitempty"`
	EstimatedWaitMinutes int        `json:"estimated_wait_minutes"`
	AppointmentID        string     `json:"appointment_id,omitempty"`
	Priority             Priority   `json:"priority"`
}

// Message renders the patient-facing status line for a token.
func (t QueueToken) Message() string {
	switch t.Status {
	case StatusWaiting:
		return fmt.Sprintf("You are #%d in queue. Estimated wait: %d minutes", t.Position, t.EstimatedWaitMinutes)
	case StatusCalled:
		return "Your turn! Please proceed to the doctor."
	case StatusInProgress:
		return "Consultation in progress."
	case StatusCompleted:
		return "Consultation completed."
	case StatusCanceled:
		return "Token cancelled."
	case StatusNoShow:
		return "Marked as no-show."
	default:
		return "Unknown status"
	}
}
