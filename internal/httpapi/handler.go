package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/queue"
	"hqms/queue-service/internal/store"

	"github.com/google/uuid"
)

// QueueService is the engine surface the HTTP binding depends on.
type QueueService interface {
	Issue(ctx context.Context, input queue.IssueInput) (models.QueueToken, error)
	GetToken(ctx context.Context, id string) (models.QueueToken, error)
	CallNext(ctx context.Context, doctorID, date string) (models.QueueToken, error)
	Start(ctx context.Context, id string) (models.QueueToken, error)
	Complete(ctx context.Context, id string) (models.QueueToken, error)
	Cancel(ctx context.Context, id string) (models.QueueToken, error)
	NoShow(ctx context.Context, id string) (models.QueueToken, error)
	Status(ctx context.Context, doctorID, date string) (queue.StatusSnapshot, error)
	PatientTokens(ctx context.Context, patientID string) ([]models.QueueToken, error)
}

type Handler struct {
	service QueueService
}

func NewHandler(service QueueService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/queue/tokens", h.handleIssueToken)
	mux.HandleFunc("/api/queue/tokens/", h.handleTokenSubtree)
	mux.HandleFunc("/api/queue/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/queue/status", h.handleQueueStatus)
	mux.HandleFunc("/api/queue/patients/", h.handlePatientTokens)
	return mux
}

type issueTokenRequest struct {
	PatientID     string `json:"patient_id"`
	DoctorID      string `json:"doctor_id"`
	DepartmentID  string `json:"department_id"`
	Date          string `json:"date"`
	AppointmentID string `json:"appointment_id"`
	Priority      string `json:"priority"`
}

type callNextRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
}

type tokenResponse struct {
	models.QueueToken
	Message string `json:"message"`
}

func toResponse(token models.QueueToken) tokenResponse {
	return tokenResponse{QueueToken: token, Message: token.Message()}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req issueTokenRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.PatientID = strings.TrimSpace(req.PatientID)
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.DepartmentID = strings.TrimSpace(req.DepartmentID)
	req.Date = strings.TrimSpace(req.Date)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Priority = strings.TrimSpace(req.Priority)

	if req.PatientID == "" || req.DoctorID == "" || req.DepartmentID == "" || req.Date == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_id, doctor_id, department_id, and date are required")
		return
	}
	if !isValidUUID(req.PatientID) || !isValidUUID(req.DoctorID) || !isValidUUID(req.DepartmentID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_id, doctor_id, and department_id must be UUIDs")
		return
	}
	if req.AppointmentID != "" && !isValidUUID(req.AppointmentID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "appointment_id must be a UUID when provided")
		return
	}
	if !isValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	token, err := h.service.Issue(r.Context(), queue.IssueInput{
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		DepartmentID:  req.DepartmentID,
		Date:          req.Date,
		AppointmentID: req.AppointmentID,
		Priority:      req.Priority,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(token))
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.Date = strings.TrimSpace(req.Date)
	if req.DoctorID == "" || req.Date == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "doctor_id and date are required")
		return
	}
	if !isValidUUID(req.DoctorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "doctor_id must be a UUID")
		return
	}
	if !isValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	token, err := h.service.CallNext(r.Context(), req.DoctorID, req.Date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(token))
}

func (h *Handler) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	doctorID := strings.TrimSpace(r.URL.Query().Get("doctor_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if doctorID == "" || date == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "doctor_id and date are required")
		return
	}
	if !isValidUUID(doctorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "doctor_id must be a UUID")
		return
	}
	if !isValidDate(date) {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	snapshot, err := h.service.Status(r.Context(), doctorID, date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handlePatientTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/queue/patients/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "tokens" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	patientID := parts[0]
	if !isValidUUID(patientID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_id must be a UUID")
		return
	}

	tokens, err := h.service.PatientTokens(r.Context(), patientID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	responses := make([]tokenResponse, 0, len(tokens))
	for _, token := range tokens {
		responses = append(responses, toResponse(token))
	}
	writeJSON(w, http.StatusOK, responses)
}

func (h *Handler) handleTokenSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/queue/tokens/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1:
		h.handleGetToken(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions":
		h.handleTokenAction(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetToken(w http.ResponseWriter, r *http.Request, tokenID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(tokenID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_id must be a UUID")
		return
	}

	token, err := h.service.GetToken(r.Context(), tokenID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(token))
}

func (h *Handler) handleTokenAction(w http.ResponseWriter, r *http.Request, tokenID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(tokenID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_id must be a UUID")
		return
	}

	var token models.QueueToken
	var err error
	switch action {
	case "start":
		token, err = h.service.Start(r.Context(), tokenID)
	case "complete":
		token, err = h.service.Complete(r.Context(), tokenID)
	case "cancel":
		token, err = h.service.Cancel(r.Context(), tokenID)
	case "no-show":
		token, err = h.service.NoShow(r.Context(), tokenID)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(token))
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidDate(value string) bool {
	_, err := time.Parse(models.DateLayout, value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "token not found"
	case errors.Is(err, queue.ErrDuplicateActiveToken):
		return http.StatusConflict, "duplicate_active_token", "patient already holds a waiting token for this doctor and date"
	case errors.Is(err, queue.ErrEmptyQueue):
		return http.StatusConflict, "queue_empty", "no tokens waiting"
	case errors.Is(err, queue.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "token state does not allow this action"
	case errors.Is(err, queue.ErrUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable, retry"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
