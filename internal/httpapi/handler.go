package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Drax929/orderly-patient-nexus/internal/clinic"
	"github.com/Drax929/orderly-patient-nexus/internal/models"
	"github.com/Drax929/orderly-patient-nexus/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	store            store.VisitStore
	loc              *time.Location
	minContactDigits int
	now              func() time.Time
}

type Options struct {
	// Location is the clinic timezone; day scoping of every request uses it.
	Location *time.Location
	// MinContactDigits is the registration contact-number policy knob.
	MinContactDigits int
}

func NewHandler(store store.VisitStore, options Options) *Handler {
	loc := options.Location
	if loc == nil {
		loc = time.Local
	}
	minDigits := options.MinContactDigits
	if minDigits <= 0 {
		minDigits = 10
	}
	return &Handler{
		store:            store,
		loc:              loc,
		minContactDigits: minDigits,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/visits", h.handleVisits)
	mux.HandleFunc("/api/visits/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/visits/current", h.handleCurrentVisit)
	mux.HandleFunc("/api/visits/", h.handleVisitSubpaths)
	mux.HandleFunc("/api/queue/status", h.handleQueueStatus)
	mux.HandleFunc("/api/profile", h.handleProfile)
	mux.HandleFunc("/api/otp/send", h.handleOTPSend)
	mux.HandleFunc("/api/otp/verify", h.handleOTPVerify)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type registerRequest struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name"`
	Contact   string `json:"contact"`
}

type registerResponse struct {
	models.Visit
	Message string `json:"message"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleVisits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRegister(w, r)
	case http.MethodGet:
		h.handleListVisits(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Name = strings.TrimSpace(req.Name)
	req.Contact = strings.TrimSpace(req.Contact)

	if req.RequestID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id is required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	if req.Name == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_name", "name is required")
		return
	}
	if !h.isValidContact(req.Contact) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_contact",
			"contact must be "+strconv.Itoa(h.minContactDigits)+"-16 digits")
		return
	}

	visit, _, err := h.store.RegisterVisit(r.Context(), store.RegisterVisitInput{
		RequestID: req.RequestID,
		Name:      req.Name,
		Contact:   req.Contact,
		CreatedAt: h.now(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		Visit:   visit,
		Message: "Registration successful. Your serial number is " + strconv.Itoa(visit.SerialNumber) + ".",
	})
}

func (h *Handler) handleListVisits(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !isKnownStatus(status) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "status must be waiting, in_progress, or completed")
		return
	}

	visits, err := h.store.ListVisits(r.Context(), day, status)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if visits == nil {
		visits = []models.Visit{}
	}
	writeJSON(w, http.StatusOK, visits)
}

type callNextRequest struct {
	RequestID string `json:"request_id"`
}

type callNextResponse struct {
	models.Visit
	Message string `json:"message"`
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
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" || !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	visit, _, err := h.store.CallNext(r.Context(), store.CallNextInput{
		RequestID: req.RequestID,
		CalledAt:  h.now(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, callNextResponse{
		Visit:   visit,
		Message: "Now serving " + visit.Name + " (Serial #" + strconv.Itoa(visit.SerialNumber) + ")",
	})
}

func (h *Handler) handleCurrentVisit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	day := models.DayOf(h.now(), h.loc)
	visit, found, err := h.store.CurrentVisit(r.Context(), day)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

func (h *Handler) handleVisitSubpaths(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/visits/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	visitID := parts[0]
	if !isValidUUID(visitID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "visit_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1:
		h.handleGetVisit(w, r, visitID)
	case len(parts) == 2 && parts[1] == "wait":
		h.handleWaitEstimate(w, r, visitID)
	case len(parts) == 2 && parts[1] == "events":
		h.handleVisitEvents(w, r, visitID)
	case len(parts) == 3 && parts[1] == "actions" && parts[2] == "complete":
		h.handleComplete(w, r, visitID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetVisit(w http.ResponseWriter, r *http.Request, visitID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	visit, err := h.store.GetVisit(r.Context(), visitID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

type waitEstimateResponse struct {
	VisitID          string `json:"visit_id"`
	SerialNumber     int    `json:"serial_number"`
	Status           string `json:"status"`
	WaitingAhead     int    `json:"waiting_ahead"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Display          string `json:"display"`
}

func (h *Handler) handleWaitEstimate(w http.ResponseWriter, r *http.Request, visitID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	visit, err := h.store.GetVisit(r.Context(), visitID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	ahead, err := h.store.CountWaitingAhead(r.Context(), visit.Day, visit.SerialNumber)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	profile, err := h.store.GetProfile(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	estimate := clinic.EstimateWait(ahead, profile.AvgConsultationMinutes)
	writeJSON(w, http.StatusOK, waitEstimateResponse{
		VisitID:          visit.VisitID,
		SerialNumber:     visit.SerialNumber,
		Status:           visit.Status,
		WaitingAhead:     ahead,
		EstimatedMinutes: int(estimate / time.Minute),
		Display:          clinic.FormatWait(estimate),
	})
}

func (h *Handler) handleVisitEvents(w http.ResponseWriter, r *http.Request, visitID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	events, err := h.store.ListVisitEvents(r.Context(), visitID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if events == nil {
		events = []store.VisitEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

type completeRequest struct {
	RequestID string `json:"request_id"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request, visitID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req completeRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" || !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	visit, _, err := h.store.CompleteVisit(r.Context(), store.CompleteVisitInput{
		RequestID:   req.RequestID,
		VisitID:     visitID,
		CompletedAt: h.now(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

type queueStatusResponse struct {
	store.QueueStats
	Current  *models.Visit    `json:"current,omitempty"`
	Schedule clinic.OpenState `json:"schedule"`
}

func (h *Handler) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	now := h.now()
	day := models.DayOf(now, h.loc)
	stats, err := h.store.QueueStats(r.Context(), day)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	resp := queueStatusResponse{QueueStats: stats}
	current, found, err := h.store.CurrentVisit(r.Context(), day)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if found {
		resp.Current = &current
	}

	profile, err := h.store.GetProfile(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	resp.Schedule = clinic.IsOpen(now, h.loc, profile)

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		profile, err := h.store.GetProfile(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	case http.MethodPut:
		var update models.ProfileUpdate
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&update); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if update.Morning != nil && !isValidWindow(update.Morning) {
			writeError(w, "", http.StatusBadRequest, "invalid_profile", "morning window must use HH:MM times")
			return
		}
		if update.Evening != nil && !isValidWindow(update.Evening) {
			writeError(w, "", http.StatusBadRequest, "invalid_profile", "evening window must use HH:MM times")
			return
		}
		profile, err := h.store.UpdateProfile(r.Context(), update)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type otpSendRequest struct {
	Contact string `json:"contact"`
}

type otpVerifyRequest struct {
	Contact string `json:"contact"`
	Code    string `json:"code"`
}

// The OTP endpoints are a demo stub carried over from the original flow:
// send always succeeds and verify accepts any 4-digit code. Real identity
// verification is out of scope.
func (h *Handler) handleOTPSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req otpSendRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Contact = strings.TrimSpace(req.Contact)
	if !h.isValidContact(req.Contact) {
		writeError(w, "", http.StatusBadRequest, "invalid_contact",
			"contact must be "+strconv.Itoa(h.minContactDigits)+"-16 digits")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (h *Handler) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req otpVerifyRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": isValidOTP(strings.TrimSpace(req.Code))})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	afterRaw := strings.TrimSpace(r.URL.Query().Get("after"))
	var after time.Time
	if afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListOutboxEvents(r.Context(), after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if events == nil {
		events = []store.OutboxEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) dayParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	day := strings.TrimSpace(r.URL.Query().Get("day"))
	if day == "" {
		return models.DayOf(h.now(), h.loc), true
	}
	if _, err := time.Parse(models.DayFormat, day); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "day must be YYYY-MM-DD")
		return "", false
	}
	return day, true
}

func (h *Handler) isValidContact(value string) bool {
	if len(value) < h.minContactDigits || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isValidOTP(value string) bool {
	if len(value) != 4 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isKnownStatus(value string) bool {
	switch value {
	case models.StatusWaiting, models.StatusInProgress, models.StatusCompleted:
		return true
	}
	return false
}

func isValidWindow(window *models.ScheduleWindow) bool {
	for _, value := range []string{window.Start, window.End} {
		if _, err := time.Parse("15:04", value); err != nil {
			return false
		}
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrVisitNotFound):
		return http.StatusNotFound, "visit_not_found", "visit not found"
	case errors.Is(err, store.ErrNoWaitingVisits):
		return http.StatusConflict, "queue_empty", "no waiting patients"
	case errors.Is(err, store.ErrAlreadyInProgress):
		return http.StatusConflict, "already_in_progress", "a patient is already being seen"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "visit state does not allow this action"
	case errors.Is(err, store.ErrEmptyName):
		return http.StatusBadRequest, "invalid_name", "name is required"
	case errors.Is(err, store.ErrInvalidContact):
		return http.StatusBadRequest, "invalid_contact", "contact number is invalid"
	case errors.Is(err, store.ErrInvalidProfile):
		return http.StatusBadRequest, "invalid_profile", "profile update is invalid"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
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
