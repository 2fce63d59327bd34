package faults

import (
	"errors"
	"net/http"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
	"github.com/bissquit/fieldservice-sla/internal/pkg/httputil"
	"github.com/bissquit/fieldservice-sla/internal/sla"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var errInvalidFaultID = errors.New("invalid fault id")

var errorMappings = []httputil.ErrorMapping{
	{Error: errInvalidFaultID, Status: http.StatusBadRequest},
	{Error: ErrFaultNotFound, Status: http.StatusNotFound},
	{Error: ErrFaultResolved, Status: http.StatusConflict},
	{Error: ErrMilestoneAlreadyRecorded, Status: http.StatusConflict},
	{Error: ErrInvalidSeverity, Status: http.StatusBadRequest},
	{Error: ErrInvalidMilestone, Status: http.StatusBadRequest},
	{Error: ErrInvalidUpdateType, Status: http.StatusBadRequest},
	{Error: ErrTimeBeforeRaise, Status: http.StatusUnprocessableEntity},
	{Error: sla.ErrInvalidInput, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for faults and SLA reporting.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new faults handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers the fault and SLA routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/faults", func(r chi.Router) {
		r.Get("/", h.ListActiveFaults)
		r.Post("/", h.CreateFault)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetFault)
			r.Get("/sla-status", h.GetSLAStatus)
			r.Get("/penalty", h.GetPenalty)
			r.Post("/milestones/{milestone}", h.RecordMilestone)
			r.Post("/resolve", h.ResolveFault)
			r.Get("/updates", h.ListUpdates)
			r.Post("/updates", h.LogUpdate)
			r.Get("/updates/due-status", h.GetUpdateDueStatus)
		})
	})

	r.Get("/penalty-summary", h.GetPenaltySummary)
	r.Post("/sla/check", h.CheckSLA)
}

// CreateFaultRequest represents the request body for logging a fault.
type CreateFaultRequest struct {
	Reference   string `json:"reference" validate:"max=64"`
	Description string `json:"description" validate:"max=4000"`
	Severity    string `json:"severity" validate:"required,oneof=critical major minor query"`
	// RaisedAt accepts RFC 3339 or a wall-clock time in the operating zone.
	RaisedAt *string `json:"raised_at"`
}

// TimestampRequest is the optional body of milestone and resolve requests.
type TimestampRequest struct {
	At *string `json:"at"`
}

// CreateUpdateRequest represents the request body for logging a client
// communication update.
type CreateUpdateRequest struct {
	UpdateType string `json:"update_type" validate:"required,oneof=phone_call email app_update"`
	Message    string `json:"message" validate:"required,max=4000"`
	SentBy     string `json:"sent_by" validate:"max=255"`
}

func faultID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return "", errInvalidFaultID
	}
	return id, nil
}

func (h *Handler) parseTimestamp(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := h.service.Engine().Calendar().ParseTimestamp(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateFault handles POST /faults.
func (h *Handler) CreateFault(w http.ResponseWriter, r *http.Request) {
	var req CreateFaultRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	raisedAt, err := h.parseTimestamp(req.RaisedAt)
	if err != nil {
		httputil.ValidationError(w, err)
		return
	}

	fault, err := h.service.CreateFault(r.Context(), CreateFaultInput{
		Reference:   req.Reference,
		Description: req.Description,
		Severity:    domain.Severity(req.Severity),
		RaisedAt:    raisedAt,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, fault)
}

// ListActiveFaults handles GET /faults.
func (h *Handler) ListActiveFaults(w http.ResponseWriter, r *http.Request) {
	faults, err := h.service.ListActiveFaults(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, faults)
}

// GetFault handles GET /faults/{id}.
func (h *Handler) GetFault(w http.ResponseWriter, r *http.Request) {
	id, err := faultID(r)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	fault, err := h.service.GetFault(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, fault)
}

// GetSLAStatus handles GET /faults/{id}/sla-status.
func (h *Handler) GetSLAStatus(w http.ResponseWriter, r *http.Request) {
	id, err := faultID(r)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	status, err := h.service.SLAStatus(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, status)
}

// GetPenalty handles GET /faults/{id}/penalty.
func (h *Handler) GetPenalty(w http.ResponseWriter, r *http.Request) {
	id, err := faultID(r)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	exposure, err := h.service.PenaltyExposure(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, exposure)
}

// decodeTimestamp reads an optional {"at": ...} body.
func (h *Handler) decodeTimestamp(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	var req TimestampRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return nil, false
	}

	at, err := h.parseTimestamp(req.At)
	if err != nil {
		httputil.ValidationError(w, err)
		return nil, false
	}
	return at, true
}

// RecordMilestone handles POST /faults/{id}/milestones/{milestone}.
func (h *Handler) RecordMilestone(w http.ResponseWriter, r *http.Request) {
	id, err := faultID(r)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	at, ok := h.decodeTimestamp(w, r)
	if !ok {
		return
	}

	milestone := domain.Milestone(chi.URLParam(r, "milestone"))
	fault, err := h.service.RecordMilestone(r.Context(), id, milestone, at)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, fault)
}

// ResolveFault handles POST /faults/{id}/resolve.
func (h *Handler) ResolveFault(w http.ResponseWriter, r *http.Request) {
	id, err := faultID(r)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	at, ok := h.decodeTimestamp(w, r)
	if !ok {
		return
	}

	fault, err := h.service.ResolveFault(r.Context(), id, at)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, fault)
}

// LogUpdate handles POST /faults/{id}/updates.
func (h *Handler) LogUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := faultID(r)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	var req CreateUpdateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	update, err := h.service.LogUpdate(r.Context(), CreateUpdateInput{
		FaultID:    id,
		UpdateType: domain.UpdateType(req.UpdateType),
		Message:    req.Message,
		SentBy:     req.SentBy,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, update)
}

// ListUpdates handles GET /faults/{id}/updates.
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	id, err := faultID(r)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	updates, err := h.service.ListUpdates(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, updates)
}

// GetUpdateDueStatus handles GET /faults/{id}/updates/due-status.
func (h *Handler) GetUpdateDueStatus(w http.ResponseWriter, r *http.Request) {
	id, err := faultID(r)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	status, err := h.service.UpdateDueStatus(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, status)
}

// GetPenaltySummary handles GET /penalty-summary. The optional "at" query
// parameter selects the quarter; the current quarter is the default.
func (h *Handler) GetPenaltySummary(w http.ResponseWriter, r *http.Request) {
	at := h.service.Now()
	if q := r.URL.Query().Get("at"); q != "" {
		parsed, err := h.parseTimestamp(&q)
		if err != nil {
			httputil.ValidationError(w, err)
			return
		}
		at = *parsed
	}

	summary, err := h.service.QuarterPenaltySummary(r.Context(), at)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, summary)
}

// CheckSLA handles POST /sla/check.
func (h *Handler) CheckSLA(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CheckSLA(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, result)
}
