package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms/internal/application/models"
	"lms/internal/platform/middleware"
	"lms/internal/room"
	"lms/internal/verification"
	id "lms/pkg/domain"
	dErrors "lms/pkg/domain-errors"
	"lms/pkg/platform/httputil"
	"lms/pkg/requestcontext"
)

// ApplicationService is the part of the verification coordinator reachable
// over HTTP.
type ApplicationService interface {
	CreateApplication(ctx context.Context, caller verification.Caller, cmd verification.CreateApplication) (*models.LoanApplication, error)
	GetApplication(ctx context.Context, caller verification.Caller, appID id.ApplicationID) (*models.LoanApplication, error)
	TransitionStatus(ctx context.Context, caller verification.Caller, cmd verification.TransitionStatus) (*models.LoanApplication, error)
	ResetFacet(ctx context.Context, caller verification.Caller, cmd verification.ResetFacet) (room.Event, error)
}

// Handler serves /api/applications.
type Handler struct {
	service ApplicationService
	logger  *slog.Logger
}

func NewHandler(service ApplicationService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts the application routes. The caller applies RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/applications", h.handleCreate)
	r.Get("/applications/{id}", h.handleGet)
	r.Post("/applications/{id}/status", h.handleTransition)
	r.Post("/applications/{id}/facets/{facet}/reset", h.handleResetFacet)
}

type createApplicationRequest struct {
	PersonalInfo models.PersonalInfo `json:"personalInfo"`
	LoanDetails  models.LoanDetails  `json:"loanDetails"`
}

type transitionRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type resetFacetRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[createApplicationRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, err := h.service.CreateApplication(r.Context(), caller, verification.CreateApplication{
		PersonalInfo: req.PersonalInfo,
		LoanDetails:  req.LoanDetails,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, app)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	appID, err := id.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, err := h.service.GetApplication(r.Context(), caller, appID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	appID, err := id.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.DecodeJSON[transitionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, err := h.service.TransitionStatus(r.Context(), caller, verification.TransitionStatus{
		ApplicationID: appID,
		To:            req.Status,
		Note:          req.Note,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) handleResetFacet(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	appID, err := id.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.DecodeJSON[resetFacetRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	event, err := h.service.ResetFacet(r.Context(), caller, verification.ResetFacet{
		ApplicationID: appID,
		Facet:         chi.URLParam(r, "facet"),
		Reason:        req.Reason,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, event.Payload)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (verification.Caller, bool) {
	principal, ok := middleware.Principal(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "principal missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return verification.Caller{}, false
	}
	return verification.Caller{Principal: principal}, true
}
