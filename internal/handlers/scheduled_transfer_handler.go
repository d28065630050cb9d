package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pocketbank/backend/internal/models"
	"github.com/pocketbank/backend/internal/scheduler"
	"github.com/pocketbank/backend/internal/services"
)

// DueRunner triggers a due-check pass on demand.
type DueRunner interface {
	RunOnce(ctx context.Context) (*models.DueRunSummary, error)
}

type ScheduledTransferHandler struct {
	service   *services.ScheduledTransferService
	runner    DueRunner
	validator *services.ValidationHelper
}

func NewScheduledTransferHandler(service *services.ScheduledTransferService, runner DueRunner) *ScheduledTransferHandler {
	return &ScheduledTransferHandler{
		service:   service,
		runner:    runner,
		validator: services.NewValidationHelper(),
	}
}

// Routes mounts the scheduled transfer endpoints.
func (h *ScheduledTransferHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/execute-due", h.ExecuteDue)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// Create registers a recurring transfer
// @Summary Create scheduled transfer
// @Tags Scheduled Transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ScheduledTransferRequest true "Schedule"
// @Success 201 {object} models.ScheduledTransfer
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /scheduled-transfers [post]
func (h *ScheduledTransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.ScheduledTransferRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	sched, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sched)
}

// List returns the caller's schedules
// @Summary List scheduled transfers
// @Tags Scheduled Transfers
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ScheduledTransfer
// @Router /scheduled-transfers [get]
func (h *ScheduledTransferHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	schedules, err := h.service.List(r.Context(), userID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	if schedules == nil {
		schedules = []models.ScheduledTransfer{}
	}

	writeJSON(w, http.StatusOK, schedules)
}

// Get returns one schedule
// @Summary Get scheduled transfer
// @Tags Scheduled Transfers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Success 200 {object} models.ScheduledTransfer
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /scheduled-transfers/{id} [get]
func (h *ScheduledTransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sched, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sched)
}

// Update edits a schedule
// @Summary Update scheduled transfer
// @Tags Scheduled Transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Param request body models.ScheduledTransferUpdate true "Changed fields"
// @Success 200 {object} models.ScheduledTransfer
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /scheduled-transfers/{id} [put]
func (h *ScheduledTransferHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.ScheduledTransferUpdate
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	sched, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sched)
}

// Delete removes a schedule
// @Summary Delete scheduled transfer
// @Tags Scheduled Transfers
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Success 204
// @Failure 404 {object} services.ErrorResponse
// @Router /scheduled-transfers/{id} [delete]
func (h *ScheduledTransferHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExecuteDue runs a due-check pass now
// @Summary Execute due scheduled transfers
// @Tags Scheduled Transfers
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.DueRunSummary
// @Failure 409 {object} services.ErrorResponse
// @Router /scheduled-transfers/execute-due [post]
func (h *ScheduledTransferHandler) ExecuteDue(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	summary, err := h.runner.RunOnce(r.Context())
	if errors.Is(err, scheduler.ErrPassInProgress) {
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
		return
	}
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
