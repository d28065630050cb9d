package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pocketbank/backend/internal/models"
	"github.com/pocketbank/backend/internal/services"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type LedgerHandler struct {
	service   *services.LedgerService
	validator *services.ValidationHelper
}

func NewLedgerHandler(service *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// RecordTransaction appends a manual ledger entry
// @Summary Record transaction
// @Tags Transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.NewTransaction true "Ledger entry"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /transactions [post]
func (h *LedgerHandler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.NewTransaction
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	entry, err := h.service.RecordTransaction(r.Context(), userID, req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// ListTransactions returns an account's entries, newest first
// @Summary List account transactions
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param limit query int false "Page size (max 200)"
// @Param offset query int false "Entries to skip"
// @Success 200 {array} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{id}/transactions [get]
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit, ok := queryInt(r, "limit", defaultPageSize)
	if !ok || limit == 0 {
		services.SendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest, nil)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		services.SendErrorResponse(w, "offset must be a non-negative integer", http.StatusBadRequest, nil)
		return
	}

	entries, err := h.service.ListEntries(r.Context(), userID, chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// Reconcile compares the stored balance with the ledger
// @Summary Reconcile account
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} models.ReconcileReport
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{id}/reconcile [get]
func (h *LedgerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	report, err := h.service.Reconcile(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
