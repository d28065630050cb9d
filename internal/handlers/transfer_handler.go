package handlers

import (
	"net/http"

	"github.com/pocketbank/backend/internal/models"
	"github.com/pocketbank/backend/internal/services"
)

type TransferHandler struct {
	service   *services.TransferService
	validator *services.ValidationHelper
}

func NewTransferHandler(service *services.TransferService) *TransferHandler {
	return &TransferHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// CreateTransfer moves funds out of one of the caller's accounts
// @Summary Execute transfer
// @Description Transfer funds to an own account (toAccountId) or a peer account number (toAccountNumber).
// @Description The source and destination must differ; naming the source again, including via toAccountId, is rejected with kind same_account (400).
// @Tags Transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.TransferRequest true "Transfer request"
// @Success 201 {object} models.TransferResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /transfers [post]
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.TransferRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.service.ExecuteTransfer(r.Context(), userID, req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}
