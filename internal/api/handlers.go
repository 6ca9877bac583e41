/**
 * @description
 * HTTP handlers for the membership-service. These translate between the wire
 * format and the application service: decoding requests, consuming the rate
 * limit, replaying idempotent retries from the ledger, and mapping the
 * service's typed errors onto status codes.
 *
 * @dependencies
 * - encoding/json, errors, log/slog, net/http, time: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/google/uuid: Identifier parsing.
 * - internal/app, internal/config, internal/domain, internal/store: Core logic and models.
 */

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pitchside/membership-service/internal/app"
	"github.com/pitchside/membership-service/internal/config"
	"github.com/pitchside/membership-service/internal/domain"
	"github.com/pitchside/membership-service/internal/store"
)

const createTransferOperation = "transfer_create"

// TransferHandlers holds dependencies for the transfer HTTP handlers.
type TransferHandlers struct {
	service     *app.Service
	idempotency *app.IdempotencyService
	limiter     *app.RedisTransferRateLimiter
	cfg         config.Config
	logger      *slog.Logger
}

// NewTransferHandlers creates a new handler set.
func NewTransferHandlers(
	service *app.Service,
	idempotency *app.IdempotencyService,
	limiter *app.RedisTransferRateLimiter,
	cfg config.Config,
	logger *slog.Logger,
) *TransferHandlers {
	return &TransferHandlers{
		service:     service,
		idempotency: idempotency,
		limiter:     limiter,
		cfg:         cfg,
		logger:      logger,
	}
}

type createTransferRequest struct {
	Plan        string `json:"plan"`
	Amount      int64  `json:"amount"`
	FullName    string `json:"full_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type verifyTransferRequest struct {
	IsApproved bool    `json:"is_approved"`
	Notes      *string `json:"notes,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// CreateTransfer handles POST /transfers. Retries carrying the same
// Idempotency-Key header replay the original response instead of opening a
// second payment cycle.
func (h *TransferHandlers) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	subject, ok := GetAuthenticatedSubject(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid member identifier in token")
		return
	}

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	plan := domain.SubscriptionPlan(req.Plan)
	if !plan.IsValid() {
		writeError(w, http.StatusBadRequest, "Unknown subscription plan: "+req.Plan)
		return
	}

	allowed, retryAfter, err := h.limiter.ConsumeCreateAttempt(
		r.Context(), userID, h.cfg.TransferCreateRateLimitPerHour, time.Hour,
	)
	if err != nil {
		// Redis being down should not block payments; log and continue.
		h.logger.Warn("rate limiter unavailable, allowing request", "user_id", userID, "error", err)
	} else if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, app.ErrRateLimited.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey != "" {
		if cached, err := h.idempotency.FindCompleted(r.Context(), idempotencyKey, createTransferOperation); err == nil {
			writeRawJSON(w, http.StatusCreated, cached.ResponseData)
			return
		}
		if _, err := h.idempotency.RegisterKey(r.Context(), idempotencyKey, createTransferOperation); err != nil {
			if errors.Is(err, store.ErrIdempotencyKeyExists) {
				// Registered but unprocessed: the original attempt is still in
				// flight (or died mid-way). Either way, do not run it twice.
				if cached, findErr := h.idempotency.FindCompleted(r.Context(), idempotencyKey, createTransferOperation); findErr == nil {
					writeRawJSON(w, http.StatusCreated, cached.ResponseData)
					return
				}
				writeError(w, http.StatusConflict, "A request with this idempotency key is already in progress")
				return
			}
			h.logger.Error("failed to register idempotency key", "key", idempotencyKey, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to process request")
			return
		}
	}

	transfer, err := h.service.CreateTransfer(r.Context(), userID, app.CreateTransferInput{
		Plan:        plan,
		Amount:      req.Amount,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		if idempotencyKey != "" {
			// Reaching here means this request registered the key. Free it so
			// a retry after a transient failure runs the operation again
			// instead of hitting the in-progress guard until cleanup.
			if releaseErr := h.idempotency.ReleaseKey(r.Context(), idempotencyKey, createTransferOperation); releaseErr != nil {
				h.logger.Error("failed to release idempotency key after error", "key", idempotencyKey, "error", releaseErr)
			}
		}
		h.respondServiceError(w, err)
		return
	}

	if idempotencyKey != "" {
		if _, err := h.idempotency.SaveResult(r.Context(), idempotencyKey, createTransferOperation, transfer); err != nil {
			h.logger.Error("failed to save idempotency result", "key", idempotencyKey, "transfer_id", transfer.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, transfer)
}

// GetTransferByToken handles GET /transfers/token/{token}. Public: the token
// itself is the credential.
func (h *TransferHandlers) GetTransferByToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	transfer, err := h.service.GetTransferByToken(r.Context(), token)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

// ConfirmTransfer handles POST /transfers/token/{token}/confirm.
func (h *TransferHandlers) ConfirmTransfer(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	transfer, err := h.service.ConfirmTransfer(r.Context(), token)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

// ListMyTransfers handles GET /transfers/mine.
func (h *TransferHandlers) ListMyTransfers(w http.ResponseWriter, r *http.Request) {
	subject, ok := GetAuthenticatedSubject(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid member identifier in token")
		return
	}

	transfers, err := h.service.ListMemberTransfers(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

// ListTransfers handles GET /admin/transfers with an optional ?status= filter.
func (h *TransferHandlers) ListTransfers(w http.ResponseWriter, r *http.Request) {
	var statusFilter *domain.TransferStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.TransferStatus(raw)
		switch status {
		case domain.TransferStatusPending, domain.TransferStatusConfirmed,
			domain.TransferStatusVerified, domain.TransferStatusRejected,
			domain.TransferStatusExpired:
			statusFilter = &status
		default:
			writeError(w, http.StatusBadRequest, "Unknown transfer status: "+raw)
			return
		}
	}

	transfers, err := h.service.ListTransfersForAdmin(r.Context(), statusFilter)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

// ListAwaitingVerification handles GET /admin/transfers/awaiting-verification.
func (h *TransferHandlers) ListAwaitingVerification(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.service.ListTransfersAwaitingVerification(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

// VerifyTransfer handles POST /admin/transfers/{transferID}/verify.
func (h *TransferHandlers) VerifyTransfer(w http.ResponseWriter, r *http.Request) {
	transferID, err := uuid.Parse(chi.URLParam(r, "transferID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transfer id")
		return
	}

	subject, ok := GetAuthenticatedSubject(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	adminID, err := uuid.Parse(subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid admin identifier in token")
		return
	}

	var req verifyTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transfer, err := h.service.VerifyTransfer(r.Context(), transferID, adminID, req.IsApproved, req.Notes)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

// respondServiceError maps the service's typed errors onto HTTP status codes.
func (h *TransferHandlers) respondServiceError(w http.ResponseWriter, err error) {
	var statusErr *app.InvalidStatusError
	switch {
	case errors.Is(err, store.ErrTransferNotFound):
		writeError(w, http.StatusNotFound, "Transfer not found")
	case errors.Is(err, store.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, "Member not found")
	case errors.Is(err, app.ErrIdentityConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrTransferExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadRequest, statusErr.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
