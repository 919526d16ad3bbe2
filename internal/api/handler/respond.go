// internal/api/handler/respond.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"chatpay-wallet/internal/service"
	"chatpay-wallet/internal/util"
)

// DefaultTimeout bounds every request. It covers a gateway round trip.
const DefaultTimeout = 30 * time.Second

// responder holds the JSON response helpers shared by the handlers.
type responder struct {
	logger *slog.Logger
}

// Helper function to send JSON responses.
func (h responder) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Helper function to send error responses.
func (h responder) respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case util.IsError(err, util.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		message = err.Error()
	case util.IsError(err, util.ErrNotFound), util.IsError(err, util.ErrAccountNotFound), util.IsError(err, util.ErrTransactionNotFound):
		statusCode = http.StatusNotFound
		message = "Resource not found"
	case util.IsError(err, util.ErrAlreadyRefunded), util.IsError(err, util.ErrNotRefundable):
		statusCode = http.StatusConflict
		message = err.Error()
	case util.IsError(err, util.ErrConcurrentUpdate), util.IsError(err, util.ErrLockNotAcquired):
		statusCode = http.StatusServiceUnavailable
		message = "Account is busy, please retry"
	default:
		h.logger.Error("Unhandled service error", "error", err)
	}

	h.respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// respondWithResult writes a ledger outcome. Rejections carry their reason
// code so that callers can branch on it.
func (h responder) respondWithResult(w http.ResponseWriter, result *service.Result) {
	if result.Success || result.Reason == service.ReasonDuplicateRequest {
		h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"message":     result.Message,
			"reason":      result.Reason,
			"transaction": result.Transaction,
		})
		return
	}

	body := map[string]interface{}{
		"error":  result.Message,
		"reason": result.Reason,
	}
	if result.Transaction != nil {
		body["transaction"] = result.Transaction
	}
	h.respondWithJSON(w, reasonStatus(result.Reason), body)
}

func reasonStatus(reason service.Reason) int {
	switch reason {
	case service.ReasonInvalidAmount, service.ReasonAmountAboveCeiling, service.ReasonInvalidTarget:
		return http.StatusBadRequest
	case service.ReasonInsufficientBalance:
		return http.StatusPaymentRequired
	case service.ReasonAccountInactive, service.ReasonNotVerified, service.ReasonFraudBlocked:
		return http.StatusForbidden
	case service.ReasonDailyLimitExceeded, service.ReasonMonthlyLimitExceed:
		return http.StatusUnprocessableEntity
	case service.ReasonGatewayFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
