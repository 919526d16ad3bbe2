// internal/api/handler/wallet.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"chatpay-wallet/internal/api/types"
	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/service"
	"chatpay-wallet/internal/util"
)

// IdempotencyHeader carries a client retry key when the body does not.
const IdempotencyHeader = "Idempotency-Key"

// WalletHandler handles the operator endpoints of the wallet.
type WalletHandler struct {
	responder
	accounts      service.AccountService
	ledger        service.LedgerService
	beneficiaries service.BeneficiaryService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(accounts service.AccountService, ledger service.LedgerService, beneficiaries service.BeneficiaryService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		responder:     responder{logger: logger},
		accounts:      accounts,
		ledger:        ledger,
		beneficiaries: beneficiaries,
	}
}

// account resolves the {handle} path parameter.
func (h *WalletHandler) account(w http.ResponseWriter, r *http.Request) (*domain.Account, bool) {
	account, err := h.accounts.GetByHandle(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		h.respondWithError(w, err)
		return nil, false
	}
	return account, true
}

// GetBalance handles the get balance request.
// GET /accounts/{handle}/balance
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}

	summary, err := h.ledger.GetBalance(r.Context(), account.ID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"handle":            account.Handle,
		"status":            account.Status,
		"balance":           summary.Balance,
		"daily_remaining":   summary.DailyRemaining,
		"monthly_remaining": summary.MonthlyRemaining,
		"daily_spent":       summary.DailySpent,
		"monthly_spent":     summary.MonthlySpent,
	})
}

// GetTransactionHistory handles the get transaction history request.
// GET /accounts/{handle}/transactions
func (h *WalletHandler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	transactions, total, err := h.ledger.GetTransactionHistory(r.Context(), account.ID, limit, offset)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}

	h.respondWithJSON(w, http.StatusOK, types.PaginatedResponse[domain.Transaction]{
		Data:       transactions,
		Limit:      limit,
		Offset:     offset,
		TotalCount: total,
	})
}

// ListBeneficiaries handles the list beneficiaries request.
// GET /accounts/{handle}/beneficiaries
func (h *WalletHandler) ListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}

	list, err := h.beneficiaries.List(r.Context(), account.ID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if list == nil {
		list = []domain.Beneficiary{}
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"data": list})
}

// Activate marks an account verified after an out-of-band compliance check.
// POST /accounts/{handle}/activate
func (h *WalletHandler) Activate(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Activate(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, account)
}

// DepositRequest represents the request body for deposit.
type DepositRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Deposit handles the deposit money request.
// POST /accounts/{handle}/deposits
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	account, ok := h.account(w, r)
	if !ok {
		return
	}

	result, err := h.ledger.Deposit(r.Context(), service.DepositRequest{
		AccountID:      account.ID,
		Amount:         req.Amount,
		Note:           req.Note,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithResult(w, result)
}

// TransferRequest represents the request body for transfer.
type TransferRequest struct {
	From           string          `json:"from"`
	To             string          `json:"to"`
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Transfer handles the transfer money request.
// POST /transfers
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	if req.From == "" || req.To == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	sender, err := h.accounts.GetByHandle(r.Context(), req.From)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	result, err := h.ledger.Transfer(r.Context(), service.TransferRequest{
		FromHandle:     sender.Handle,
		ToHandle:       req.To,
		Amount:         req.Amount,
		Note:           req.Note,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithResult(w, result)
}

// RefundRequest represents the optional request body for refund.
type RefundRequest struct {
	Note string `json:"note"`
}

// Refund reverses a completed purchase.
// POST /transactions/{reference}/refund
func (h *WalletHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondWithError(w, util.ErrInvalidInput)
			return
		}
	}

	result, err := h.ledger.Refund(r.Context(), chi.URLParam(r, "reference"), req.Note)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithResult(w, result)
}

func idempotencyKey(r *http.Request, fromBody string) string {
	if key := strings.TrimSpace(fromBody); key != "" {
		return key
	}
	return strings.TrimSpace(r.Header.Get(IdempotencyHeader))
}
