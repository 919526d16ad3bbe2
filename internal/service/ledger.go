// internal/service/ledger.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/gateway"
	"chatpay-wallet/internal/lock"
	"chatpay-wallet/internal/repository"
	"chatpay-wallet/internal/security"
	"chatpay-wallet/internal/util"
	"chatpay-wallet/pkg/db"

	"github.com/shopspring/decimal"
)

// Reason classifies why a ledger operation did not succeed.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonInvalidAmount       Reason = "invalid_amount"
	ReasonAmountAboveCeiling  Reason = "amount_above_ceiling"
	ReasonInvalidTarget       Reason = "invalid_target"
	ReasonAccountInactive     Reason = "account_inactive"
	ReasonNotVerified         Reason = "not_verified"
	ReasonDailyLimitExceeded  Reason = "daily_limit_exceeded"
	ReasonMonthlyLimitExceed  Reason = "monthly_limit_exceeded"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonFraudBlocked        Reason = "fraud_blocked"
	ReasonGatewayFailed       Reason = "gateway_failed"
	ReasonDuplicateRequest    Reason = "duplicate_request"
)

// Result is the outcome of a ledger operation. Rejections are Results, not
// errors; Transaction is nil when the request was rejected before a
// transaction row was written.
type Result struct {
	Success     bool
	Message     string
	Reason      Reason
	Transaction *domain.Transaction
}

func rejected(reason Reason, format string, args ...interface{}) *Result {
	return &Result{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// PurchaseRequest is a debit settled through the payment gateway.
type PurchaseRequest struct {
	AccountID      int64
	Amount         decimal.Decimal
	Target         string // phone, meter or bill account number
	Network        string // airtime and data
	Bundle         string // data, informational
	Provider       string // bill payee
	BeneficiaryID  *int64 // stamped as used on success
	Note           string
	IdempotencyKey string
}

// TransferRequest moves money between two wallet accounts.
type TransferRequest struct {
	FromHandle     string
	ToHandle       string
	Amount         decimal.Decimal
	Note           string
	IdempotencyKey string
}

// DepositRequest credits an account from outside the wallet.
type DepositRequest struct {
	AccountID      int64
	Amount         decimal.Decimal
	Note           string
	IdempotencyKey string
}

// BalanceSummary is an account's balance and remaining allowances.
type BalanceSummary struct {
	Account          *domain.Account
	Balance          decimal.Decimal
	DailyRemaining   decimal.Decimal
	MonthlyRemaining decimal.Decimal
	DailySpent       decimal.Decimal
	MonthlySpent     decimal.Decimal
}

// LedgerConfig holds the money policy of the ledger.
type LedgerConfig struct {
	Fees           domain.FeePolicy
	MinAmount      decimal.Decimal
	MaxAmount      decimal.Decimal // per-transaction ceiling
	DailyLimit     decimal.Decimal // for accounts created by the ledger
	MonthlyLimit   decimal.Decimal
	GatewayTimeout time.Duration
}

// DefaultLedgerConfig returns R1 minimum, R5000 ceiling, R25000/R100000
// limits and a 15s gateway timeout.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Fees:           domain.DefaultFeePolicy(),
		MinAmount:      decimal.NewFromInt(1),
		MaxAmount:      decimal.NewFromInt(5000),
		DailyLimit:     decimal.NewFromInt(25000),
		MonthlyLimit:   decimal.NewFromInt(100000),
		GatewayTimeout: 15 * time.Second,
	}
}

// FraudChecker screens a debit before it is recorded.
type FraudChecker interface {
	Check(ctx context.Context, q repository.DBExecutor, account *domain.Account, amount decimal.Decimal, counterparty string) (security.FraudVerdict, error)
}

// LedgerService is the only component that mutates balances.
type LedgerService interface {
	Transfer(ctx context.Context, req TransferRequest) (*Result, error)
	BuyAirtime(ctx context.Context, req PurchaseRequest) (*Result, error)
	BuyData(ctx context.Context, req PurchaseRequest) (*Result, error)
	BuyElectricity(ctx context.Context, req PurchaseRequest) (*Result, error)
	PayBill(ctx context.Context, req PurchaseRequest) (*Result, error)
	Withdraw(ctx context.Context, req PurchaseRequest) (*Result, error)
	Deposit(ctx context.Context, req DepositRequest) (*Result, error)
	Refund(ctx context.Context, reference, note string) (*Result, error)
	GetBalance(ctx context.Context, accountID int64) (*BalanceSummary, error)
	GetTransactionHistory(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, int64, error)
	// Quote returns the fee and total for a debit without executing it.
	Quote(txType domain.TransactionType, amount decimal.Decimal) (fee, total decimal.Decimal)
	// Precheck returns the rejection a debit would meet right now, or nil.
	// It reads without locking, so execution re-checks everything.
	Precheck(ctx context.Context, accountID int64, txType domain.TransactionType, amount decimal.Decimal) (*Result, error)
}

// ledgerService implements LedgerService.
type ledgerService struct {
	dbBeginner      db.DBTxBeginner
	dbExecutor      repository.DBExecutor
	accountRepo     repository.AccountRepository
	transactionRepo repository.TransactionRepository
	beneficiaryRepo repository.BeneficiaryRepository
	fraud           FraudChecker
	gateway         gateway.Gateway
	locker          lock.Locker
	cfg             LedgerConfig
	logger          *slog.Logger
	beginTx         db.BeginTxFunc
	commitTx        db.CommitTxFunc
	rollbackTx      db.RollbackTxFunc
	now             func() time.Time
}

// NewLedgerService creates a new instance of LedgerService.
func NewLedgerService(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	accountRepo repository.AccountRepository,
	transactionRepo repository.TransactionRepository,
	beneficiaryRepo repository.BeneficiaryRepository,
	fraud FraudChecker,
	gw gateway.Gateway,
	locker lock.Locker,
	cfg LedgerConfig,
	logger *slog.Logger,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
) LedgerService {
	return &ledgerService{
		dbBeginner:      dbBeginner,
		dbExecutor:      dbExecutor,
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		beneficiaryRepo: beneficiaryRepo,
		fraud:           fraud,
		gateway:         gw,
		locker:          locker,
		cfg:             cfg,
		logger:          logger,
		beginTx:         beginTx,
		commitTx:        commitTx,
		rollbackTx:      rollbackTx,
		now:             time.Now,
	}
}

func (s *ledgerService) Quote(txType domain.TransactionType, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	fee := s.cfg.Fees.Fee(txType, amount)
	return fee, amount.Add(fee)
}

func (s *ledgerService) Precheck(ctx context.Context, accountID int64, txType domain.TransactionType, amount decimal.Decimal) (*Result, error) {
	if r := s.validateAmount(amount); r != nil {
		return r, nil
	}
	account, err := s.accountRepo.GetAccountByID(ctx, s.dbExecutor, accountID)
	if err != nil {
		return nil, fmt.Errorf("precheck: failed to get account %d: %w", accountID, err)
	}
	account.ApplyPeriodReset(s.now())
	_, total := s.Quote(txType, amount)
	return checkPreconditions(account, amount, total), nil
}

// Transfer sends money to another wallet, creating the recipient's account on
// first contact.
func (s *ledgerService) Transfer(ctx context.Context, req TransferRequest) (*Result, error) {
	if r := s.validateAmount(req.Amount); r != nil {
		return r, nil
	}
	to, err := security.ValidatePhone(req.ToHandle)
	if err != nil {
		return rejected(ReasonInvalidTarget, "Invalid recipient number"), nil
	}

	sender, err := s.accountRepo.GetAccountByHandle(ctx, s.dbExecutor, req.FromHandle)
	if err != nil {
		return nil, fmt.Errorf("transfer: failed to get sender: %w", err)
	}
	if sender.Handle == to {
		return rejected(ReasonInvalidTarget, "You cannot send money to yourself"), nil
	}

	recipient, err := s.recipientAccount(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	return s.execute(ctx, &operation{
		txType:         domain.TransactionTypeTransfer,
		accountID:      sender.ID,
		recipientID:    recipient.ID,
		amount:         req.Amount,
		counterparty:   to,
		note:           req.Note,
		idempotencyKey: req.IdempotencyKey,
		failure:        "Transaction failed. Please try again.",
		success: func(tx *domain.Transaction, _ *gateway.Response) string {
			return fmt.Sprintf("Successfully sent %s to %s", rands(tx.Amount), security.LocalFormat(to))
		},
	})
}

// recipientAccount returns the account for handle, creating it pending
// verification when it does not exist yet.
func (s *ledgerService) recipientAccount(ctx context.Context, handle string) (*domain.Account, error) {
	account, err := s.accountRepo.GetAccountByHandle(ctx, s.dbExecutor, handle)
	if err == nil {
		return account, nil
	}
	if !util.IsError(err, util.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}

	account = domain.NewAccount(handle, "", s.cfg.DailyLimit, s.cfg.MonthlyLimit, s.now())
	if err := s.accountRepo.CreateAccount(ctx, s.dbExecutor, account); err != nil {
		if util.IsError(err, util.ErrDuplicateEntry) {
			return s.accountRepo.GetAccountByHandle(ctx, s.dbExecutor, handle)
		}
		return nil, fmt.Errorf("failed to create recipient: %w", err)
	}
	s.logger.Info("recipient account created", "handle", security.MaskHandle(handle))
	return account, nil
}

func (s *ledgerService) BuyAirtime(ctx context.Context, req PurchaseRequest) (*Result, error) {
	phone, r := s.validatePurchase(req, true)
	if r != nil {
		return r, nil
	}
	return s.execute(ctx, &operation{
		txType:         domain.TransactionTypeAirtime,
		gatewayOp:      gateway.OperationAirtime,
		accountID:      req.AccountID,
		amount:         req.Amount,
		counterparty:   phone,
		network:        strings.ToLower(req.Network),
		note:           req.Note,
		idempotencyKey: req.IdempotencyKey,
		beneficiaryID:  req.BeneficiaryID,
		failure:        "Airtime purchase failed. Please try again.",
		success: func(tx *domain.Transaction, _ *gateway.Response) string {
			return fmt.Sprintf("%s %s airtime sent to %s", rands(tx.Amount), strings.ToUpper(req.Network), security.LocalFormat(phone))
		},
	})
}

func (s *ledgerService) BuyData(ctx context.Context, req PurchaseRequest) (*Result, error) {
	phone, r := s.validatePurchase(req, true)
	if r != nil {
		return r, nil
	}
	return s.execute(ctx, &operation{
		txType:         domain.TransactionTypeData,
		gatewayOp:      gateway.OperationData,
		accountID:      req.AccountID,
		amount:         req.Amount,
		counterparty:   phone,
		network:        strings.ToLower(req.Network),
		bundle:         req.Bundle,
		note:           req.Note,
		idempotencyKey: req.IdempotencyKey,
		beneficiaryID:  req.BeneficiaryID,
		failure:        "Data purchase failed. Please try again.",
		metadata: func(*gateway.Response) map[string]string {
			if req.Bundle == "" {
				return nil
			}
			return map[string]string{"bundle": req.Bundle}
		},
		success: func(tx *domain.Transaction, _ *gateway.Response) string {
			return fmt.Sprintf("%s %s data sent to %s", rands(tx.Amount), strings.ToUpper(req.Network), security.LocalFormat(phone))
		},
	})
}

func (s *ledgerService) BuyElectricity(ctx context.Context, req PurchaseRequest) (*Result, error) {
	if r := s.validateAmount(req.Amount); r != nil {
		return r, nil
	}
	meter := strings.TrimSpace(req.Target)
	if !isMeterNumber(meter) {
		return rejected(ReasonInvalidTarget, "Meter number must be 11 digits"), nil
	}
	units := req.Amount.Div(decimal.RequireFromString("2.5")).Round(2)

	return s.execute(ctx, &operation{
		txType:         domain.TransactionTypeElectricity,
		gatewayOp:      gateway.OperationElectricity,
		accountID:      req.AccountID,
		amount:         req.Amount,
		counterparty:   meter,
		note:           req.Note,
		idempotencyKey: req.IdempotencyKey,
		beneficiaryID:  req.BeneficiaryID,
		failure:        "Electricity purchase failed. Please try again.",
		metadata: func(resp *gateway.Response) map[string]string {
			return map[string]string{"meter_number": meter, "token": resp.Token, "units": units.StringFixed(2)}
		},
		success: func(tx *domain.Transaction, resp *gateway.Response) string {
			return fmt.Sprintf("%s electricity purchased. Token: %s (%s units)", rands(tx.Amount), resp.Token, units.StringFixed(2))
		},
	})
}

func (s *ledgerService) PayBill(ctx context.Context, req PurchaseRequest) (*Result, error) {
	if r := s.validateAmount(req.Amount); r != nil {
		return r, nil
	}
	accountNumber := strings.TrimSpace(req.Target)
	if accountNumber == "" {
		return rejected(ReasonInvalidTarget, "Bill account number is required"), nil
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		provider = "biller"
	}

	return s.execute(ctx, &operation{
		txType:         domain.TransactionTypeBill,
		gatewayOp:      gateway.OperationBill,
		accountID:      req.AccountID,
		amount:         req.Amount,
		counterparty:   accountNumber,
		network:        provider,
		note:           req.Note,
		idempotencyKey: req.IdempotencyKey,
		beneficiaryID:  req.BeneficiaryID,
		failure:        "Bill payment failed. Please try again.",
		success: func(tx *domain.Transaction, _ *gateway.Response) string {
			return fmt.Sprintf("%s paid to %s account %s", rands(tx.Amount), provider, accountNumber)
		},
	})
}

// Withdraw pays out to the account holder's own number.
func (s *ledgerService) Withdraw(ctx context.Context, req PurchaseRequest) (*Result, error) {
	if r := s.validateAmount(req.Amount); r != nil {
		return r, nil
	}
	account, err := s.accountRepo.GetAccountByID(ctx, s.dbExecutor, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("withdraw: failed to get account %d: %w", req.AccountID, err)
	}

	return s.execute(ctx, &operation{
		txType:         domain.TransactionTypeWithdrawal,
		gatewayOp:      gateway.OperationWithdrawal,
		accountID:      req.AccountID,
		amount:         req.Amount,
		counterparty:   account.Handle,
		note:           req.Note,
		idempotencyKey: req.IdempotencyKey,
		failure:        "Withdrawal failed. Please try again.",
		success: func(tx *domain.Transaction, _ *gateway.Response) string {
			return fmt.Sprintf("%s withdrawal sent. Reference: %s", rands(tx.Amount), tx.Reference)
		},
	})
}

// GetBalance returns the balance after applying any pending period reset.
func (s *ledgerService) GetBalance(ctx context.Context, accountID int64) (*BalanceSummary, error) {
	var summary *BalanceSummary
	err := s.locker.WithLock(ctx, lock.AccountKey(accountID), func(ctx context.Context) error {
		account, err := s.accountRepo.GetAccountByID(ctx, s.dbExecutor, accountID)
		if err != nil {
			return err
		}
		if account.ApplyPeriodReset(s.now()) {
			if err := s.accountRepo.UpdateBalances(ctx, s.dbExecutor, account); err != nil {
				return fmt.Errorf("failed to persist period reset: %w", err)
			}
		}
		summary = &BalanceSummary{
			Account:          account,
			Balance:          account.Balance,
			DailyRemaining:   account.AvailableDaily(),
			MonthlyRemaining: account.AvailableMonthly(),
			DailySpent:       account.DailySpent,
			MonthlySpent:     account.MonthlySpent,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return summary, nil
}

// GetTransactionHistory retrieves a paginated list of transactions for an account.
func (s *ledgerService) GetTransactionHistory(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.accountRepo.GetAccountByID(ctx, s.dbExecutor, accountID); err != nil {
		return nil, 0, fmt.Errorf("get transaction history: %w", err)
	}

	transactions, total, err := s.transactionRepo.ListTransactionsByAccount(ctx, s.dbExecutor, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}
	return transactions, total, nil
}

func (s *ledgerService) validateAmount(amount decimal.Decimal) *Result {
	switch {
	case !amount.IsPositive():
		return rejected(ReasonInvalidAmount, "Amount must be greater than zero")
	case !amount.Equal(amount.Round(2)):
		return rejected(ReasonInvalidAmount, "Amount can have at most 2 decimal places")
	case amount.LessThan(s.cfg.MinAmount):
		return rejected(ReasonInvalidAmount, "Minimum amount is %s", rands(s.cfg.MinAmount))
	case amount.GreaterThan(s.cfg.MaxAmount):
		return rejected(ReasonAmountAboveCeiling, "Maximum amount per transaction is %s", rands(s.cfg.MaxAmount))
	}
	return nil
}

// validatePurchase checks the amount and, for phone targets, normalizes the number.
func (s *ledgerService) validatePurchase(req PurchaseRequest, phoneTarget bool) (string, *Result) {
	if r := s.validateAmount(req.Amount); r != nil {
		return "", r
	}
	if !phoneTarget {
		return req.Target, nil
	}
	phone, err := security.ValidatePhone(req.Target)
	if err != nil {
		return "", rejected(ReasonInvalidTarget, "Invalid phone number")
	}
	if strings.TrimSpace(req.Network) == "" {
		return "", rejected(ReasonInvalidTarget, "Network is required")
	}
	return phone, nil
}

func isMeterNumber(s string) bool {
	if len(s) != 11 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// rands formats a money amount as R123.45.
func rands(d decimal.Decimal) string {
	return "R" + d.StringFixed(2)
}
