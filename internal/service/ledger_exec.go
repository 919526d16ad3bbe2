// internal/service/ledger_exec.go
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/gateway"
	"chatpay-wallet/internal/lock"
	"chatpay-wallet/internal/repository"
	"chatpay-wallet/internal/security"
	"chatpay-wallet/internal/util"

	"github.com/shopspring/decimal"
)

// operation describes one debit: what to record, whether it settles through
// the gateway, and how to word the outcome.
type operation struct {
	txType         domain.TransactionType
	gatewayOp      gateway.Operation // empty when settled inside the wallet
	accountID      int64
	recipientID    int64 // transfers only
	amount         decimal.Decimal
	counterparty   string
	network        string
	bundle         string
	note           string
	idempotencyKey string
	beneficiaryID  *int64
	failure        string
	metadata       func(resp *gateway.Response) map[string]string
	success        func(tx *domain.Transaction, resp *gateway.Response) string
}

func (op *operation) lockKeys() []string {
	keys := []string{lock.AccountKey(op.accountID)}
	if op.recipientID != 0 {
		keys = append(keys, lock.AccountKey(op.recipientID))
	}
	return keys
}

// execute runs op while holding the locks of every account it touches.
func (s *ledgerService) execute(ctx context.Context, op *operation) (*Result, error) {
	var result *Result
	err := lock.WithLocks(ctx, s.locker, op.lockKeys(), func(ctx context.Context) error {
		var err error
		result, err = s.executeLocked(ctx, op)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.txType, err)
	}
	return result, nil
}

func (s *ledgerService) executeLocked(ctx context.Context, op *operation) (*Result, error) {
	if dup, err := s.findDuplicate(ctx, op.accountID, op.idempotencyKey); dup != nil || err != nil {
		return dup, err
	}

	account, err := s.accountRepo.GetAccountByID(ctx, s.dbExecutor, op.accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", op.accountID, err)
	}

	now := s.now().UTC()
	account.ApplyPeriodReset(now)
	fee, total := s.Quote(op.txType, op.amount)

	if r := checkPreconditions(account, op.amount, total); r != nil {
		s.logger.Info("transaction rejected", "account_id", account.ID, "type", op.txType, "reason", r.Reason)
		return r, nil
	}

	verdict, err := s.fraud.Check(ctx, s.dbExecutor, account, op.amount, op.counterparty)
	if err != nil {
		return nil, err
	}
	if verdict.Blocked {
		s.logger.Warn("transaction blocked by fraud rules", "account_id", account.ID, "type", op.txType, "rule", verdict.Reason)
		return rejected(ReasonFraudBlocked, "%s", verdict.Reason), nil
	}

	var recipient *domain.Account
	if op.recipientID != 0 {
		if recipient, err = s.accountRepo.GetAccountByID(ctx, s.dbExecutor, op.recipientID); err != nil {
			return nil, fmt.Errorf("failed to get recipient %d: %w", op.recipientID, err)
		}
	}

	tx := domain.NewTransaction(account.ID, op.txType, op.amount, fee, now)
	tx.Counterparty = domain.StringPtr(op.counterparty)
	tx.Network = domain.StringPtr(op.network)
	tx.Note = domain.StringPtr(op.note)
	tx.IdempotencyKey = domain.StringPtr(op.idempotencyKey)
	if err := s.transactionRepo.CreateTransaction(ctx, s.dbExecutor, tx); err != nil {
		if util.IsError(err, util.ErrDuplicateEntry) && op.idempotencyKey != "" {
			return s.findDuplicate(ctx, op.accountID, op.idempotencyKey)
		}
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	var resp *gateway.Response
	if op.gatewayOp != "" {
		resp, err = s.callGateway(ctx, op, tx)
		// Bookkeeping from here on must not be abandoned with the caller.
		ctx = context.WithoutCancel(ctx)
		if err != nil {
			s.logger.Error("gateway call failed", "reference", tx.Reference, "error", err)
			return s.failTransaction(ctx, tx, err.Error(), nil, op.failure)
		}
		if !resp.Success {
			reason := resp.Message
			if reason == "" {
				reason = "declined by gateway"
			}
			return s.failTransaction(ctx, tx, reason, domain.StringPtr(resp.Raw), op.failure)
		}
		tx.GatewayReference = domain.StringPtr(resp.Reference)
		tx.GatewayResponse = domain.StringPtr(resp.Raw)
		if op.metadata != nil {
			if err := setMetadata(tx, op.metadata(resp)); err != nil {
				return nil, err
			}
		}
	}

	before := account.Balance
	account.Balance = before.Sub(total)
	account.DailySpent = account.DailySpent.Add(op.amount)
	account.MonthlySpent = account.MonthlySpent.Add(op.amount)
	if recipient != nil {
		recipient.Balance = recipient.Balance.Add(op.amount)
	}
	s.stampCompleted(tx, before, account.Balance)

	if err := s.commit(ctx, tx, account, recipient, op.beneficiaryID); err != nil {
		return nil, s.abandon(ctx, tx, err)
	}

	s.logger.Info("transaction completed", "reference", tx.Reference, "type", tx.Type, "amount", tx.Amount.String(), "fee", tx.Fee.String())
	return &Result{Success: true, Message: op.success(tx, resp), Transaction: tx}, nil
}

// checkPreconditions applies the account rules in order; the first failing
// rule is reported.
func checkPreconditions(account *domain.Account, amount, total decimal.Decimal) *Result {
	switch {
	case account.Status != domain.AccountStatusActive:
		return rejected(ReasonAccountInactive, "Account is %s", account.Status)
	case !account.Verified:
		return rejected(ReasonNotVerified, "FICA verification incomplete")
	case amount.GreaterThan(account.AvailableDaily()):
		return rejected(ReasonDailyLimitExceeded, "Daily limit exceeded. Available: %s", rands(account.AvailableDaily()))
	case amount.GreaterThan(account.AvailableMonthly()):
		return rejected(ReasonMonthlyLimitExceed, "Monthly limit exceeded. Available: %s", rands(account.AvailableMonthly()))
	case account.Balance.LessThan(total):
		return rejected(ReasonInsufficientBalance, "Insufficient balance. Available: %s", rands(account.Balance))
	}
	return nil
}

func (s *ledgerService) callGateway(ctx context.Context, op *operation, tx *domain.Transaction) (*gateway.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	return s.gateway.Purchase(ctx, gateway.Request{
		Operation: op.gatewayOp,
		Reference: tx.Reference,
		Amount:    op.amount,
		Target:    op.counterparty,
		Network:   op.network,
		Bundle:    op.bundle,
	})
}

// findDuplicate returns the stored outcome of an earlier request with the same key.
func (s *ledgerService) findDuplicate(ctx context.Context, accountID int64, key string) (*Result, error) {
	if key == "" {
		return nil, nil
	}
	existing, err := s.transactionRepo.GetTransactionByIdempotencyKey(ctx, s.dbExecutor, accountID, key)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return &Result{
		Success:     existing.Status == domain.TransactionStatusCompleted,
		Reason:      ReasonDuplicateRequest,
		Message:     fmt.Sprintf("This request was already processed. Reference: %s", existing.Reference),
		Transaction: existing,
	}, nil
}

func (s *ledgerService) failTransaction(ctx context.Context, tx *domain.Transaction, reason string, raw *string, message string) (*Result, error) {
	failedAt := s.now().UTC()
	tx.FailureReason = &reason
	tx.FailedAt = &failedAt
	if raw != nil {
		tx.GatewayResponse = raw
	}
	if err := s.transactionRepo.MarkFailed(ctx, s.dbExecutor, tx); err != nil {
		return nil, fmt.Errorf("failed to mark %s failed: %w", tx.Reference, err)
	}
	s.logger.Warn("transaction failed", "reference", tx.Reference, "type", tx.Type, "reason", reason)
	return &Result{Reason: ReasonGatewayFailed, Message: message, Transaction: tx}, nil
}

// abandon records a transaction whose commit failed. When the gateway had
// already settled, the row carries its reference for reconciliation.
func (s *ledgerService) abandon(ctx context.Context, tx *domain.Transaction, commitErr error) error {
	s.logger.Error("ledger commit failed",
		"reference", tx.Reference, "gateway_reference", derefString(tx.GatewayReference), "error", commitErr)
	tx.BalanceBefore, tx.BalanceAfter, tx.CompletedAt = nil, nil, nil
	tx.Status = domain.TransactionStatusProcessing
	if _, err := s.failTransaction(ctx, tx, "ledger commit failed: "+commitErr.Error(), nil, ""); err != nil {
		s.logger.Error("failed to record abandoned transaction", "reference", tx.Reference, "error", err)
	}
	return fmt.Errorf("failed to commit %s: %w", tx.Reference, commitErr)
}

func (s *ledgerService) stampCompleted(tx *domain.Transaction, before, after decimal.Decimal) {
	completedAt := s.now().UTC()
	tx.BalanceBefore = &before
	tx.BalanceAfter = &after
	tx.CompletedAt = &completedAt
}

// commit writes the balance changes and completes tx in one database transaction.
func (s *ledgerService) commit(ctx context.Context, tx *domain.Transaction, account, counterpart *domain.Account, beneficiaryID *int64) error {
	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return fmt.Errorf("transaction controller does not implement DBExecutor")
	}

	if err := s.accountRepo.UpdateBalances(ctx, txExecutor, account); err != nil {
		return fmt.Errorf("failed to update account %d: %w", account.ID, err)
	}
	if counterpart != nil {
		if err := s.accountRepo.UpdateBalances(ctx, txExecutor, counterpart); err != nil {
			return fmt.Errorf("failed to update account %d: %w", counterpart.ID, err)
		}
	}
	if err := s.transactionRepo.MarkCompleted(ctx, txExecutor, tx); err != nil {
		return err
	}
	if beneficiaryID != nil {
		if err := s.beneficiaryRepo.TouchBeneficiary(ctx, txExecutor, *beneficiaryID, *tx.CompletedAt); err != nil && !util.IsError(err, util.ErrNotFound) {
			return fmt.Errorf("failed to touch beneficiary %d: %w", *beneficiaryID, err)
		}
	}

	return s.commitTx(txController)
}

// Deposit credits an account. Deposits carry no fee and no limits.
func (s *ledgerService) Deposit(ctx context.Context, req DepositRequest) (*Result, error) {
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return rejected(ReasonInvalidAmount, "Amount must be greater than zero with at most 2 decimal places"), nil
	}

	var result *Result
	err := s.locker.WithLock(ctx, lock.AccountKey(req.AccountID), func(ctx context.Context) error {
		dup, err := s.findDuplicate(ctx, req.AccountID, req.IdempotencyKey)
		if dup != nil || err != nil {
			result = dup
			return err
		}

		account, err := s.accountRepo.GetAccountByID(ctx, s.dbExecutor, req.AccountID)
		if err != nil {
			return fmt.Errorf("failed to get account %d: %w", req.AccountID, err)
		}
		if account.Status == domain.AccountStatusBlocked {
			result = rejected(ReasonAccountInactive, "Account is %s", account.Status)
			return nil
		}

		tx := domain.NewTransaction(account.ID, domain.TransactionTypeDeposit, req.Amount, decimal.Zero, s.now())
		tx.Note = domain.StringPtr(req.Note)
		tx.IdempotencyKey = domain.StringPtr(req.IdempotencyKey)
		result, err = s.credit(ctx, account, tx, func() string {
			return fmt.Sprintf("%s deposited. New balance: %s", rands(req.Amount), rands(account.Balance))
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	return result, nil
}

// Refund reverses a completed gateway purchase with a new refund
// transaction. The original row is left as it is and spend counters are not
// reduced.
func (s *ledgerService) Refund(ctx context.Context, reference, note string) (*Result, error) {
	original, err := s.transactionRepo.GetTransactionByReference(ctx, s.dbExecutor, reference)
	if err != nil {
		return nil, fmt.Errorf("refund: %w", err)
	}

	var result *Result
	err = s.locker.WithLock(ctx, lock.AccountKey(original.AccountID), func(ctx context.Context) error {
		original, err := s.transactionRepo.GetTransactionByReference(ctx, s.dbExecutor, reference)
		if err != nil {
			return err
		}
		if original.Status != domain.TransactionStatusCompleted || !original.Type.RequiresGateway() {
			return util.ErrNotRefundable
		}
		if _, err := s.transactionRepo.FindRefundFor(ctx, s.dbExecutor, reference); err == nil {
			return util.ErrAlreadyRefunded
		} else if !util.IsError(err, util.ErrNotFound) {
			return err
		}

		account, err := s.accountRepo.GetAccountByID(ctx, s.dbExecutor, original.AccountID)
		if err != nil {
			return fmt.Errorf("failed to get account %d: %w", original.AccountID, err)
		}

		tx := domain.NewTransaction(account.ID, domain.TransactionTypeRefund, original.Total, decimal.Zero, s.now())
		tx.RelatedReference = &original.Reference
		tx.Counterparty = original.Counterparty
		tx.Note = domain.StringPtr(note)
		result, err = s.credit(ctx, account, tx, func() string {
			return fmt.Sprintf("Refunded %s for %s", rands(tx.Amount), original.Reference)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("refund %s: %w", reference, err)
	}
	return result, nil
}

// credit records tx and adds its amount to account. The caller holds the account lock.
func (s *ledgerService) credit(ctx context.Context, account *domain.Account, tx *domain.Transaction, message func() string) (*Result, error) {
	if err := s.transactionRepo.CreateTransaction(ctx, s.dbExecutor, tx); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	before := account.Balance
	account.Balance = before.Add(tx.Amount)
	s.stampCompleted(tx, before, account.Balance)

	if err := s.commit(ctx, tx, account, nil, nil); err != nil {
		return nil, s.abandon(ctx, tx, err)
	}

	s.logger.Info("transaction completed", "reference", tx.Reference, "type", tx.Type, "amount", tx.Amount.String(),
		"handle", security.MaskHandle(account.Handle))
	return &Result{Success: true, Message: message(), Transaction: tx}, nil
}

func setMetadata(tx *domain.Transaction, metadata map[string]string) error {
	if len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for %s: %w", tx.Reference, err)
	}
	tx.Metadata = domain.StringPtr(string(raw))
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
