// internal/service/account_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/repository"
	"chatpay-wallet/internal/security"
	"chatpay-wallet/internal/util"

	"github.com/shopspring/decimal"
)

// AccountService manages account identity and lifecycle. Balances are the
// ledger's business.
type AccountService interface {
	// GetOrCreate returns the account for handle, creating it pending
	// verification on first contact. created reports whether it was new.
	GetOrCreate(ctx context.Context, handle, displayName string) (account *domain.Account, created bool, err error)
	GetByHandle(ctx context.Context, handle string) (*domain.Account, error)
	// Activate marks the account compliance-verified and active.
	Activate(ctx context.Context, handle string) (*domain.Account, error)
}

type accountService struct {
	dbExecutor   repository.DBExecutor
	accountRepo  repository.AccountRepository
	dailyLimit   decimal.Decimal
	monthlyLimit decimal.Decimal
	logger       *slog.Logger
}

// NewAccountService creates an AccountService. New accounts get the given limits.
func NewAccountService(dbExecutor repository.DBExecutor, accountRepo repository.AccountRepository, dailyLimit, monthlyLimit decimal.Decimal, logger *slog.Logger) AccountService {
	return &accountService{
		dbExecutor:   dbExecutor,
		accountRepo:  accountRepo,
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		logger:       logger,
	}
}

func (s *accountService) GetOrCreate(ctx context.Context, handle, displayName string) (*domain.Account, bool, error) {
	handle, err := security.ValidatePhone(handle)
	if err != nil {
		return nil, false, util.ErrInvalidInput
	}

	account, err := s.accountRepo.GetAccountByHandle(ctx, s.dbExecutor, handle)
	if err == nil {
		return account, false, nil
	}
	if !util.IsError(err, util.ErrAccountNotFound) {
		return nil, false, fmt.Errorf("get or create account: %w", err)
	}

	account = domain.NewAccount(handle, security.Sanitize(displayName), s.dailyLimit, s.monthlyLimit, time.Now())
	if err := s.accountRepo.CreateAccount(ctx, s.dbExecutor, account); err != nil {
		if util.IsError(err, util.ErrDuplicateEntry) {
			account, err = s.accountRepo.GetAccountByHandle(ctx, s.dbExecutor, handle)
			return account, false, err
		}
		return nil, false, fmt.Errorf("get or create account: %w", err)
	}

	s.logger.Info("account created", "account_id", account.ID, "handle", security.MaskHandle(handle))
	return account, true, nil
}

func (s *accountService) GetByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	normalized, err := security.ValidatePhone(handle)
	if err != nil {
		return nil, util.ErrInvalidInput
	}
	return s.accountRepo.GetAccountByHandle(ctx, s.dbExecutor, normalized)
}

func (s *accountService) Activate(ctx context.Context, handle string) (*domain.Account, error) {
	account, err := s.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if err := s.accountRepo.UpdateStatus(ctx, s.dbExecutor, account.ID, domain.AccountStatusActive, true); err != nil {
		return nil, fmt.Errorf("activate account %d: %w", account.ID, err)
	}
	s.logger.Info("account activated", "account_id", account.ID)
	return s.accountRepo.GetAccountByID(ctx, s.dbExecutor, account.ID)
}
