// internal/repository/beneficiary_repo.go
package repository

import (
	"context"
	"time"

	"chatpay-wallet/internal/domain"
)

// BeneficiaryRepository defines the interface for saved payment targets.
type BeneficiaryRepository interface {
	CreateBeneficiary(ctx context.Context, q DBExecutor, beneficiary *domain.Beneficiary) error
	// ListBeneficiaries returns the account's beneficiaries, optionally filtered by kind,
	// most recently used first.
	ListBeneficiaries(ctx context.Context, q DBExecutor, accountID int64, kind *domain.BeneficiaryKind) ([]domain.Beneficiary, error)
	GetBeneficiaryByNickname(ctx context.Context, q DBExecutor, accountID int64, nickname string) (*domain.Beneficiary, error)
	DeleteBeneficiary(ctx context.Context, q DBExecutor, accountID int64, nickname string) error
	TouchBeneficiary(ctx context.Context, q DBExecutor, id int64, usedAt time.Time) error
}
