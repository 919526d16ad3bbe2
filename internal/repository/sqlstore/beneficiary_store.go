// internal/repository/sqlstore/beneficiary_store.go
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/repository"
	"chatpay-wallet/internal/util"
)

const beneficiaryColumns = `id, account_id, nickname, nickname_key, kind, value, network, created_at, last_used_at`

// BeneficiaryStore implements repository.BeneficiaryRepository.
type BeneficiaryStore struct {
	dialect
}

// NewBeneficiaryStore creates a BeneficiaryStore for the connection's driver.
func NewBeneficiaryStore(db *sqlx.DB) repository.BeneficiaryRepository {
	return &BeneficiaryStore{dialect: newDialect(db)}
}

// CreateBeneficiary inserts a beneficiary; a nickname clash yields util.ErrDuplicateEntry.
func (r *BeneficiaryStore) CreateBeneficiary(ctx context.Context, q repository.DBExecutor, b *domain.Beneficiary) error {
	if b.NicknameKey == "" {
		b.NicknameKey = domain.NicknameKey(b.Nickname)
	}
	query := r.rebind(`INSERT INTO beneficiaries (account_id, nickname, nickname_key, kind, value, network, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := q.QueryRowContext(ctx, query, b.AccountID, b.Nickname, b.NicknameKey, b.Kind, b.Value, b.Network, b.CreatedAt).Scan(&b.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return util.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create beneficiary: %w", err)
	}
	return nil
}

// ListBeneficiaries returns saved beneficiaries, most recently used first.
func (r *BeneficiaryStore) ListBeneficiaries(ctx context.Context, q repository.DBExecutor, accountID int64, kind *domain.BeneficiaryKind) ([]domain.Beneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries WHERE account_id = ?`
	args := []interface{}{accountID}
	if kind != nil {
		query += ` AND kind = ?`
		args = append(args, *kind)
	}
	query += ` ORDER BY last_used_at IS NULL, last_used_at DESC, created_at DESC, id DESC`

	beneficiaries := []domain.Beneficiary{}
	if err := q.SelectContext(ctx, &beneficiaries, r.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list beneficiaries for account %d: %w", accountID, err)
	}
	return beneficiaries, nil
}

// GetBeneficiaryByNickname looks a beneficiary up case-insensitively.
func (r *BeneficiaryStore) GetBeneficiaryByNickname(ctx context.Context, q repository.DBExecutor, accountID int64, nickname string) (*domain.Beneficiary, error) {
	var b domain.Beneficiary
	query := r.rebind(`SELECT ` + beneficiaryColumns + ` FROM beneficiaries WHERE account_id = ? AND nickname_key = ?`)
	if err := q.GetContext(ctx, &b, query, accountID, domain.NicknameKey(nickname)); err != nil {
		if err = mapNoRows(err); err == util.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get beneficiary: %w", err)
	}
	return &b, nil
}

// DeleteBeneficiary removes a beneficiary by nickname.
func (r *BeneficiaryStore) DeleteBeneficiary(ctx context.Context, q repository.DBExecutor, accountID int64, nickname string) error {
	query := r.rebind(`DELETE FROM beneficiaries WHERE account_id = ? AND nickname_key = ?`)
	result, err := q.ExecContext(ctx, query, accountID, domain.NicknameKey(nickname))
	if err != nil {
		return fmt.Errorf("failed to delete beneficiary: %w", err)
	}
	return checkAffected(result, util.ErrNotFound, "deleting beneficiary")
}

// TouchBeneficiary records that a beneficiary was just paid.
func (r *BeneficiaryStore) TouchBeneficiary(ctx context.Context, q repository.DBExecutor, id int64, usedAt time.Time) error {
	query := r.rebind(`UPDATE beneficiaries SET last_used_at = ? WHERE id = ?`)
	if _, err := q.ExecContext(ctx, query, usedAt.UTC(), id); err != nil {
		return fmt.Errorf("failed to touch beneficiary %d: %w", id, err)
	}
	return nil
}
