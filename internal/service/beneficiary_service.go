// internal/service/beneficiary_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chatpay-wallet/internal/classifier"
	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/repository"
	"chatpay-wallet/internal/security"
	"chatpay-wallet/internal/util"
)

// MaxBeneficiaries caps how many targets one account may save.
const MaxBeneficiaries = 50

// BeneficiaryService manages saved payment targets. Beneficiaries are only
// created and deleted by explicit user commands.
type BeneficiaryService interface {
	Save(ctx context.Context, accountID int64, nickname string, kind domain.BeneficiaryKind, value string) (*domain.Beneficiary, string, error)
	List(ctx context.Context, accountID int64) ([]domain.Beneficiary, error)
	Delete(ctx context.Context, accountID int64, nickname string) (string, error)
	// ListBeneficiaries lets the service act as the classifier's lookup.
	ListBeneficiaries(ctx context.Context, accountID int64) ([]domain.Beneficiary, error)
}

type beneficiaryService struct {
	dbExecutor      repository.DBExecutor
	beneficiaryRepo repository.BeneficiaryRepository
	logger          *slog.Logger
}

// NewBeneficiaryService creates a BeneficiaryService.
func NewBeneficiaryService(dbExecutor repository.DBExecutor, beneficiaryRepo repository.BeneficiaryRepository, logger *slog.Logger) BeneficiaryService {
	return &beneficiaryService{dbExecutor: dbExecutor, beneficiaryRepo: beneficiaryRepo, logger: logger}
}

// Save stores a beneficiary. Rejections come back as a message with a nil
// beneficiary and no error.
func (s *beneficiaryService) Save(ctx context.Context, accountID int64, nickname string, kind domain.BeneficiaryKind, value string) (*domain.Beneficiary, string, error) {
	nickname = strings.TrimSpace(security.Sanitize(nickname))
	value = strings.TrimSpace(value)
	if nickname == "" || value == "" {
		return nil, "Please provide a name and a number.", nil
	}
	if len(nickname) > 50 {
		return nil, "That name is too long. Please use 50 characters or fewer.", nil
	}

	network := ""
	switch kind {
	case domain.BeneficiaryKindPhone:
		phone, err := security.ValidatePhone(value)
		if err != nil {
			return nil, "That doesn't look like a valid SA phone number.", nil
		}
		value = phone
		network = classifier.InferNetwork(phone)
	case domain.BeneficiaryKindMeter:
		if !isMeterNumber(value) {
			return nil, "Meter numbers must be 11 digits.", nil
		}
	}

	existing, err := s.beneficiaryRepo.ListBeneficiaries(ctx, s.dbExecutor, accountID, nil)
	if err != nil {
		return nil, "", fmt.Errorf("save beneficiary: %w", err)
	}
	if len(existing) >= MaxBeneficiaries {
		return nil, fmt.Sprintf("You can save up to %d beneficiaries. Delete one first.", MaxBeneficiaries), nil
	}

	b := domain.NewBeneficiary(accountID, nickname, kind, value, network)
	if err := s.beneficiaryRepo.CreateBeneficiary(ctx, s.dbExecutor, b); err != nil {
		if util.IsError(err, util.ErrDuplicateEntry) {
			return nil, fmt.Sprintf("You already have a beneficiary called '%s'.", nickname), nil
		}
		return nil, "", fmt.Errorf("save beneficiary: %w", err)
	}

	s.logger.Info("beneficiary saved", "account_id", accountID, "kind", kind)
	return b, fmt.Sprintf("✅ Saved *%s*: %s", b.Nickname, displayValue(b)), nil
}

func (s *beneficiaryService) List(ctx context.Context, accountID int64) ([]domain.Beneficiary, error) {
	list, err := s.beneficiaryRepo.ListBeneficiaries(ctx, s.dbExecutor, accountID, nil)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries: %w", err)
	}
	return list, nil
}

func (s *beneficiaryService) ListBeneficiaries(ctx context.Context, accountID int64) ([]domain.Beneficiary, error) {
	return s.List(ctx, accountID)
}

func (s *beneficiaryService) Delete(ctx context.Context, accountID int64, nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	err := s.beneficiaryRepo.DeleteBeneficiary(ctx, s.dbExecutor, accountID, nickname)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return fmt.Sprintf("No beneficiary called '%s' found.", nickname), nil
		}
		return "", fmt.Errorf("delete beneficiary: %w", err)
	}
	return fmt.Sprintf("🗑️ Deleted *%s*", nickname), nil
}

// FormatBeneficiaryList renders saved beneficiaries for a chat reply.
func FormatBeneficiaryList(list []domain.Beneficiary) string {
	if len(list) == 0 {
		return "You have no saved beneficiaries yet.\n\nSave one with:\n• save thabo 0821234567\n• save home meter 12345678901"
	}
	var b strings.Builder
	b.WriteString("📒 *Saved Beneficiaries*\n")
	for i := range list {
		fmt.Fprintf(&b, "\n%s %s: %s", kindIcon(list[i].Kind), list[i].Nickname, displayValue(&list[i]))
	}
	return b.String()
}

func displayValue(b *domain.Beneficiary) string {
	if b.Kind == domain.BeneficiaryKindPhone {
		v := security.LocalFormat(b.Value)
		if n := b.NetworkName(); n != "" {
			v += " (" + strings.ToUpper(n) + ")"
		}
		return v
	}
	return b.Value
}

func kindIcon(kind domain.BeneficiaryKind) string {
	switch kind {
	case domain.BeneficiaryKindPhone:
		return "📱"
	case domain.BeneficiaryKindMeter:
		return "⚡"
	default:
		return "💳"
	}
}
