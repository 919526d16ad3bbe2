// internal/security/pin.go
package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/lock"
	"chatpay-wallet/internal/repository"
)

// PIN format errors. The messages are shown to the user as-is.
var (
	ErrPINRequired   = errors.New("PIN is required")
	ErrPINNotNumeric = errors.New("PIN must contain only numbers")
	ErrPINLength     = errors.New("PIN must be 4-6 digits")
	ErrPINWeak       = errors.New("PIN is too weak. Choose a stronger PIN")
)

// PINState is the credential state of an account.
type PINState string

const (
	PINStateNoPIN    PINState = "no_pin"
	PINStateUnlocked PINState = "unlocked"
	PINStateLocked   PINState = "locked"
)

// PINConfig holds the PIN policy.
type PINConfig struct {
	MaxAttempts int
	Lockout     time.Duration
	BcryptCost  int
	DenyList    []string
}

// DefaultPINConfig returns three attempts, a 30 minute lockout and the default bcrypt cost.
func DefaultPINConfig() PINConfig {
	return PINConfig{
		MaxAttempts: 3,
		Lockout:     30 * time.Minute,
		BcryptCost:  bcrypt.DefaultCost,
		DenyList: []string{
			"0000", "1111", "2222", "3333", "4444", "5555",
			"6666", "7777", "8888", "9999", "1234", "4321",
		},
	}
}

// ValidatePINFormat checks a candidate PIN against the format rules and the deny-list.
func ValidatePINFormat(pin string, denyList []string) error {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return ErrPINRequired
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrPINNotNumeric
		}
	}
	if len(pin) < 4 || len(pin) > 6 {
		return ErrPINLength
	}
	for _, weak := range denyList {
		if pin == weak {
			return ErrPINWeak
		}
	}
	if isRepeated(pin) || isRun(pin, 1) || isRun(pin, -1) {
		return ErrPINWeak
	}
	return nil
}

func isRepeated(pin string) bool {
	return strings.Count(pin, pin[:1]) == len(pin)
}

func isRun(pin string, step int) bool {
	for i := 1; i < len(pin); i++ {
		if int(pin[i])-int(pin[i-1]) != step {
			return false
		}
	}
	return true
}

// Status derives the credential state at now. Lockout expiry is evaluated
// lazily; nothing clears it in the background.
func Status(account *domain.Account, now time.Time) PINState {
	if !account.HasPIN() {
		return PINStateNoPIN
	}
	if account.PINLockedUntil != nil && account.PINLockedUntil.After(now) {
		return PINStateLocked
	}
	return PINStateUnlocked
}

// PINResult is the outcome of a PIN operation as shown to the user.
type PINResult struct {
	OK      bool
	Locked  bool // further attempts are refused until the lockout expires
	Message string
}

// PINService manages the PIN lifecycle of accounts.
type PINService struct {
	db       repository.DBExecutor
	accounts repository.AccountRepository
	locker   lock.Locker
	cfg      PINConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewPINService creates a PINService.
func NewPINService(db repository.DBExecutor, accounts repository.AccountRepository, locker lock.Locker, cfg PINConfig, logger *slog.Logger) *PINService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultPINConfig().MaxAttempts
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &PINService{
		db:       db,
		accounts: accounts,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetPIN validates and stores a new PIN, clearing any failed attempts and lockout.
func (s *PINService) SetPIN(ctx context.Context, accountID int64, pin string) (*PINResult, error) {
	pin = strings.TrimSpace(pin)
	if err := ValidatePINFormat(pin, s.cfg.DenyList); err != nil {
		return &PINResult{Message: err.Error()}, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("set pin: failed to hash PIN: %w", err)
	}
	hashed := string(hash)

	err = s.locker.WithLock(ctx, lock.AccountKey(accountID), func(ctx context.Context) error {
		return s.accounts.UpdatePINState(ctx, s.db, accountID, &hashed, 0, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("set pin: %w", err)
	}

	s.logger.Info("PIN set", "account_id", accountID)
	return &PINResult{OK: true, Message: "PIN set successfully! You can now make transactions"}, nil
}

// VerifyPIN checks pin against the stored hash and drives the lockout state machine.
func (s *PINService) VerifyPIN(ctx context.Context, accountID int64, pin string) (*PINResult, error) {
	var result *PINResult
	err := s.locker.WithLock(ctx, lock.AccountKey(accountID), func(ctx context.Context) error {
		account, err := s.accounts.GetAccountByID(ctx, s.db, accountID)
		if err != nil {
			return err
		}
		result, err = s.verifyLocked(ctx, account, strings.TrimSpace(pin))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("verify pin: %w", err)
	}
	return result, nil
}

func (s *PINService) verifyLocked(ctx context.Context, account *domain.Account, pin string) (*PINResult, error) {
	now := s.now().UTC()

	switch Status(account, now) {
	case PINStateNoPIN:
		return &PINResult{Message: "Please set up your PIN first. Reply 'SET PIN' to create one"}, nil
	case PINStateLocked:
		minutes := int(math.Ceil(account.PINLockedUntil.Sub(now).Minutes()))
		return &PINResult{Locked: true, Message: fmt.Sprintf("PIN locked. Try again in %d minutes", minutes)}, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(*account.PINHash), []byte(pin)) == nil {
		if account.PINAttempts != 0 || account.PINLockedUntil != nil {
			if err := s.accounts.UpdatePINState(ctx, s.db, account.ID, account.PINHash, 0, nil); err != nil {
				return nil, err
			}
		}
		return &PINResult{OK: true, Message: "PIN verified"}, nil
	}

	attempts := account.PINAttempts + 1
	if attempts >= s.cfg.MaxAttempts {
		lockedUntil := now.Add(s.cfg.Lockout)
		if err := s.accounts.UpdatePINState(ctx, s.db, account.ID, account.PINHash, 0, &lockedUntil); err != nil {
			return nil, err
		}
		s.logger.Warn("PIN locked after failed attempts", "account_id", account.ID, "locked_until", lockedUntil)
		return &PINResult{Locked: true, Message: fmt.Sprintf("Too many failed attempts. PIN locked for %d minutes", int(s.cfg.Lockout.Minutes()))}, nil
	}

	if err := s.accounts.UpdatePINState(ctx, s.db, account.ID, account.PINHash, attempts, nil); err != nil {
		return nil, err
	}
	return &PINResult{Message: fmt.Sprintf("Incorrect PIN. %d attempts remaining", s.cfg.MaxAttempts-attempts)}, nil
}
