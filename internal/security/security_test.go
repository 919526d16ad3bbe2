// internal/security/security_test.go
package security

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/lock"
	"chatpay-wallet/internal/repository"
	"chatpay-wallet/internal/repository/sqlstore"
	"chatpay-wallet/pkg/db"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newAccount(t *testing.T, conn *sqlx.DB, accounts repository.AccountRepository, created time.Time) *domain.Account {
	t.Helper()
	acc := domain.NewAccount("+27821234567", "", decimal.NewFromInt(25000), decimal.NewFromInt(100000), created)
	require.NoError(t, accounts.CreateAccount(context.Background(), conn, acc))
	return acc
}

func TestValidatePINFormat(t *testing.T) {
	deny := DefaultPINConfig().DenyList
	tests := []struct {
		pin  string
		want error
	}{
		{"", ErrPINRequired},
		{"12a4", ErrPINNotNumeric},
		{"123", ErrPINLength},
		{"1234567", ErrPINLength},
		{"0000", ErrPINWeak},
		{"1234", ErrPINWeak},
		{"4321", ErrPINWeak},
		{"777777", ErrPINWeak},
		{"23456", ErrPINWeak},
		{"987654", ErrPINWeak},
		{"2580", nil},
		{" 1357 ", nil},
		{"135791", nil},
	}
	for _, tt := range tests {
		t.Run(tt.pin, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidatePINFormat(tt.pin, deny))
		})
	}
}

func TestPINService_Lifecycle(t *testing.T) {
	conn := newTestDB(t)
	accounts := sqlstore.NewAccountStore(conn)
	acc := newAccount(t, conn, accounts, time.Now())
	ctx := context.Background()

	cfg := DefaultPINConfig()
	cfg.BcryptCost = bcrypt.MinCost
	svc := NewPINService(conn, accounts, lock.NewMemoryLocker(), cfg, discardLogger())
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	res, err := svc.VerifyPIN(ctx, acc.ID, "2580")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "Please set up your PIN first. Reply 'SET PIN' to create one", res.Message)

	res, err = svc.SetPIN(ctx, acc.ID, "1111")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ErrPINWeak.Error(), res.Message)

	res, err = svc.SetPIN(ctx, acc.ID, "2580")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "PIN set successfully! You can now make transactions", res.Message)

	stored, err := accounts.GetAccountByID(ctx, conn, acc.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "2580", *stored.PINHash, "only the hash is stored")

	res, err = svc.VerifyPIN(ctx, acc.ID, "2580")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "PIN verified", res.Message)

	t.Run("three failures lock the PIN", func(t *testing.T) {
		res, err := svc.VerifyPIN(ctx, acc.ID, "1357")
		require.NoError(t, err)
		assert.Equal(t, "Incorrect PIN. 2 attempts remaining", res.Message)

		res, err = svc.VerifyPIN(ctx, acc.ID, "1357")
		require.NoError(t, err)
		assert.Equal(t, "Incorrect PIN. 1 attempts remaining", res.Message)

		res, err = svc.VerifyPIN(ctx, acc.ID, "1357")
		require.NoError(t, err)
		assert.Equal(t, "Too many failed attempts. PIN locked for 30 minutes", res.Message)

		locked, err := accounts.GetAccountByID(ctx, conn, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, locked.PINAttempts, "counter resets when the lock is set")
		assert.Equal(t, PINStateLocked, Status(locked, clock))
	})

	t.Run("correct PIN during lockout is rejected", func(t *testing.T) {
		clock = clock.Add(10 * time.Minute)
		res, err := svc.VerifyPIN(ctx, acc.ID, "2580")
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Equal(t, "PIN locked. Try again in 20 minutes", res.Message)
	})

	t.Run("lockout expires lazily", func(t *testing.T) {
		clock = clock.Add(21 * time.Minute)
		res, err := svc.VerifyPIN(ctx, acc.ID, "2580")
		require.NoError(t, err)
		assert.True(t, res.OK)

		cleared, err := accounts.GetAccountByID(ctx, conn, acc.ID)
		require.NoError(t, err)
		assert.Nil(t, cleared.PINLockedUntil)
		assert.Equal(t, PINStateUnlocked, Status(cleared, clock))
	})
}

func TestFraudDetector(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	setup := func(t *testing.T, created time.Time) (*sqlx.DB, *domain.Account, repository.TransactionRepository, *FraudDetector) {
		conn := newTestDB(t)
		acc := newAccount(t, conn, sqlstore.NewAccountStore(conn), created)
		txs := sqlstore.NewTransactionStore(conn)
		d := NewFraudDetector(txs, DefaultFraudConfig())
		d.now = func() time.Time { return now }
		return conn, acc, txs, d
	}
	record := func(t *testing.T, conn *sqlx.DB, txs repository.TransactionRepository, acc *domain.Account, amount int64, target string, at time.Time) {
		tx := domain.NewTransaction(acc.ID, domain.TransactionTypeAirtime, decimal.NewFromInt(amount), decimal.NewFromInt(1), at)
		tx.Counterparty = domain.StringPtr(target)
		require.NoError(t, txs.CreateTransaction(ctx, conn, tx))
	}
	old := now.Add(-30 * 24 * time.Hour)

	t.Run("new account high amount", func(t *testing.T) {
		conn, acc, _, d := setup(t, now.Add(-24*time.Hour))
		v, err := d.Check(ctx, conn, acc, decimal.NewFromInt(1001), "")
		require.NoError(t, err)
		assert.True(t, v.Blocked)
		assert.Equal(t, "High amount for new account. Please verify your identity first", v.Reason)

		v, err = d.Check(ctx, conn, acc, decimal.NewFromInt(1000), "")
		require.NoError(t, err)
		assert.False(t, v.Blocked)
	})

	t.Run("velocity", func(t *testing.T) {
		conn, acc, txs, d := setup(t, old)
		for i := range 5 {
			record(t, conn, txs, acc, 15, "+2782000000"+string(rune('0'+i)), now.Add(-time.Duration(i+1)*30*time.Second))
		}
		v, err := d.Check(ctx, conn, acc, decimal.NewFromInt(15), "")
		require.NoError(t, err)
		assert.Equal(t, "Too many transactions in short time. Please wait a few minutes", v.Reason)
	})

	t.Run("same recipient", func(t *testing.T) {
		conn, acc, txs, d := setup(t, old)
		for i := range 3 {
			record(t, conn, txs, acc, 15, "+27827654321", now.Add(-time.Duration(i+6)*time.Minute))
		}
		v, err := d.Check(ctx, conn, acc, decimal.NewFromInt(15), "+27827654321")
		require.NoError(t, err)
		assert.Equal(t, "Multiple transactions to same recipient. Please contact support", v.Reason)

		v, err = d.Check(ctx, conn, acc, decimal.NewFromInt(15), "+27820000000")
		require.NoError(t, err)
		assert.False(t, v.Blocked)
	})

	t.Run("round amount burst", func(t *testing.T) {
		conn, acc, txs, d := setup(t, old)
		for i, amount := range []int64{100, 200, 500} {
			record(t, conn, txs, acc, amount, "+2782111111"+string(rune('0'+i)), now.Add(-time.Duration(i+20)*time.Minute))
		}
		v, err := d.Check(ctx, conn, acc, decimal.NewFromInt(1000), "+27829999999")
		require.NoError(t, err)
		assert.Equal(t, "Suspicious transaction pattern detected. Please verify via support", v.Reason)

		v, err = d.Check(ctx, conn, acc, decimal.NewFromInt(150), "+27829999999")
		require.NoError(t, err)
		assert.False(t, v.Blocked, "non-round amount is clear")
	})
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "balance", Sanitize("  balance "))
	assert.Equal(t, "b", Sanitize("<b>"))
	assert.Equal(t, "hi  table", Sanitize("hi drop table"))
	assert.Equal(t, "alert(1)", Sanitize("<SCRIPT>alert(1)"))
}

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"0821234567", "+27821234567", true},
		{"082 123 4567", "+27821234567", true},
		{"27821234567", "+27821234567", true},
		{"+27821234567", "+27821234567", true},
		{"821234567", "+27821234567", true},
		{"12345", "", false},
		{"1821234567", "", false},
	}
	for _, tt := range tests {
		got, err := ValidatePhone(tt.raw)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidPhone, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}

	assert.Equal(t, "0821234567", LocalFormat("+27821234567"))
	assert.Equal(t, "+2782*****67", MaskHandle("+27821234567"))
}
