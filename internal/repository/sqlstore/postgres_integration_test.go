//go:build integration

// internal/repository/sqlstore/postgres_integration_test.go
package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/util"
	"chatpay-wallet/pkg/db"
)

func setupPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("walletdb"),
		tcpostgres.WithUsername("wallet"),
		tcpostgres.WithPassword("wallet"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := sqlx.Connect(db.DriverPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.Migrate(conn))
	// A second run must be a no-op.
	require.NoError(t, db.Migrate(conn))
	return conn
}

func TestIntegration_Postgres_Stores(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()

	accounts := NewAccountStore(conn)
	beneficiaries := NewBeneficiaryStore(conn)
	transactions := NewTransactionStore(conn)
	conversations := NewConversationStore(conn)

	acc := domain.NewAccount("+27821234567", "Thabo", decimal.NewFromInt(25000), decimal.NewFromInt(100000), time.Now())
	require.NoError(t, accounts.CreateAccount(ctx, conn, acc))
	assert.ErrorIs(t, accounts.CreateAccount(ctx, conn, acc), util.ErrDuplicateEntry)

	loaded, err := accounts.GetAccountByHandle(ctx, conn, acc.Handle)
	require.NoError(t, err)
	loaded.Balance = decimal.RequireFromString("500.00")
	require.NoError(t, accounts.UpdateBalances(ctx, conn, loaded))
	acc.Balance = decimal.NewFromInt(1)
	assert.ErrorIs(t, accounts.UpdateBalances(ctx, conn, acc), util.ErrConcurrentUpdate)

	b := domain.NewBeneficiary(acc.ID, "Mom", domain.BeneficiaryKindPhone, "+27827654321", "vodacom")
	require.NoError(t, beneficiaries.CreateBeneficiary(ctx, conn, b))
	assert.ErrorIs(t, beneficiaries.CreateBeneficiary(ctx, conn, domain.NewBeneficiary(acc.ID, "mom", domain.BeneficiaryKindPhone, "+27820000000", "")), util.ErrDuplicateEntry)
	list, err := beneficiaries.ListBeneficiaries(ctx, conn, acc.ID, nil)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	tx := domain.NewTransaction(acc.ID, domain.TransactionTypeAirtime, decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now())
	require.NoError(t, transactions.CreateTransaction(ctx, conn, tx))
	before, after := decimal.RequireFromString("500.00"), decimal.RequireFromString("399.00")
	completedAt := time.Now().UTC()
	tx.BalanceBefore, tx.BalanceAfter, tx.CompletedAt = &before, &after, &completedAt
	require.NoError(t, transactions.MarkCompleted(ctx, conn, tx))

	got, err := transactions.GetTransactionByReference(ctx, conn, tx.Reference)
	require.NoError(t, err)
	assert.True(t, got.BalanceAfter.Equal(after))
	assert.True(t, got.Total.Equal(decimal.NewFromInt(101)))

	state := &domain.ConversationState{AccountID: acc.ID, State: domain.StateAwaitingPIN, Payload: "{}", UpdatedAt: time.Now().UTC()}
	require.NoError(t, conversations.SaveState(ctx, conn, state))
	require.NoError(t, conversations.SaveState(ctx, conn, state))
	_, err = conversations.GetState(ctx, conn, acc.ID)
	require.NoError(t, err)
}
