// internal/repository/sqlstore/store.go

// Package sqlstore implements the repository interfaces with sqlx. Queries are
// written with '?' placeholders and rebound per driver, so the same stores run
// on PostgreSQL (lib/pq) and SQLite (go-sqlite3).
package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"chatpay-wallet/internal/util"
)

const pqUniqueViolation = "23505"

// dialect rebinds '?' queries to the placeholder style of the connection's driver.
type dialect struct {
	bindType int
}

func newDialect(db *sqlx.DB) dialect {
	return dialect{bindType: sqlx.BindType(db.DriverName())}
}

func (d dialect) rebind(query string) string {
	return sqlx.Rebind(d.bindType, query)
}

// isUniqueViolation reports whether err is a unique-constraint failure on either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// checkAffected turns a zero-row update into notFoundErr.
func checkAffected(result sql.Result, notFoundErr error, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after %s: %w", what, err)
	}
	if rowsAffected == 0 {
		return notFoundErr
	}
	return nil
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return util.ErrNotFound
	}
	return err
}
