package db

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteUniqueFailed   = "UNIQUE constraint failed"
	mysqlDuplicatePrefix = "Error 1062"
)

// IsDuplicateKeyErr reports a unique-constraint violation from any of the
// supported dialects. The ledger relies on it to tell a replayed
// fulfillment apart from a real failure.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	var myErr *mysql.MySQLError
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	case errors.As(err, &pgErr):
		return pgErr.Code == pgUniqueViolation
	case errors.As(err, &myErr):
		return myErr.Number == mysqlDuplicateEntry
	}

	// sqlite drivers only expose the message
	msg := err.Error()
	return strings.Contains(msg, sqliteUniqueFailed) || strings.HasPrefix(msg, mysqlDuplicatePrefix)
}

// IsTimeout reports whether err came from an expired or cancelled context.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
