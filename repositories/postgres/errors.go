package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/upb/ai-governance/repositories"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique index conflict
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// writeError maps a failed INSERT/UPDATE onto the repository sentinels
func writeError(err error, op string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, repositories.ErrDuplicate)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// readError maps a failed single-row read onto the repository sentinels
func readError(err error, what string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, repositories.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// requireAffected turns a zero-row UPDATE/DELETE into ErrNotFound
func requireAffected(result sql.Result, what string, id interface{}) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %v: %w", what, id, repositories.ErrNotFound)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}
