// Package repositories implements the entity store on PostgreSQL.
package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskorchestrator/engine/pkg/apperrors"
)

// Postgres error codes we translate into domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// translateError maps driver-level failures onto the apperrors sentinels
// so services never inspect pgconn types.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, apperrors.ErrConflict)
		case pgForeignKeyViolation, pgCheckViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, apperrors.ErrValidation)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
