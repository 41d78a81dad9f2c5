package cockroach

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"wadesk-backend/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the tables when they are missing
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// mapError converts driver errors into repository sentinels
func mapError(err error, op string) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return repository.ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("failed to %s: %w", op, repository.ErrDuplicate)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

type scanner interface {
	Scan(dest ...any) error
}
