package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"library_circulation/circulation"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Store runs circulation transactions on gorm.
type Store struct {
	db    *gorm.DB
	retry []RetryOption
}

var _ circulation.Store = (*Store)(nil)

func NewStore(db *gorm.DB, retry ...RetryOption) *Store {
	return &Store{db: db, retry: retry}
}

// Atomic runs fn in one transaction. Transient faults roll the attempt back
// and retry it; once the budget is spent they surface as TRANSIENT_STORE_ERROR.
func (s *Store) Atomic(ctx context.Context, fn circulation.TxFunc) error {
	err := RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, &txRepo{db: tx})
		})
	}, s.retry...)
	if err != nil && IsRetryable(err) {
		return circulation.Transient(err)
	}
	return err
}

func (s *Store) View(ctx context.Context, fn circulation.TxFunc) error {
	err := fn(ctx, &txRepo{db: s.db.WithContext(ctx)})
	if err != nil && IsRetryable(err) {
		return circulation.Transient(err)
	}
	return err
}

// txRepo implements circulation.Tx over one *gorm.DB handle, either a
// transaction or the plain pool for reads.
type txRepo struct{ db *gorm.DB }

var _ circulation.Tx = (*txRepo)(nil)

func notFound(kind, id string) error {
	return &circulation.Error{Code: circulation.CodeNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// lookupErr maps a single-row read failure. A malformed uuid counts as absent.
func lookupErr(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(kind, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return notFound(kind, id)
	}
	return err
}

// isUniqueViolation covers the translated gorm error and both drivers' raw forms.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
