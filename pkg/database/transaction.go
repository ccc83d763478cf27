package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type txContextKey string

const (
	txKey      = txContextKey("db-tx")
	txStateKey = txContextKey("db-tx-state")

	txStateOpen = "open"
)

// Tx is the transactional slice of sqlx the repositories need. Commit and
// Rollback are idempotent; Rollback after Commit is a no-op, which lets
// callers defer it unconditionally.
type Tx interface {
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

// Transaction tracks whether the underlying sqlx.Tx has been closed so
// double commits and late rollbacks stay harmless.
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{Tx: tx, logger: logger}
}

// GetTx reuses the transaction already carried by the context when one is
// open, so nested repository calls join the outer unit of work instead of
// opening their own. The outermost caller commits or rolls back.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if existing, ok := ctx.Value(txKey).(Tx); ok && existing != nil && existing.IsOpen() {
		if state, ok := ctx.Value(txStateKey).(string); ok && state == txStateOpen {
			return ctx, existing, nil
		}
	}

	sqlxTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("failed to begin transaction")
		return ctx, nil, errors.Wrap(err, "failed to begin transaction")
	}

	tx := NewTx(sqlxTx, logger)
	ctx = context.WithValue(ctx, txStateKey, txStateOpen)
	ctx = context.WithValue(ctx, txKey, tx)
	return ctx, tx, nil
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

// Rollback aborts the transaction unless it already closed, or unless the
// context marks it as owned by an outer caller.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil
	}
	if state, ok := ctx.Value(txStateKey).(string); ok && state == txStateOpen {
		// The context owner closes this transaction, not us.
		return nil
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("failed to roll back transaction")
		return errors.Wrap(err, "failed to roll back transaction")
	}
	t.isClosed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("failed to commit transaction")
		return errors.Wrap(err, "failed to commit transaction")
	}
	t.isClosed = true
	return nil
}
