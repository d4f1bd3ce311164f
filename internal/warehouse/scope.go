package warehouse

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Scope is the single transaction a load runs in. Repositories take a
// Scope instead of opening their own transactions; only the caller that
// began it commits.
type Scope struct {
	tx   pgx.Tx
	done bool
}

// Begin opens a Scope on db.
func Begin(ctx context.Context, db DB) (*Scope, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, txFailed("begin", err)
	}
	return &Scope{tx: tx}, nil
}

// Tx exposes the underlying transaction.
func (s *Scope) Tx() pgx.Tx { return s.tx }

// Commit commits the transaction. A Scope cannot be used afterwards.
func (s *Scope) Commit(ctx context.Context) error {
	s.done = true
	return txFailed("commit", s.tx.Commit(ctx))
}

// Close rolls back unless Commit already ran. It is meant to be deferred.
func (s *Scope) Close(ctx context.Context) {
	if s.done {
		return
	}
	s.done = true
	// Rollback errors are ignored: the connection is discarded on failure.
	_ = s.tx.Rollback(context.WithoutCancel(ctx))
}

// lockKey serializes loads across processes so that two runs never both
// treat the same dimension key as new.
const lockKey int64 = 0x6870_7269_6365 // "hprice"

func (s *Scope) lock(ctx context.Context) error {
	_, err := s.tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey)
	return txFailed("advisory lock", err)
}
