// Package store implements persistence for both the central and community
// server binaries on top of internal/database's pgx/v5 pool, grounded on
// the teacher's repository-per-domain style (internal/api/*/repository.go
// in the teacher tree) collapsed into two cohesive stores since neither
// binary's domain is large enough to warrant one file per table.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confide-gg/confide/internal/apperr"
)

// notFound maps pgx.ErrNoRows onto the shared apperr taxonomy so callers in
// internal/api never import pgx directly.
func notFound(err error, what string) *apperr.Error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(what)
	}
	return apperr.Internal(err)
}

// Central is the Central server's persistence layer: user accounts,
// sessions, conversations/messages, friendships, federation tokens and
// registered servers, and key-exchange material.
type Central struct {
	pool *pgxpool.Pool
}

func NewCentral(pool *pgxpool.Pool) *Central { return &Central{pool: pool} }

// Community is a single community server's persistence layer: its own
// identity row, members, roles/categories/channels, invites, and channel
// messages. Each community server runs its own database, so unlike
// Central there is exactly one tenant per pool.
type Community struct {
	pool *pgxpool.Pool
}

func NewCommunity(pool *pgxpool.Pool) *Community { return &Community{pool: pool} }

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic, matching internal/api/apiutil.WithTx's shape
// for the store layer's own multi-statement operations.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
