// Package cleanup implements the background housekeeping sweep described in
// SPEC_FULL.md §2 ("Cleanup tasks"): a ticker that reclaims storage for rows
// whose state machine has moved past its useful life — expired sessions and
// expired pending key exchanges — since nothing else in either server ever
// deletes them once they expire. Grounded on the original's
// apps/server/src/cleanup_tasks.rs ticker shape, reimplemented against this
// tree's store/pgxpool types the way the teacher's internal/workers ticker
// loops are built.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultInterval = 5 * time.Minute

// Sweeper periodically deletes expired sessions and pending key exchanges.
// A single Sweeper is shared by both Central and a community server — each
// points it at its own pool, since both run the same sessions/
// pending_key_exchanges schema.
type Sweeper struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	interval time.Duration
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Sweeper {
	return &Sweeper{pool: pool, logger: logger, interval: defaultInterval}
}

// Run blocks, sweeping on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	now := time.Now()

	if tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now); err != nil {
		s.logger.Warn("sweeping expired sessions", slog.String("error", err.Error()))
	} else if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("swept expired sessions", slog.Int64("count", n))
	}

	if tag, err := s.pool.Exec(ctx, `DELETE FROM pending_key_exchanges WHERE expires_at <= $1`, now); err != nil {
		s.logger.Warn("sweeping expired key exchanges", slog.String("error", err.Error()))
	} else if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("swept expired key exchanges", slog.Int64("count", n))
	}
}
