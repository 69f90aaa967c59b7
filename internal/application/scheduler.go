package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sftdash/tornpanel/internal/domain/model"
	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

// Sweeper purges expired entries from a counter store that does not expire
// them on its own.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// refreshRequest is a manual job handed to the scheduler loop.
type refreshRequest struct {
	run  func(ctx context.Context) error
	done chan error
}

// Scheduler runs every sync on a single goroutine: a periodic cycle over all
// factions holding a faction-capable credential, plus manual jobs submitted
// between cycles. Two syncs never run at once, so a cursor has one writer.
type Scheduler struct {
	credentials driven.CredentialStore
	roster      *RosterService
	engine      *Engine
	attacks     Feed
	logs        Feed
	snapshots   *SnapshotService
	sweeper     Sweeper
	interval    time.Duration
	refreshCh   chan refreshRequest
}

// NewScheduler creates a Scheduler. sweeper may be nil.
func NewScheduler(
	credentials driven.CredentialStore,
	roster *RosterService,
	engine *Engine,
	attacks Feed,
	logs Feed,
	snapshots *SnapshotService,
	sweeper Sweeper,
	interval time.Duration,
) *Scheduler {
	return &Scheduler{
		credentials: credentials,
		roster:      roster,
		engine:      engine,
		attacks:     attacks,
		logs:        logs,
		snapshots:   snapshots,
		sweeper:     sweeper,
		interval:    interval,
		refreshCh:   make(chan refreshRequest),
	}
}

// Start runs an immediate cycle, then one per interval, and serves manual
// jobs in between. Start blocks until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	if err := s.runCycle(ctx); err != nil {
		slog.Error("initial sync cycle failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				slog.Error("sync cycle failed", "error", err)
			}
		case req := <-s.refreshCh:
			req.done <- req.run(ctx)
		}
	}
}

// RefreshFaction runs the roster, attacks and snapshot chain for one faction
// outside the regular cycle. It blocks until the chain completes or the
// context is canceled.
func (s *Scheduler) RefreshFaction(ctx context.Context, factionID int64) error {
	_, err := submit(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.syncFaction(ctx, factionID)
	})
	return err
}

// SyncAttacks runs an attacks delta sync on the scheduler goroutine.
func (s *Scheduler) SyncAttacks(ctx context.Context, scope model.SyncScope, key string, opts model.SyncOptions) (model.SyncResult, error) {
	return submit(ctx, s, func(ctx context.Context) (model.SyncResult, error) {
		return s.engine.Sync(ctx, s.attacks, scope, key, opts)
	})
}

// SyncUserLogs runs a user log delta sync on the scheduler goroutine.
func (s *Scheduler) SyncUserLogs(ctx context.Context, playerID int64, opts model.SyncOptions) (model.SyncResult, error) {
	return submit(ctx, s, func(ctx context.Context) (model.SyncResult, error) {
		return s.engine.Sync(ctx, s.logs, model.SyncScopePlayer, strconv.FormatInt(playerID, 10), opts)
	})
}

// SyncRoster runs a roster sync on the scheduler goroutine.
func (s *Scheduler) SyncRoster(ctx context.Context, factionID int64) (model.RosterSyncResult, error) {
	return submit(ctx, s, func(ctx context.Context) (model.RosterSyncResult, error) {
		return s.roster.Sync(ctx, factionID)
	})
}

// RefreshSnapshot runs SnapshotService.RefreshToday on the scheduler
// goroutine.
func (s *Scheduler) RefreshSnapshot(ctx context.Context, factionID int64) (model.SnapshotResult, error) {
	return submit(ctx, s, func(ctx context.Context) (model.SnapshotResult, error) {
		return s.snapshots.RefreshToday(ctx, factionID)
	})
}

// submit hands fn to the loop and waits for its result.
func submit[T any](ctx context.Context, s *Scheduler, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero T
		out  T
	)
	done := make(chan error, 1)
	req := refreshRequest{
		run: func(ctx context.Context) error {
			v, err := fn(ctx)
			out = v
			return err
		},
		done: done,
	}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case err := <-done:
		return out, err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// runCycle syncs every faction that holds a faction-capable credential, then
// prunes old snapshots and sweeps expired counters.
func (s *Scheduler) runCycle(ctx context.Context) error {
	start := time.Now()

	factionIDs, err := s.credentials.ListFactionIDs(ctx)
	if err != nil {
		return fmt.Errorf("list factions: %w", err)
	}

	var syncErrors int
	for _, fid := range factionIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.syncFaction(ctx, fid); err != nil {
			slog.Error("faction sync failed", "faction_id", fid, "error", err)
			syncErrors++
		}
	}

	if _, err := s.snapshots.Prune(ctx); err != nil {
		slog.Error("snapshot prune failed", "error", err)
	}
	if s.sweeper != nil {
		n, err := s.sweeper.Sweep(ctx)
		if err != nil {
			slog.Error("counter sweep failed", "error", err)
		} else if n > 0 {
			slog.Debug("swept expired counters", "rows", n)
		}
	}

	slog.Info("sync cycle complete",
		"factions", len(factionIDs),
		"errors", syncErrors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// syncFaction runs roster sync, the faction attacks feed and the daily
// snapshot. Each step runs even if an earlier one failed.
func (s *Scheduler) syncFaction(ctx context.Context, factionID int64) error {
	var errs []error

	if _, err := s.roster.Sync(ctx, factionID); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.engine.Sync(ctx, s.attacks, model.SyncScopeFaction, strconv.FormatInt(factionID, 10), model.SyncOptions{}); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.snapshots.Run(ctx, factionID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
