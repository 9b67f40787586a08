// Package sweep drives the background maintenance loops: auction expiry is
// pull-based, so somebody has to periodically look for ended auctions and
// settle them. The sweeper also flushes buffered view counts and triggers
// archiving of settled history.
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/inkpress/comicmint/internal/domain"
)

// AuctionCompleter settles one ended auction.
type AuctionCompleter interface {
	CompleteAuction(ctx context.Context, listingID string) (domain.AuctionOutcome, domain.TransactionRecord, error)
}

// Archiver exports settled history to blob storage.
type Archiver interface {
	ArchiveTransactions(ctx context.Context, before time.Time) (int64, error)
	ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error)
}

// Config tunes the sweeper's cadence and batch sizes.
type Config struct {
	// Interval between sweep passes.
	Interval time.Duration
	// Batch caps ended auctions settled per pass.
	Batch int
	// ArchiveInterval is how often the archive step runs; zero disables it.
	ArchiveInterval time.Duration
	// Retention is how long terminal records stay in the primary store
	// before the archive step moves them to S3.
	Retention time.Duration
}

// Sweeper runs the periodic maintenance loop.
type Sweeper struct {
	cfg      Config
	listings domain.ListingStore
	settle   AuctionCompleter
	views    domain.ViewCounter
	archiver Archiver
	logger   *slog.Logger

	lastArchive time.Time
	now         func() time.Time
}

// New creates a Sweeper. The archiver may be nil, in which case the archive
// step is skipped.
func New(
	cfg Config,
	listings domain.ListingStore,
	settle AuctionCompleter,
	views domain.ViewCounter,
	archiver Archiver,
	logger *slog.Logger,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	return &Sweeper{
		cfg:      cfg,
		listings: listings,
		settle:   settle,
		views:    views,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "sweeper")),
		now:      time.Now,
	}
}

// Run executes sweep passes until the context is cancelled. It runs one
// pass immediately so a restart does not wait a full interval to pick up
// auctions that ended while the process was down.
func (s *Sweeper) Run(ctx context.Context) error {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one maintenance pass: settle ended auctions, flush view
// counts, and archive when due. Each step logs its own failures; one
// failing step never blocks the others.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweepAuctions(ctx)
	s.flushViews(ctx)
	s.archive(ctx)
}

func (s *Sweeper) sweepAuctions(ctx context.Context) {
	now := s.now().UTC()
	ended, err := s.listings.ListEndedAuctions(ctx, now, s.cfg.Batch)
	if err != nil {
		s.logger.ErrorContext(ctx, "list ended auctions failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(ended) == 0 {
		return
	}

	var settled, expired, failed int
	for _, listing := range ended {
		outcome, _, err := s.settle.CompleteAuction(ctx, listing.ID)
		if err != nil {
			// A held lock means a buy or a competing sweep already has this
			// listing; it will be retried next pass if it is still open.
			// ErrNotActive means it reached a terminal state between the
			// list query and completion, so there is nothing left to do.
			if errors.Is(err, domain.ErrLockHeld) || errors.Is(err, domain.ErrNotActive) {
				continue
			}
			failed++
			s.logger.ErrorContext(ctx, "auction completion failed",
				slog.String("listing_id", listing.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if outcome == domain.OutcomeSale {
			settled++
		} else {
			expired++
		}
	}

	s.logger.InfoContext(ctx, "auction sweep finished",
		slog.Int("ended", len(ended)),
		slog.Int("settled", settled),
		slog.Int("expired", expired),
		slog.Int("failed", failed),
	)
}

func (s *Sweeper) flushViews(ctx context.Context) {
	if s.views == nil {
		return
	}

	counts, err := s.views.Drain(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "view drain failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(counts) == 0 {
		return
	}

	if err := s.listings.AddViews(ctx, counts); err != nil {
		s.logger.WarnContext(ctx, "view flush failed",
			slog.Int("listings", len(counts)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.DebugContext(ctx, "views flushed",
		slog.Int("listings", len(counts)),
	)
}

func (s *Sweeper) archive(ctx context.Context) {
	if s.archiver == nil || s.cfg.ArchiveInterval <= 0 {
		return
	}
	now := s.now().UTC()
	if now.Sub(s.lastArchive) < s.cfg.ArchiveInterval {
		return
	}
	s.lastArchive = now

	cutoff := now.Add(-s.cfg.Retention)

	txCount, err := s.archiver.ArchiveTransactions(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "transaction archive failed",
			slog.String("error", err.Error()),
		)
	}
	auditCount, err := s.archiver.ArchiveAuditLog(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit archive failed",
			slog.String("error", err.Error()),
		)
	}

	if txCount > 0 || auditCount > 0 {
		s.logger.InfoContext(ctx, "archive pass finished",
			slog.Int64("transactions", txCount),
			slog.Int64("audit_entries", auditCount),
			slog.Time("cutoff", cutoff),
		)
	}
}
