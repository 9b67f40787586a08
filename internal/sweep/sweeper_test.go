package sweep

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/inkpress/comicmint/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type stubListingStore struct {
	domain.ListingStore

	mu      sync.Mutex
	ended   []domain.Listing
	views   map[string]int64
	flushes int
}

func (s *stubListingStore) ListEndedAuctions(_ context.Context, _ time.Time, limit int) ([]domain.Listing, error) {
	if len(s.ended) > limit {
		return s.ended[:limit], nil
	}
	return s.ended, nil
}

func (s *stubListingStore) AddViews(_ context.Context, counts map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views == nil {
		s.views = make(map[string]int64)
	}
	for id, n := range counts {
		s.views[id] += n
	}
	s.flushes++
	return nil
}

type stubCompleter struct {
	mu       sync.Mutex
	outcomes map[string]domain.AuctionOutcome
	errs     map[string]error
	calls    []string
}

func (c *stubCompleter) CompleteAuction(_ context.Context, listingID string) (domain.AuctionOutcome, domain.TransactionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, listingID)
	if err := c.errs[listingID]; err != nil {
		return "", domain.TransactionRecord{}, err
	}
	return c.outcomes[listingID], domain.TransactionRecord{}, nil
}

type stubViews struct {
	counts map[string]int64
}

func (v *stubViews) Increment(context.Context, string) error { return nil }

func (v *stubViews) Drain(context.Context) (map[string]int64, error) {
	out := v.counts
	v.counts = nil
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepSettlesEndedAuctions(t *testing.T) {
	store := &stubListingStore{ended: []domain.Listing{
		{ID: "auc-1"}, {ID: "auc-2"}, {ID: "auc-3"}, {ID: "auc-4"},
	}}
	completer := &stubCompleter{
		outcomes: map[string]domain.AuctionOutcome{
			"auc-1": domain.OutcomeSale,
			"auc-3": domain.OutcomeNoBids,
		},
		errs: map[string]error{
			"auc-2": domain.ErrLockHeld,
			// Settled by a buy between the list query and completion.
			"auc-4": domain.ErrNotActive,
		},
	}

	s := New(Config{}, store, completer, nil, nil, testLogger())
	s.now = func() time.Time { return testNow }

	s.Sweep(context.Background())

	if len(completer.calls) != 4 {
		t.Errorf("completion calls = %d, want 4", len(completer.calls))
	}
}

func TestSweepRespectsBatchLimit(t *testing.T) {
	store := &stubListingStore{ended: []domain.Listing{
		{ID: "auc-1"}, {ID: "auc-2"}, {ID: "auc-3"},
	}}
	completer := &stubCompleter{outcomes: map[string]domain.AuctionOutcome{}}

	s := New(Config{Batch: 2}, store, completer, nil, nil, testLogger())
	s.now = func() time.Time { return testNow }

	s.Sweep(context.Background())

	if len(completer.calls) != 2 {
		t.Errorf("completion calls = %d, want batch limit 2", len(completer.calls))
	}
}

func TestSweepFlushesViews(t *testing.T) {
	store := &stubListingStore{}
	views := &stubViews{counts: map[string]int64{"lst-1": 3, "lst-2": 1}}

	s := New(Config{}, store, &stubCompleter{}, views, nil, testLogger())
	s.now = func() time.Time { return testNow }

	s.Sweep(context.Background())

	if store.views["lst-1"] != 3 || store.views["lst-2"] != 1 {
		t.Errorf("flushed views = %v", store.views)
	}

	// A second pass with nothing buffered must not write.
	s.Sweep(context.Background())
	if store.flushes != 1 {
		t.Errorf("flushes = %d, want 1", store.flushes)
	}
}

type stubArchiver struct {
	txCalls    int
	auditCalls int
}

func (a *stubArchiver) ArchiveTransactions(context.Context, time.Time) (int64, error) {
	a.txCalls++
	return 0, nil
}

func (a *stubArchiver) ArchiveAuditLog(context.Context, time.Time) (int64, error) {
	a.auditCalls++
	return 0, nil
}

func TestSweepArchivesOnInterval(t *testing.T) {
	store := &stubListingStore{}
	arch := &stubArchiver{}

	s := New(Config{ArchiveInterval: time.Hour, Retention: 24 * time.Hour},
		store, &stubCompleter{}, nil, arch, testLogger())

	current := testNow
	s.now = func() time.Time { return current }

	s.Sweep(context.Background())
	s.Sweep(context.Background()) // within the interval: no second archive
	if arch.txCalls != 1 {
		t.Errorf("archive calls = %d, want 1", arch.txCalls)
	}

	current = current.Add(2 * time.Hour)
	s.Sweep(context.Background())
	if arch.txCalls != 2 {
		t.Errorf("archive calls = %d, want 2 after interval elapsed", arch.txCalls)
	}
}
