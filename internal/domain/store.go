package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ListingStore persists listings and their embedded bids. It is the sole
// owner of listing state; all mutations go through it.
type ListingStore interface {
	Create(ctx context.Context, l Listing) error
	GetByID(ctx context.Context, id string) (Listing, error)
	ListByStatus(ctx context.Context, status ListingStatus, opts ListOpts) ([]Listing, error)
	ListBySeller(ctx context.Context, sellerID string, opts ListOpts) ([]Listing, error)

	// AppendBid admits a bid only if the listing is still active and its
	// current bid equals expectedBid (optimistic concurrency). A stale
	// expectation returns ErrStaleBid.
	AppendBid(ctx context.Context, listingID string, b Bid, expectedBid int64) error

	// CompleteSale transitions active -> sold, recording the buyer and the
	// ledger transaction reference. A listing that is no longer active
	// returns ErrNotActive, so a second completion cannot double-apply.
	CompleteSale(ctx context.Context, listingID string, buyer Party, ledgerTxID string) error

	// MarkCancelled and MarkExpired transition active -> cancelled/expired
	// under the same active-only guard.
	MarkCancelled(ctx context.Context, listingID string) error
	MarkExpired(ctx context.Context, listingID string) error

	// ListEndedAuctions returns active auctions whose end time has passed,
	// for the completion sweep.
	ListEndedAuctions(ctx context.Context, now time.Time, limit int) ([]Listing, error)

	// ListSoldWithoutRecord returns sold listings that have no transaction
	// record yet, for the reconciliation backfill.
	ListSoldWithoutRecord(ctx context.Context, limit int) ([]Listing, error)

	// AddViews folds buffered view counts into the listings table.
	// Telemetry only; failures are non-fatal.
	AddViews(ctx context.Context, counts map[string]int64) error
}

// TransactionStore persists settlement transaction records.
type TransactionStore interface {
	Create(ctx context.Context, rec TransactionRecord) error
	GetByID(ctx context.Context, id string) (TransactionRecord, error)
	GetByListingID(ctx context.Context, listingID string) (TransactionRecord, error)

	// ExistsCompletedForListing backs the backfill idempotence check: at
	// most one completed record may exist per listing.
	ExistsCompletedForListing(ctx context.Context, listingID string) (bool, error)

	MarkCompleted(ctx context.Context, id, ledgerTxID, explorerURL string) error
	MarkFailed(ctx context.Context, id, code, message string) error

	List(ctx context.Context, opts ListOpts) ([]TransactionRecord, error)
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]TransactionRecord, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LockManager provides distributed per-key mutual exclusion. Settlement
// holds a per-listing lock so only one settlement runs per listing at a
// time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter limits request rates per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// StreamMessage is a single entry read from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus is the market event bus: pub/sub for live fan-out plus
// durable streams for replayable delivery.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// ViewCounter buffers listing view counts. Counts are drained
// periodically and folded into the listing store.
type ViewCounter interface {
	Increment(ctx context.Context, listingID string) error
	Drain(ctx context.Context) (map[string]int64, error)
}

// BlobWriter writes archive objects to blob storage. PutMultipart is for
// payloads large enough to benefit from chunked upload.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
