package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkpress/comicmint/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// uniqueViolation is the PostgreSQL error code raised when the partial
// unique index on active (token_id, serial_number) rejects an insert.
const uniqueViolation = "23505"

// Create inserts a new listing. A second active listing for the same
// serial returns domain.ErrDuplicateListing.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) error {
	const query = `
		INSERT INTO listings (
			id, listing_type, token_id, serial_number, comic_id, episode_id,
			seller_id, seller_account, price, currency,
			reserve_price, min_increment, current_bid,
			start_time, end_time, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17, NOW()
		)`

	var startTime, endTime *time.Time
	if !l.StartTime.IsZero() {
		startTime = &l.StartTime
	}
	if !l.EndTime.IsZero() {
		endTime = &l.EndTime
	}

	_, err := s.pool.Exec(ctx, query,
		l.ID, string(l.Type), l.TokenID, l.SerialNumber, l.ComicID, l.EpisodeID,
		l.Seller.UserID, l.Seller.AccountID, l.Price, l.Currency,
		l.ReservePrice, l.MinIncrement, l.CurrentBid,
		startTime, endTime, string(l.Status), l.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateListing
		}
		return fmt.Errorf("postgres: create listing %s: %w", l.ID, err)
	}
	return nil
}

const listingSelectCols = `id, listing_type, token_id, serial_number, comic_id, episode_id,
	seller_id, seller_account, price, currency,
	reserve_price, min_increment, current_bid, top_bidder, top_bidder_account,
	start_time, end_time, status, buyer_id, buyer_account, sale_tx_id,
	views, created_at, updated_at`

func scanListingFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Listing, error) {
	var l domain.Listing
	var listingType, status string
	var startTime, endTime *time.Time

	err := scanner.Scan(
		&l.ID, &listingType, &l.TokenID, &l.SerialNumber, &l.ComicID, &l.EpisodeID,
		&l.Seller.UserID, &l.Seller.AccountID, &l.Price, &l.Currency,
		&l.ReservePrice, &l.MinIncrement, &l.CurrentBid, &l.TopBidder, &l.TopBidderAcc,
		&startTime, &endTime, &status, &l.Buyer, &l.BuyerAccount, &l.SaleTxID,
		&l.Views, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}

	l.Type = domain.ListingType(listingType)
	l.Status = domain.ListingStatus(status)
	if startTime != nil {
		l.StartTime = *startTime
	}
	if endTime != nil {
		l.EndTime = *endTime
	}
	return l, nil
}

func scanListingRows(rows pgx.Rows) ([]domain.Listing, error) {
	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListingFromRow(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// GetByID retrieves a single listing together with its bid history.
func (s *ListingStore) GetByID(ctx context.Context, id string) (domain.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingSelectCols+` FROM listings WHERE id = $1`, id)

	l, err := scanListingFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: %w", id, err)
	}

	bids, err := s.loadBids(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	l.Bids = bids
	return l, nil
}

func (s *ListingStore) loadBids(ctx context.Context, listingID string) ([]domain.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT bidder, bidder_account, amount, placed_at, tx_ref
		 FROM bids WHERE listing_id = $1 ORDER BY id`, listingID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load bids for %s: %w", listingID, err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(&b.Bidder, &b.BidderAccount, &b.Amount, &b.PlacedAt, &b.TxRef); err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// AppendBid admits a bid with an optimistic compare-and-swap on
// current_bid: the listing row is updated only if it is still active and
// the running bid equals expectedBid, and the bid row is inserted in the
// same transaction. A lost race returns domain.ErrStaleBid.
func (s *ListingStore) AppendBid(ctx context.Context, listingID string, b domain.Bid, expectedBid int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: append bid begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE listings
		 SET current_bid = $1, top_bidder = $2, top_bidder_account = $3, updated_at = NOW()
		 WHERE id = $4 AND status = 'active' AND current_bid = $5`,
		b.Amount, b.Bidder, b.BidderAccount, listingID, expectedBid,
	)
	if err != nil {
		return fmt.Errorf("postgres: append bid update %s: %w", listingID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyBidFailure(ctx, listingID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO bids (listing_id, bidder, bidder_account, amount, placed_at, tx_ref)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		listingID, b.Bidder, b.BidderAccount, b.Amount, b.PlacedAt, b.TxRef,
	)
	if err != nil {
		return fmt.Errorf("postgres: append bid insert %s: %w", listingID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: append bid commit %s: %w", listingID, err)
	}
	return nil
}

// classifyBidFailure distinguishes the reasons a guarded bid update can
// affect zero rows: missing listing, terminal status, or a concurrent bid.
func (s *ListingStore) classifyBidFailure(ctx context.Context, listingID string) error {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM listings WHERE id = $1`, listingID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: classify bid failure %s: %w", listingID, err)
	}
	if domain.ListingStatus(status) != domain.ListingStatusActive {
		return domain.ErrAuctionNotActive
	}
	return domain.ErrStaleBid
}

// CompleteSale transitions active -> sold under an active-only guard so a
// second completion cannot double-apply.
func (s *ListingStore) CompleteSale(ctx context.Context, listingID string, buyer domain.Party, ledgerTxID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings
		 SET status = 'sold', buyer_id = $1, buyer_account = $2, sale_tx_id = $3, updated_at = NOW()
		 WHERE id = $4 AND status = 'active'`,
		buyer.UserID, buyer.AccountID, ledgerTxID, listingID,
	)
	if err != nil {
		return fmt.Errorf("postgres: complete sale %s: %w", listingID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.notActiveOrMissing(ctx, listingID)
	}
	return nil
}

// MarkCancelled transitions active -> cancelled.
func (s *ListingStore) MarkCancelled(ctx context.Context, listingID string) error {
	return s.markTerminal(ctx, listingID, domain.ListingStatusCancelled)
}

// MarkExpired transitions active -> expired.
func (s *ListingStore) MarkExpired(ctx context.Context, listingID string) error {
	return s.markTerminal(ctx, listingID, domain.ListingStatusExpired)
}

func (s *ListingStore) markTerminal(ctx context.Context, listingID string, status domain.ListingStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = 'active'`,
		string(status), listingID,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark listing %s %s: %w", listingID, status, err)
	}
	if tag.RowsAffected() == 0 {
		return s.notActiveOrMissing(ctx, listingID)
	}
	return nil
}

func (s *ListingStore) notActiveOrMissing(ctx context.Context, listingID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)`, listingID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check listing %s: %w", listingID, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrNotActive
}

// ListByStatus returns listings in the given status, newest first.
func (s *ListingStore) ListByStatus(ctx context.Context, status domain.ListingStatus, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `SELECT ` + listingSelectCols + ` FROM listings WHERE status = $1 ORDER BY created_at DESC`
	args := []any{string(status)}
	query, args = applyListOpts(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings by status: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan listings by status: %w", err)
	}
	return listings, nil
}

// ListBySeller returns a seller's listings, newest first.
func (s *ListingStore) ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `SELECT ` + listingSelectCols + ` FROM listings WHERE seller_id = $1 ORDER BY created_at DESC`
	args := []any{sellerID}
	query, args = applyListOpts(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings by seller: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan listings by seller: %w", err)
	}
	return listings, nil
}

// ListEndedAuctions returns active auctions whose end time has passed,
// oldest deadline first, for the completion sweep.
func (s *ListingStore) ListEndedAuctions(ctx context.Context, now time.Time, limit int) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingSelectCols+` FROM listings
		 WHERE status = 'active' AND listing_type = 'auction' AND end_time <= $1
		 ORDER BY end_time
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ended auctions: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ended auctions: %w", err)
	}
	return listings, nil
}

// ListSoldWithoutRecord returns sold listings that have no completed
// transaction record, for the reconciliation backfill.
func (s *ListingStore) ListSoldWithoutRecord(ctx context.Context, limit int) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingSelectCols+` FROM listings l
		 WHERE l.status = 'sold'
		   AND NOT EXISTS (
		       SELECT 1 FROM transactions t
		       WHERE t.listing_id = l.id AND t.status = 'completed'
		   )
		 ORDER BY l.updated_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sold without record: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan sold without record: %w", err)
	}
	return listings, nil
}

// AddViews folds drained view counts into the listings table. Unknown
// listing ids are silently skipped; views are telemetry, not state.
func (s *ListingStore) AddViews(ctx context.Context, counts map[string]int64) error {
	batch := &pgx.Batch{}
	for id, n := range counts {
		if n <= 0 {
			continue
		}
		batch.Queue(`UPDATE listings SET views = views + $1 WHERE id = $2`, n, id)
	}
	if batch.Len() == 0 {
		return nil
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: add views: %w", err)
		}
	}
	return nil
}

func applyListOpts(query string, args []any, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
