package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkpress/comicmint/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a new TransactionStore backed by the given
// connection pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Create inserts a new transaction record. Records are created pending
// (or completed, for the backfill path) and never updated except through
// the transition methods below.
func (s *TransactionStore) Create(ctx context.Context, rec domain.TransactionRecord) error {
	const query = `
		INSERT INTO transactions (
			id, tx_type, status,
			buyer_id, buyer_account, seller_id, seller_account,
			token_id, serial_number, comic_id, episode_id, listing_id,
			amount, currency, platform_fee, royalty_fee, total_fees,
			ledger_tx_id, explorer_url, initiated_at, completed_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20, $21
		)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, string(rec.Type), string(rec.Status),
		rec.Buyer.UserID, rec.Buyer.AccountID, rec.Seller.UserID, rec.Seller.AccountID,
		rec.TokenID, rec.SerialNumber, rec.ComicID, rec.EpisodeID, rec.ListingID,
		rec.Amount, rec.Currency, rec.PlatformFee, rec.RoyaltyFee, rec.TotalFees,
		rec.LedgerTxID, rec.ExplorerURL, rec.InitiatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create transaction %s: %w", rec.ID, err)
	}
	return nil
}

const txSelectCols = `id, tx_type, status,
	buyer_id, buyer_account, seller_id, seller_account,
	token_id, serial_number, comic_id, episode_id, listing_id,
	amount, currency, platform_fee, royalty_fee, total_fees,
	ledger_tx_id, explorer_url, failure_code, failure_message,
	initiated_at, completed_at`

func scanTransactionFromRow(scanner interface{ Scan(dest ...any) error }) (domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	var txType, status string

	err := scanner.Scan(
		&rec.ID, &txType, &status,
		&rec.Buyer.UserID, &rec.Buyer.AccountID, &rec.Seller.UserID, &rec.Seller.AccountID,
		&rec.TokenID, &rec.SerialNumber, &rec.ComicID, &rec.EpisodeID, &rec.ListingID,
		&rec.Amount, &rec.Currency, &rec.PlatformFee, &rec.RoyaltyFee, &rec.TotalFees,
		&rec.LedgerTxID, &rec.ExplorerURL, &rec.FailureCode, &rec.FailureMessage,
		&rec.InitiatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return domain.TransactionRecord{}, err
	}

	rec.Type = domain.TransactionType(txType)
	rec.Status = domain.TransactionStatus(status)
	return rec, nil
}

// GetByID retrieves a single transaction record.
func (s *TransactionStore) GetByID(ctx context.Context, id string) (domain.TransactionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+txSelectCols+` FROM transactions WHERE id = $1`, id)

	rec, err := scanTransactionFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.TransactionRecord{}, domain.ErrNotFound
		}
		return domain.TransactionRecord{}, fmt.Errorf("postgres: get transaction %s: %w", id, err)
	}
	return rec, nil
}

// GetByListingID returns the most recent transaction record for a listing.
func (s *TransactionStore) GetByListingID(ctx context.Context, listingID string) (domain.TransactionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+txSelectCols+` FROM transactions
		 WHERE listing_id = $1 ORDER BY initiated_at DESC LIMIT 1`, listingID)

	rec, err := scanTransactionFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.TransactionRecord{}, domain.ErrNotFound
		}
		return domain.TransactionRecord{}, fmt.Errorf("postgres: get transaction for listing %s: %w", listingID, err)
	}
	return rec, nil
}

// ExistsCompletedForListing reports whether a completed record already
// exists for the listing. The backfill checks this before synthesizing.
func (s *TransactionStore) ExistsCompletedForListing(ctx context.Context, listingID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM transactions WHERE listing_id = $1 AND status = 'completed'
		)`, listingID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check completed transaction for %s: %w", listingID, err)
	}
	return exists, nil
}

// MarkCompleted transitions a pending record to completed, recording the
// ledger transaction id and explorer link.
func (s *TransactionStore) MarkCompleted(ctx context.Context, id, ledgerTxID, explorerURL string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions
		 SET status = 'completed', ledger_tx_id = $1, explorer_url = $2, completed_at = NOW()
		 WHERE id = $3 AND status = 'pending'`,
		ledgerTxID, explorerURL, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: complete transaction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed transitions a pending record to failed with the structured
// failure detail from the collaborator.
func (s *TransactionStore) MarkFailed(ctx context.Context, id, code, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions
		 SET status = 'failed', failure_code = $1, failure_message = $2, completed_at = NOW()
		 WHERE id = $3 AND status = 'pending'`,
		code, message, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: fail transaction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns transaction records with pagination and time filtering.
func (s *TransactionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.TransactionRecord, error) {
	query := `SELECT ` + txSelectCols + ` FROM transactions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND initiated_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND initiated_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY initiated_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		rec, err := scanTransactionFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan transaction: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list transactions rows: %w", err)
	}
	return records, nil
}

// ListTerminalBefore returns completed/failed/cancelled records whose
// settlement finished before cutoff, oldest first, for archiving.
func (s *TransactionStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txSelectCols+` FROM transactions
		 WHERE status <> 'pending' AND completed_at IS NOT NULL AND completed_at < $1
		 ORDER BY completed_at
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal transactions: %w", err)
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		rec, err := scanTransactionFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan terminal transaction: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list terminal transactions rows: %w", err)
	}
	return records, nil
}

// DeleteByIDs removes archived records.
func (s *TransactionStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM transactions WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TransactionStore = (*TransactionStore)(nil)
