package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/comicmint/internal/domain"
	"github.com/inkpress/comicmint/internal/fees"
)

// defaultBackfillLimit caps one backfill pass when no explicit listing ids
// are given.
const defaultBackfillLimit = 200

// BackfillReport summarizes one reconciliation pass.
type BackfillReport struct {
	Examined int `json:"examined"`
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
}

// ReconcileService repairs the transaction ledger: sold listings whose
// settlement completed but whose record write was lost get a completed
// record synthesized from the listing itself. The ledger transfer already
// happened, so reconciliation never calls the ledger again.
type ReconcileService struct {
	listings domain.ListingStore
	txs      domain.TransactionStore
	catalog  domain.Catalog
	audit    domain.AuditStore
	logger   *slog.Logger

	platformPercent float64
	now             func() time.Time
}

// NewReconcileService creates a ReconcileService with all required
// dependencies.
func NewReconcileService(
	listings domain.ListingStore,
	txs domain.TransactionStore,
	catalog domain.Catalog,
	audit domain.AuditStore,
	logger *slog.Logger,
	platformPercent float64,
) *ReconcileService {
	return &ReconcileService{
		listings:        listings,
		txs:             txs,
		catalog:         catalog,
		audit:           audit,
		logger:          logger,
		platformPercent: platformPercent,
		now:             time.Now,
	}
}

// Backfill synthesizes completed transaction records for sold listings
// that lack one. With explicit listingIDs it reconciles exactly those;
// otherwise it scans for sold listings missing a record. The pass is
// idempotent: listings that already have a completed record are skipped,
// and the partial unique index makes a duplicate insert impossible even
// under concurrent passes.
func (s *ReconcileService) Backfill(ctx context.Context, listingIDs []string) (BackfillReport, error) {
	var report BackfillReport

	var candidates []domain.Listing
	if len(listingIDs) > 0 {
		for _, id := range listingIDs {
			listing, err := s.listings.GetByID(ctx, id)
			if err != nil {
				return report, fmt.Errorf("reconcile_service: get listing %s: %w", id, err)
			}
			candidates = append(candidates, listing)
		}
	} else {
		var err error
		candidates, err = s.listings.ListSoldWithoutRecord(ctx, defaultBackfillLimit)
		if err != nil {
			return report, fmt.Errorf("reconcile_service: list sold without record: %w", err)
		}
	}

	for _, listing := range candidates {
		report.Examined++

		if listing.Status != domain.ListingStatusSold {
			report.Skipped++
			continue
		}

		exists, err := s.txs.ExistsCompletedForListing(ctx, listing.ID)
		if err != nil {
			return report, fmt.Errorf("reconcile_service: check record for %s: %w", listing.ID, err)
		}
		if exists {
			report.Skipped++
			continue
		}

		if err := s.synthesize(ctx, listing); err != nil {
			return report, err
		}
		report.Created++
	}

	s.logger.InfoContext(ctx, "reconcile_service: backfill finished",
		slog.Int("examined", report.Examined),
		slog.Int("created", report.Created),
		slog.Int("skipped", report.Skipped),
	)

	return report, nil
}

// synthesize writes a completed record reconstructed from a sold listing.
// The sale amount is the winning bid for auctions and the asking price for
// fixed-price sales; fees are recomputed from the current royalty rate.
func (s *ReconcileService) synthesize(ctx context.Context, listing domain.Listing) error {
	comic, err := s.catalog.GetComic(ctx, listing.ComicID)
	if err != nil {
		return fmt.Errorf("reconcile_service: get comic %s: %w", listing.ComicID, err)
	}

	amount := listing.Price
	txType := domain.TransactionTypePurchase
	if listing.Type == domain.ListingTypeAuction {
		amount = listing.CurrentBid
		txType = domain.TransactionTypeAuctionComplete
	}

	split := fees.Compute(amount, comic.RoyaltyPercent, s.platformPercent)

	now := s.now().UTC()
	rec := domain.TransactionRecord{
		ID:           uuid.New().String(),
		Type:         txType,
		Status:       domain.TransactionStatusCompleted,
		Buyer:        domain.Party{UserID: listing.Buyer, AccountID: listing.BuyerAccount},
		Seller:       listing.Seller,
		TokenID:      listing.TokenID,
		SerialNumber: listing.SerialNumber,
		ComicID:      listing.ComicID,
		EpisodeID:    listing.EpisodeID,
		ListingID:    listing.ID,
		Amount:       amount,
		Currency:     listing.Currency,
		PlatformFee:  split.PlatformFee,
		RoyaltyFee:   split.RoyaltyFee,
		TotalFees:    split.TotalFees,
		LedgerTxID:   listing.SaleTxID,
		InitiatedAt:  now,
		CompletedAt:  &now,
	}

	if err := s.txs.Create(ctx, rec); err != nil {
		return fmt.Errorf("reconcile_service: create backfill record for %s: %w", listing.ID, err)
	}

	if auditErr := s.audit.Log(ctx, "record_backfilled", map[string]any{
		"transaction_id": rec.ID,
		"listing_id":     listing.ID,
		"amount":         amount,
		"ledger_tx_id":   listing.SaleTxID,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "reconcile_service: audit log failed",
			slog.String("listing_id", listing.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "reconcile_service: record backfilled",
		slog.String("transaction_id", rec.ID),
		slog.String("listing_id", listing.ID),
		slog.Int64("amount", amount),
	)

	return nil
}
