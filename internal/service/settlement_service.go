package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/comicmint/internal/domain"
	"github.com/inkpress/comicmint/internal/fees"
)

// settleLockTTL bounds how long a settlement can hold its per-listing lock.
// The ledger call dominates; 30s covers its timeout with headroom.
const settleLockTTL = 30 * time.Second

// Notifier delivers operator alerts for settlement outcomes.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SettlementService executes sales: direct purchases of fixed-price
// listings and completion of ended auctions. Every settlement runs the same
// staged protocol: record pending, transfer on the ledger, update catalog
// ownership, close the listing, mark the record completed. A failure at the
// ledger stage marks the record failed and leaves the listing active.
type SettlementService struct {
	listings domain.ListingStore
	txs      domain.TransactionStore
	catalog  domain.Catalog
	ledger   domain.LedgerGateway
	locks    domain.LockManager
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	logger   *slog.Logger

	platformPercent float64
	now             func() time.Time
}

// NewSettlementService creates a SettlementService with all required
// dependencies. platformPercent is the marketplace commission applied to
// every sale.
func NewSettlementService(
	listings domain.ListingStore,
	txs domain.TransactionStore,
	catalog domain.Catalog,
	ledger domain.LedgerGateway,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	platformPercent float64,
) *SettlementService {
	return &SettlementService{
		listings:        listings,
		txs:             txs,
		catalog:         catalog,
		ledger:          ledger,
		locks:           locks,
		bus:             bus,
		audit:           audit,
		logger:          logger,
		platformPercent: platformPercent,
		now:             time.Now,
	}
}

// WithNotifier attaches an operator notifier. Without one, settlement
// outcomes are only logged and audited.
func (s *SettlementService) WithNotifier(n Notifier) *SettlementService {
	s.notifier = n
	return s
}

// Buy purchases a fixed-price listing outright at its asking price.
func (s *SettlementService) Buy(ctx context.Context, cmd domain.BuyCommand) (domain.TransactionRecord, error) {
	if err := cmd.Validate(); err != nil {
		return domain.TransactionRecord{}, err
	}

	unlock, err := s.locks.Acquire(ctx, "settle:"+cmd.ListingID, settleLockTTL)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("settlement_service: lock listing %s: %w", cmd.ListingID, err)
	}
	defer unlock()

	listing, err := s.listings.GetByID(ctx, cmd.ListingID)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("settlement_service: get listing %s: %w", cmd.ListingID, err)
	}

	if listing.Status != domain.ListingStatusActive {
		return domain.TransactionRecord{}, domain.ErrNotActive
	}
	if listing.Type != domain.ListingTypeFixedPrice {
		return domain.TransactionRecord{}, domain.ErrWrongListingType
	}
	if cmd.Buyer.UserID == listing.Seller.UserID {
		return domain.TransactionRecord{}, domain.ErrSelfPurchase
	}

	return s.settle(ctx, listing, cmd.Buyer, listing.Price, domain.TransactionTypePurchase)
}

// CompleteAuction evaluates an ended auction and settles it when a viable
// winning bid exists. Auctions that end without a sale (no bids, or reserve
// unmet) are marked expired and return the corresponding outcome with a
// zero record.
//
// Completion runs at most once: re-invoking against a listing that already
// reached a terminal state fails with ErrNotActive. For an already-settled
// auction the existing completed record is returned alongside the error so
// callers can surface what happened; the ledger is never called again.
func (s *SettlementService) CompleteAuction(ctx context.Context, listingID string) (domain.AuctionOutcome, domain.TransactionRecord, error) {
	unlock, err := s.locks.Acquire(ctx, "settle:"+listingID, settleLockTTL)
	if err != nil {
		return "", domain.TransactionRecord{}, fmt.Errorf("settlement_service: lock listing %s: %w", listingID, err)
	}
	defer unlock()

	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return "", domain.TransactionRecord{}, fmt.Errorf("settlement_service: get listing %s: %w", listingID, err)
	}

	outcome, err := listing.EvaluateEnd(s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotActive) && listing.Status == domain.ListingStatusSold {
			if rec, recErr := s.txs.GetByListingID(ctx, listingID); recErr == nil {
				return "", rec, domain.ErrNotActive
			}
		}
		return "", domain.TransactionRecord{}, err
	}

	if outcome != domain.OutcomeSale {
		if err := s.listings.MarkExpired(ctx, listing.ID); err != nil {
			return "", domain.TransactionRecord{}, fmt.Errorf("settlement_service: expire listing %s: %w", listing.ID, err)
		}

		s.publishEvent(ctx, map[string]string{
			"event":      "auction_expired",
			"listing_id": listing.ID,
			"outcome":    string(outcome),
		})
		s.auditLog(ctx, "auction_expired", map[string]any{
			"listing_id": listing.ID,
			"outcome":    string(outcome),
			"top_bid":    listing.CurrentBid,
			"reserve":    listing.ReservePrice,
		})
		if outcome == domain.OutcomeReserveNotMet {
			s.notify(ctx, "auction_expired", "Auction reserve not met",
				fmt.Sprintf("Listing %s ended at %d below reserve %d", listing.ID, listing.CurrentBid, listing.ReservePrice))
		}

		s.logger.InfoContext(ctx, "settlement_service: auction expired without sale",
			slog.String("listing_id", listing.ID),
			slog.String("outcome", string(outcome)),
		)

		return outcome, domain.TransactionRecord{}, nil
	}

	winner := domain.Party{UserID: listing.TopBidder, AccountID: listing.TopBidderAcc}
	rec, err := s.settle(ctx, listing, winner, listing.CurrentBid, domain.TransactionTypeAuctionComplete)
	return outcome, rec, err
}

// settle runs the staged settlement protocol for one sale. The transaction
// record is the source of truth for what happened: it is written pending
// before the ledger call, and transitions exactly once to completed or
// failed afterwards.
func (s *SettlementService) settle(
	ctx context.Context,
	listing domain.Listing,
	buyer domain.Party,
	amount int64,
	txType domain.TransactionType,
) (domain.TransactionRecord, error) {
	comic, err := s.catalog.GetComic(ctx, listing.ComicID)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("settlement_service: get comic %s: %w", listing.ComicID, err)
	}

	split := fees.Compute(amount, comic.RoyaltyPercent, s.platformPercent)

	rec := domain.TransactionRecord{
		ID:           uuid.New().String(),
		Type:         txType,
		Status:       domain.TransactionStatusPending,
		Buyer:        buyer,
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
		InitiatedAt:  s.now().UTC(),
	}

	if err := s.txs.Create(ctx, rec); err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("settlement_service: create transaction record: %w", err)
	}

	receipt, err := s.ledger.TransferNFT(ctx, domain.TransferRequest{
		TokenID:      listing.TokenID,
		SerialNumber: listing.SerialNumber,
		FromAccount:  listing.Seller.AccountID,
		ToAccount:    buyer.AccountID,
		Amount:       amount,
		Currency:     listing.Currency,
		Memo:         "listing:" + listing.ID,
	})
	if err != nil {
		code, message := failureDetail(err)
		if failErr := s.txs.MarkFailed(ctx, rec.ID, code, message); failErr != nil {
			s.logger.ErrorContext(ctx, "settlement_service: mark failed",
				slog.String("transaction_id", rec.ID),
				slog.String("error", failErr.Error()),
			)
		}
		rec.Status = domain.TransactionStatusFailed
		rec.FailureCode = code
		rec.FailureMessage = message

		s.auditLog(ctx, "settlement_failed", map[string]any{
			"transaction_id": rec.ID,
			"listing_id":     listing.ID,
			"code":           code,
			"message":        message,
		})
		s.notify(ctx, "settlement_failed", "Settlement failed",
			fmt.Sprintf("Listing %s: %s (%s)", listing.ID, message, code))

		s.logger.ErrorContext(ctx, "settlement_service: ledger transfer failed",
			slog.String("transaction_id", rec.ID),
			slog.String("listing_id", listing.ID),
			slog.String("code", code),
		)

		return rec, fmt.Errorf("settlement_service: ledger transfer: %w", err)
	}

	// The ledger transfer has applied. Ownership and listing state now
	// follow; a failure past this point leaves a repairable gap rather
	// than a wrong ledger balance.
	if err := s.catalog.UpdateOwner(ctx, listing.TokenID, listing.SerialNumber, buyer.UserID, buyer.AccountID); err != nil {
		const code = "ownership_update_failed"
		if failErr := s.txs.MarkFailed(ctx, rec.ID, code, err.Error()); failErr != nil {
			s.logger.ErrorContext(ctx, "settlement_service: mark failed",
				slog.String("transaction_id", rec.ID),
				slog.String("error", failErr.Error()),
			)
		}
		rec.Status = domain.TransactionStatusFailed
		rec.FailureCode = code
		rec.FailureMessage = err.Error()
		rec.LedgerTxID = receipt.TransactionID

		s.auditLog(ctx, "settlement_failed", map[string]any{
			"transaction_id": rec.ID,
			"listing_id":     listing.ID,
			"ledger_tx_id":   receipt.TransactionID,
			"code":           code,
		})
		s.notify(ctx, "settlement_failed", "Ownership update failed after ledger transfer",
			fmt.Sprintf("Listing %s, ledger tx %s: %v", listing.ID, receipt.TransactionID, err))

		return rec, fmt.Errorf("settlement_service: update owner: %w", err)
	}

	if err := s.listings.CompleteSale(ctx, listing.ID, buyer, receipt.TransactionID); err != nil {
		const code = "complete_sale_failed"
		if failErr := s.txs.MarkFailed(ctx, rec.ID, code, err.Error()); failErr != nil {
			s.logger.ErrorContext(ctx, "settlement_service: mark failed",
				slog.String("transaction_id", rec.ID),
				slog.String("error", failErr.Error()),
			)
		}
		rec.Status = domain.TransactionStatusFailed
		rec.FailureCode = code
		rec.FailureMessage = err.Error()
		rec.LedgerTxID = receipt.TransactionID

		s.auditLog(ctx, "settlement_failed", map[string]any{
			"transaction_id": rec.ID,
			"listing_id":     listing.ID,
			"ledger_tx_id":   receipt.TransactionID,
			"code":           code,
		})
		s.notify(ctx, "settlement_failed", "Listing close failed after ledger transfer",
			fmt.Sprintf("Listing %s, ledger tx %s: %v", listing.ID, receipt.TransactionID, err))

		s.logger.ErrorContext(ctx, "settlement_service: complete sale",
			slog.String("listing_id", listing.ID),
			slog.String("ledger_tx_id", receipt.TransactionID),
			slog.String("error", err.Error()),
		)
		return rec, fmt.Errorf("settlement_service: complete sale %s: %w", listing.ID, err)
	}

	if err := s.txs.MarkCompleted(ctx, rec.ID, receipt.TransactionID, receipt.ExplorerURL); err != nil {
		return rec, fmt.Errorf("settlement_service: mark completed %s: %w", rec.ID, err)
	}

	now := s.now().UTC()
	rec.Status = domain.TransactionStatusCompleted
	rec.LedgerTxID = receipt.TransactionID
	rec.ExplorerURL = receipt.ExplorerURL
	rec.CompletedAt = &now

	s.publishEvent(ctx, map[string]string{
		"event":        "sale_completed",
		"listing_id":   listing.ID,
		"buyer":        buyer.UserID,
		"amount":       fmt.Sprintf("%d", amount),
		"ledger_tx_id": receipt.TransactionID,
	})
	s.auditLog(ctx, "sale_completed", map[string]any{
		"transaction_id": rec.ID,
		"listing_id":     listing.ID,
		"type":           string(txType),
		"buyer":          buyer.UserID,
		"seller":         listing.Seller.UserID,
		"amount":         amount,
		"platform_fee":   split.PlatformFee,
		"royalty_fee":    split.RoyaltyFee,
		"ledger_tx_id":   receipt.TransactionID,
	})
	s.notify(ctx, "sale_completed", "Sale completed",
		fmt.Sprintf("Listing %s sold to %s for %d %s", listing.ID, buyer.UserID, amount, listing.Currency))

	s.logger.InfoContext(ctx, "settlement_service: sale completed",
		slog.String("transaction_id", rec.ID),
		slog.String("listing_id", listing.ID),
		slog.String("buyer", buyer.UserID),
		slog.Int64("amount", amount),
		slog.String("ledger_tx_id", receipt.TransactionID),
	)

	return rec, nil
}

// failureDetail extracts the structured code and message from a ledger
// error, falling back to a generic code for transport-level failures.
func failureDetail(err error) (code, message string) {
	var lerr *domain.LedgerError
	if errors.As(err, &lerr) {
		return lerr.Code, lerr.Message
	}
	return "transfer_failed", err.Error()
}

func (s *SettlementService) publishEvent(ctx context.Context, fields map[string]string) {
	evt, _ := json.Marshal(fields)
	if err := s.bus.Publish(ctx, "market", evt); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: publish event failed",
			slog.String("event", fields["event"]),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
