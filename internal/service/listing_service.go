// Package service contains the marketplace use-case layer: listing
// lifecycle, settlement, and transaction-record reconciliation.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/comicmint/internal/domain"
)

// ListingService handles the listing lifecycle from creation through bid
// admission to cancellation. Settlement of sales lives in SettlementService.
type ListingService struct {
	listings domain.ListingStore
	catalog  domain.Catalog
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	audit    domain.AuditStore
	views    domain.ViewCounter
	logger   *slog.Logger

	now func() time.Time
}

// NewListingService creates a ListingService with all required dependencies.
func NewListingService(
	listings domain.ListingStore,
	catalog domain.Catalog,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	views domain.ViewCounter,
	logger *slog.Logger,
) *ListingService {
	return &ListingService{
		listings: listings,
		catalog:  catalog,
		limiter:  limiter,
		bus:      bus,
		audit:    audit,
		views:    views,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateListing creates a fixed-price listing after verifying the seller
// actually owns the serial being listed.
func (s *ListingService) CreateListing(ctx context.Context, cmd domain.CreateListingCommand) (domain.Listing, error) {
	if err := cmd.Validate(); err != nil {
		return domain.Listing{}, err
	}

	owns, err := s.catalog.VerifyOwnership(ctx, cmd.TokenID, cmd.SerialNumber, cmd.Seller.AccountID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: verify ownership: %w", err)
	}
	if !owns {
		return domain.Listing{}, domain.ErrNotOwner
	}

	now := s.now().UTC()
	listing := domain.Listing{
		ID:           uuid.New().String(),
		Type:         domain.ListingTypeFixedPrice,
		TokenID:      cmd.TokenID,
		SerialNumber: cmd.SerialNumber,
		ComicID:      cmd.ComicID,
		EpisodeID:    cmd.EpisodeID,
		Seller:       cmd.Seller,
		Price:        cmd.Price,
		Currency:     cmd.Currency,
		Status:       domain.ListingStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.listings.Create(ctx, listing); err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: create listing: %w", err)
	}

	s.publishEvent(ctx, map[string]string{
		"event":      "listing_created",
		"listing_id": listing.ID,
		"type":       string(listing.Type),
		"token_id":   listing.TokenID,
	})
	s.auditLog(ctx, "listing_created", map[string]any{
		"listing_id": listing.ID,
		"type":       string(listing.Type),
		"token_id":   listing.TokenID,
		"serial":     listing.SerialNumber,
		"seller":     listing.Seller.UserID,
		"price":      listing.Price,
	})

	s.logger.InfoContext(ctx, "listing_service: listing created",
		slog.String("listing_id", listing.ID),
		slog.String("token_id", listing.TokenID),
		slog.Int64("serial", listing.SerialNumber),
		slog.Int64("price", listing.Price),
	)

	return listing, nil
}

// CreateAuction creates an auction listing. A zero reserve price defaults
// to the starting price, so every sale clears at least the opening bid.
func (s *ListingService) CreateAuction(ctx context.Context, cmd domain.CreateAuctionCommand) (domain.Listing, error) {
	if err := cmd.Validate(); err != nil {
		return domain.Listing{}, err
	}

	owns, err := s.catalog.VerifyOwnership(ctx, cmd.TokenID, cmd.SerialNumber, cmd.Seller.AccountID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: verify ownership: %w", err)
	}
	if !owns {
		return domain.Listing{}, domain.ErrNotOwner
	}

	reserve := cmd.ReservePrice
	if reserve == 0 {
		reserve = cmd.StartingPrice
	}

	now := s.now().UTC()
	listing := domain.Listing{
		ID:           uuid.New().String(),
		Type:         domain.ListingTypeAuction,
		TokenID:      cmd.TokenID,
		SerialNumber: cmd.SerialNumber,
		ComicID:      cmd.ComicID,
		EpisodeID:    cmd.EpisodeID,
		Seller:       cmd.Seller,
		Price:        cmd.StartingPrice,
		Currency:     cmd.Currency,
		ReservePrice: reserve,
		MinIncrement: cmd.MinIncrement,
		StartTime:    now,
		EndTime:      now.Add(cmd.Duration),
		Status:       domain.ListingStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.listings.Create(ctx, listing); err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: create auction: %w", err)
	}

	s.publishEvent(ctx, map[string]string{
		"event":      "listing_created",
		"listing_id": listing.ID,
		"type":       string(listing.Type),
		"token_id":   listing.TokenID,
	})
	s.auditLog(ctx, "auction_created", map[string]any{
		"listing_id": listing.ID,
		"token_id":   listing.TokenID,
		"serial":     listing.SerialNumber,
		"seller":     listing.Seller.UserID,
		"starting":   listing.Price,
		"reserve":    listing.ReservePrice,
		"end_time":   listing.EndTime,
	})

	s.logger.InfoContext(ctx, "listing_service: auction created",
		slog.String("listing_id", listing.ID),
		slog.String("token_id", listing.TokenID),
		slog.Int64("starting_price", listing.Price),
		slog.Time("end_time", listing.EndTime),
	)

	return listing, nil
}

// PlaceBid admits a bid on an active auction. Admission is optimistic: the
// store only appends if the running bid is still the one the caller saw, so
// two racing bids cannot both win the same slot.
func (s *ListingService) PlaceBid(ctx context.Context, cmd domain.PlaceBidCommand) (domain.Listing, error) {
	if err := cmd.Validate(); err != nil {
		return domain.Listing{}, err
	}

	allowed, err := s.limiter.Allow(ctx, "bids:"+cmd.Bidder.UserID, 10, time.Second)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Listing{}, domain.ErrRateLimited
	}

	listing, err := s.listings.GetByID(ctx, cmd.ListingID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: get listing %s: %w", cmd.ListingID, err)
	}

	now := s.now().UTC()

	// Expiry is pull-based. A bid against an ended auction is the usual
	// discovery point; endings without a viable sale are flipped to expired
	// right here, reserve-met endings settle through the completion sweep.
	if listing.Status == domain.ListingStatusActive && listing.Ended(now) {
		if outcome, evalErr := listing.EvaluateEnd(now); evalErr == nil && outcome != domain.OutcomeSale {
			s.expireInline(ctx, listing, outcome)
		}
		return domain.Listing{}, domain.ErrAuctionEnded
	}

	if err := listing.CanBid(cmd.Bidder.UserID, cmd.Amount, now); err != nil {
		return domain.Listing{}, err
	}

	bid := domain.Bid{
		Bidder:        cmd.Bidder.UserID,
		BidderAccount: cmd.Bidder.AccountID,
		Amount:        cmd.Amount,
		PlacedAt:      now,
	}

	if err := s.listings.AppendBid(ctx, listing.ID, bid, listing.CurrentBid); err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: append bid: %w", err)
	}

	listing.CurrentBid = cmd.Amount
	listing.TopBidder = cmd.Bidder.UserID
	listing.TopBidderAcc = cmd.Bidder.AccountID
	listing.Bids = append(listing.Bids, bid)

	s.publishEvent(ctx, map[string]string{
		"event":      "bid_placed",
		"listing_id": listing.ID,
		"bidder":     bid.Bidder,
		"amount":     fmt.Sprintf("%d", bid.Amount),
	})
	s.auditLog(ctx, "bid_placed", map[string]any{
		"listing_id": listing.ID,
		"bidder":     bid.Bidder,
		"amount":     bid.Amount,
	})

	s.logger.InfoContext(ctx, "listing_service: bid placed",
		slog.String("listing_id", listing.ID),
		slog.String("bidder", bid.Bidder),
		slog.Int64("amount", bid.Amount),
	)

	return listing, nil
}

// Cancel withdraws an active listing. Auctions that have attracted bids
// cannot be cancelled.
func (s *ListingService) Cancel(ctx context.Context, cmd domain.CancelListingCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	listing, err := s.listings.GetByID(ctx, cmd.ListingID)
	if err != nil {
		return fmt.Errorf("listing_service: get listing %s: %w", cmd.ListingID, err)
	}

	if err := listing.CanCancel(cmd.Requester); err != nil {
		return err
	}

	if err := s.listings.MarkCancelled(ctx, listing.ID); err != nil {
		return fmt.Errorf("listing_service: cancel listing %s: %w", listing.ID, err)
	}

	s.publishEvent(ctx, map[string]string{
		"event":      "listing_cancelled",
		"listing_id": listing.ID,
	})
	s.auditLog(ctx, "listing_cancelled", map[string]any{
		"listing_id": listing.ID,
		"requester":  cmd.Requester,
	})

	s.logger.InfoContext(ctx, "listing_service: listing cancelled",
		slog.String("listing_id", listing.ID),
	)

	return nil
}

// GetListing retrieves a listing and buffers a view-count increment. View
// counting is telemetry; its failure never fails the read.
func (s *ListingService) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: get listing %s: %w", id, err)
	}

	if s.views != nil {
		if viewErr := s.views.Increment(ctx, id); viewErr != nil {
			s.logger.WarnContext(ctx, "listing_service: view increment failed",
				slog.String("listing_id", id),
				slog.String("error", viewErr.Error()),
			)
		}
	}

	return listing, nil
}

// ListActive returns active listings with pagination.
func (s *ListingService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	listings, err := s.listings.ListByStatus(ctx, domain.ListingStatusActive, opts)
	if err != nil {
		return nil, fmt.Errorf("listing_service: list active: %w", err)
	}
	return listings, nil
}

// ListBySeller returns a seller's listings with pagination.
func (s *ListingService) ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Listing, error) {
	listings, err := s.listings.ListBySeller(ctx, sellerID, opts)
	if err != nil {
		return nil, fmt.Errorf("listing_service: list by seller %q: %w", sellerID, err)
	}
	return listings, nil
}

func (s *ListingService) expireInline(ctx context.Context, listing domain.Listing, outcome domain.AuctionOutcome) {
	if err := s.listings.MarkExpired(ctx, listing.ID); err != nil {
		s.logger.WarnContext(ctx, "listing_service: lazy expiry failed",
			slog.String("listing_id", listing.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.publishEvent(ctx, map[string]string{
		"event":      "auction_expired",
		"listing_id": listing.ID,
		"outcome":    string(outcome),
	})
	s.auditLog(ctx, "auction_expired", map[string]any{
		"listing_id": listing.ID,
		"outcome":    string(outcome),
	})
}

func (s *ListingService) publishEvent(ctx context.Context, fields map[string]string) {
	evt, _ := json.Marshal(fields)
	if err := s.bus.Publish(ctx, "market", evt); err != nil {
		s.logger.WarnContext(ctx, "listing_service: publish event failed",
			slog.String("event", fields["event"]),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ListingService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "listing_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
