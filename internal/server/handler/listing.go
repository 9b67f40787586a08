package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/inkpress/comicmint/internal/domain"
	"github.com/inkpress/comicmint/internal/service"
)

// ListingHandler serves the listing lifecycle endpoints.
type ListingHandler struct {
	svc    *service.ListingService
	logger *slog.Logger
}

// NewListingHandler creates a listing handler.
func NewListingHandler(svc *service.ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		svc:    svc,
		logger: logHandler(logger, "listing"),
	}
}

type partyRequest struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
}

func (p partyRequest) toDomain() domain.Party {
	return domain.Party{UserID: p.UserID, AccountID: p.AccountID}
}

// Monetary fields are accepted as JSON numbers and floored to integer minor
// units through domain.FloorAmount, so clients sending fractional display
// amounts never round a price up.
type createListingRequest struct {
	Seller       partyRequest `json:"seller"`
	TokenID      string       `json:"token_id"`
	SerialNumber int64        `json:"serial_number"`
	ComicID      string       `json:"comic_id"`
	EpisodeID    string       `json:"episode_id"`
	Price        float64      `json:"price"`
	Currency     string       `json:"currency"`
}

type createAuctionRequest struct {
	Seller          partyRequest `json:"seller"`
	TokenID         string       `json:"token_id"`
	SerialNumber    int64        `json:"serial_number"`
	ComicID         string       `json:"comic_id"`
	EpisodeID       string       `json:"episode_id"`
	StartingPrice   float64      `json:"starting_price"`
	ReservePrice    float64      `json:"reserve_price"`
	MinIncrement    float64      `json:"min_increment"`
	Currency        string       `json:"currency"`
	DurationSeconds int64        `json:"duration_seconds"`
}

type placeBidRequest struct {
	Bidder partyRequest `json:"bidder"`
	Amount float64      `json:"amount"`
}

// List returns active listings, or a seller's listings when the seller
// query parameter is present.
// GET /api/listings
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		listings []domain.Listing
		err      error
	)
	if seller := r.URL.Query().Get("seller"); seller != "" {
		listings, err = h.svc.ListBySeller(r.Context(), seller, opts)
	} else {
		listings, err = h.svc.ListActive(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list listings failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"listings": toListingResponses(listings),
		"count":    len(listings),
	})
}

// Get returns a single listing by id.
// GET /api/listings/{id}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	listing, err := h.svc.GetListing(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponse(listing))
}

// Create creates a fixed-price listing.
// POST /api/listings
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	listing, err := h.svc.CreateListing(r.Context(), domain.CreateListingCommand{
		Seller:       req.Seller.toDomain(),
		TokenID:      req.TokenID,
		SerialNumber: req.SerialNumber,
		ComicID:      req.ComicID,
		EpisodeID:    req.EpisodeID,
		Price:        domain.FloorAmount(req.Price),
		Currency:     req.Currency,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toListingResponse(listing))
}

// CreateAuction creates an auction listing.
// POST /api/auctions
func (h *ListingHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	listing, err := h.svc.CreateAuction(r.Context(), domain.CreateAuctionCommand{
		Seller:        req.Seller.toDomain(),
		TokenID:       req.TokenID,
		SerialNumber:  req.SerialNumber,
		ComicID:       req.ComicID,
		EpisodeID:     req.EpisodeID,
		StartingPrice: domain.FloorAmount(req.StartingPrice),
		ReservePrice:  domain.FloorAmount(req.ReservePrice),
		MinIncrement:  domain.FloorAmount(req.MinIncrement),
		Currency:      req.Currency,
		Duration:      time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toListingResponse(listing))
}

// PlaceBid places a bid on an auction listing.
// POST /api/listings/{id}/bids
func (h *ListingHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req placeBidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	listing, err := h.svc.PlaceBid(r.Context(), domain.PlaceBidCommand{
		ListingID: id,
		Bidder:    req.Bidder.toDomain(),
		Amount:    domain.FloorAmount(req.Amount),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponse(listing))
}

// Cancel withdraws an active listing. The requester is identified by the
// requester query parameter and must be the listing's seller.
// DELETE /api/listings/{id}
func (h *ListingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	requester := r.URL.Query().Get("requester")

	err := h.svc.Cancel(r.Context(), domain.CancelListingCommand{
		ListingID: id,
		Requester: requester,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"listing_id": id,
		"status":     string(domain.ListingStatusCancelled),
	})
}
