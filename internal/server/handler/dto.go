package handler

import (
	"time"

	"github.com/inkpress/comicmint/internal/domain"
)

// Response shapes are kept separate from the domain types so wire field
// names stay stable independent of internal renames.

type partyResponse struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
}

type bidResponse struct {
	Bidder        string    `json:"bidder"`
	BidderAccount string    `json:"bidder_account"`
	Amount        int64     `json:"amount"`
	PlacedAt      time.Time `json:"placed_at"`
}

type listingResponse struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	TokenID      string `json:"token_id"`
	SerialNumber int64  `json:"serial_number"`
	ComicID      string `json:"comic_id"`
	EpisodeID    string `json:"episode_id,omitempty"`

	Seller partyResponse `json:"seller"`

	Price    int64  `json:"price"`
	Currency string `json:"currency"`

	ReservePrice int64         `json:"reserve_price,omitempty"`
	MinIncrement int64         `json:"min_increment,omitempty"`
	CurrentBid   int64         `json:"current_bid,omitempty"`
	TopBidder    string        `json:"top_bidder,omitempty"`
	Bids         []bidResponse `json:"bids,omitempty"`
	StartTime    *time.Time    `json:"start_time,omitempty"`
	EndTime      *time.Time    `json:"end_time,omitempty"`

	Status string `json:"status"`

	Buyer    string `json:"buyer,omitempty"`
	SaleTxID string `json:"sale_tx_id,omitempty"`

	Views     int64     `json:"views"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toListingResponse(l domain.Listing) listingResponse {
	resp := listingResponse{
		ID:           l.ID,
		Type:         string(l.Type),
		TokenID:      l.TokenID,
		SerialNumber: l.SerialNumber,
		ComicID:      l.ComicID,
		EpisodeID:    l.EpisodeID,
		Seller: partyResponse{
			UserID:    l.Seller.UserID,
			AccountID: l.Seller.AccountID,
		},
		Price:        l.Price,
		Currency:     l.Currency,
		ReservePrice: l.ReservePrice,
		MinIncrement: l.MinIncrement,
		CurrentBid:   l.CurrentBid,
		TopBidder:    l.TopBidder,
		Status:       string(l.Status),
		Buyer:        l.Buyer,
		SaleTxID:     l.SaleTxID,
		Views:        l.Views,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}

	if l.Type == domain.ListingTypeAuction {
		start, end := l.StartTime, l.EndTime
		resp.StartTime = &start
		resp.EndTime = &end
	}

	for _, b := range l.Bids {
		resp.Bids = append(resp.Bids, bidResponse{
			Bidder:        b.Bidder,
			BidderAccount: b.BidderAccount,
			Amount:        b.Amount,
			PlacedAt:      b.PlacedAt,
		})
	}

	return resp
}

func toListingResponses(listings []domain.Listing) []listingResponse {
	out := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, toListingResponse(l))
	}
	return out
}

type transactionResponse struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status string `json:"status"`

	Buyer  partyResponse `json:"buyer"`
	Seller partyResponse `json:"seller"`

	TokenID      string `json:"token_id"`
	SerialNumber int64  `json:"serial_number"`
	ComicID      string `json:"comic_id"`
	EpisodeID    string `json:"episode_id,omitempty"`
	ListingID    string `json:"listing_id"`

	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`

	PlatformFee int64 `json:"platform_fee"`
	RoyaltyFee  int64 `json:"royalty_fee"`
	TotalFees   int64 `json:"total_fees"`

	LedgerTxID  string `json:"ledger_tx_id,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`

	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`

	InitiatedAt time.Time  `json:"initiated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toTransactionResponse(rec domain.TransactionRecord) transactionResponse {
	return transactionResponse{
		ID:     rec.ID,
		Type:   string(rec.Type),
		Status: string(rec.Status),
		Buyer: partyResponse{
			UserID:    rec.Buyer.UserID,
			AccountID: rec.Buyer.AccountID,
		},
		Seller: partyResponse{
			UserID:    rec.Seller.UserID,
			AccountID: rec.Seller.AccountID,
		},
		TokenID:        rec.TokenID,
		SerialNumber:   rec.SerialNumber,
		ComicID:        rec.ComicID,
		EpisodeID:      rec.EpisodeID,
		ListingID:      rec.ListingID,
		Amount:         rec.Amount,
		Currency:       rec.Currency,
		PlatformFee:    rec.PlatformFee,
		RoyaltyFee:     rec.RoyaltyFee,
		TotalFees:      rec.TotalFees,
		LedgerTxID:     rec.LedgerTxID,
		ExplorerURL:    rec.ExplorerURL,
		FailureCode:    rec.FailureCode,
		FailureMessage: rec.FailureMessage,
		InitiatedAt:    rec.InitiatedAt,
		CompletedAt:    rec.CompletedAt,
	}
}

func toTransactionResponses(recs []domain.TransactionRecord) []transactionResponse {
	out := make([]transactionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toTransactionResponse(rec))
	}
	return out
}
