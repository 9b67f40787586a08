package domain

import (
	"math"
	"time"
)

// ListingType distinguishes fixed-price sales from auctions.
type ListingType string

const (
	ListingTypeFixedPrice ListingType = "fixed_price"
	ListingTypeAuction    ListingType = "auction"
)

// ListingStatus tracks the listing lifecycle. Every status other than
// active is terminal.
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusExpired   ListingStatus = "expired"
)

// Party identifies a marketplace participant together with their account
// on the distributed ledger (e.g. "0.0.48291").
type Party struct {
	UserID    string
	AccountID string
}

// Bid is a single admitted bid on an auction listing.
type Bid struct {
	Bidder        string
	BidderAccount string
	Amount        int64 // minor units
	PlacedAt      time.Time
	TxRef         string // optional settlement reference, filled at completion
}

// Listing is one outstanding market offer for a single (tokenID, serial)
// pair. At most one active listing may exist per pair at any time; the
// listing store enforces this with a partial unique index.
type Listing struct {
	ID           string
	Type         ListingType
	TokenID      string
	SerialNumber int64
	ComicID      string
	EpisodeID    string

	Seller Party

	// Price is the asking price for fixed-price listings and the starting
	// price for auctions, in integer minor units of Currency.
	Price    int64
	Currency string

	// Auction fields; zero values for fixed-price listings.
	ReservePrice int64
	MinIncrement int64 // advisory only; admission requires strictly greater than CurrentBid
	CurrentBid   int64
	TopBidder    string
	TopBidderAcc string
	Bids         []Bid
	StartTime    time.Time
	EndTime      time.Time

	Status ListingStatus

	// Buyer fields, populated when the listing reaches sold.
	Buyer        string
	BuyerAccount string
	SaleTxID     string

	Views     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HighestBid returns the amount the next bid must strictly exceed: the
// running max bid, or the starting price when no bid has been admitted.
func (l *Listing) HighestBid() int64 {
	if l.CurrentBid > 0 {
		return l.CurrentBid
	}
	return l.Price
}

// Ended reports whether an auction's deadline has passed. Expiry is
// pull-based: callers must check this before admitting bids, since no
// background timer flips the status at EndTime.
func (l *Listing) Ended(now time.Time) bool {
	return l.Type == ListingTypeAuction && now.After(l.EndTime)
}

// CanBid validates a bid against the auction state machine. Admission
// requires an active, non-ended auction, a bidder other than the seller,
// and an amount strictly greater than the running bid. The minimum
// increment is advisory and deliberately not enforced here.
func (l *Listing) CanBid(bidder string, amount int64, now time.Time) error {
	if l.Type != ListingTypeAuction {
		return ErrWrongListingType
	}
	if l.Status != ListingStatusActive {
		return ErrAuctionNotActive
	}
	if l.Ended(now) {
		return ErrAuctionEnded
	}
	if bidder == l.Seller.UserID {
		return ErrSelfBid
	}
	if amount <= l.HighestBid() {
		return ErrBidTooLow
	}
	return nil
}

// CanCancel validates a cancel request. Auctions that have attracted at
// least one bid cannot be withdrawn unilaterally.
func (l *Listing) CanCancel(requester string) error {
	if requester != l.Seller.UserID {
		return ErrUnauthorized
	}
	if l.Status != ListingStatusActive {
		return ErrNotActive
	}
	if l.Type == ListingTypeAuction && len(l.Bids) > 0 {
		return ErrBidsExist
	}
	return nil
}

// AuctionOutcome is the result of evaluating an ended auction.
type AuctionOutcome string

const (
	// OutcomeNoBids ends the auction without a sale: nobody bid.
	OutcomeNoBids AuctionOutcome = "no_bids"
	// OutcomeReserveNotMet ends the auction without a sale: the running
	// bid never reached the reserve price.
	OutcomeReserveNotMet AuctionOutcome = "reserve_not_met"
	// OutcomeSale proceeds to settlement with the current bid holder.
	OutcomeSale AuctionOutcome = "sale"
)

// EvaluateEnd classifies an ended auction. The current bid holder at
// evaluation time wins; bids are totally ordered by arrival and CurrentBid
// is the running max, so no re-sorting is needed.
func (l *Listing) EvaluateEnd(now time.Time) (AuctionOutcome, error) {
	if l.Type != ListingTypeAuction {
		return "", ErrWrongListingType
	}
	if l.Status != ListingStatusActive {
		return "", ErrNotActive
	}
	if !l.Ended(now) {
		return "", ErrAuctionNotEnded
	}
	switch {
	case len(l.Bids) == 0:
		return OutcomeNoBids, nil
	case l.CurrentBid < l.ReservePrice:
		return OutcomeReserveNotMet, nil
	default:
		return OutcomeSale, nil
	}
}

// FloorAmount converts a possibly fractional display amount into integer
// minor units. The ledger only accepts integral transfer amounts, so
// fractional inputs are floored, never rounded.
func FloorAmount(v float64) int64 {
	return int64(math.Floor(v))
}
