package domain

import (
	"fmt"
	"strings"
	"time"
)

// Commands are validated once at the boundary; services only ever see a
// command whose Validate has passed.

// CreateListingCommand creates a fixed-price listing.
type CreateListingCommand struct {
	Seller       Party
	TokenID      string
	SerialNumber int64
	ComicID      string
	EpisodeID    string
	Price        int64
	Currency     string
}

// Validate checks structural validity; ownership is verified separately
// against the catalog.
func (c CreateListingCommand) Validate() error {
	if err := validateParty("seller", c.Seller); err != nil {
		return err
	}
	if err := validateNFTRef(c.TokenID, c.SerialNumber, c.ComicID); err != nil {
		return err
	}
	if c.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidCommand)
	}
	if strings.TrimSpace(c.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidCommand)
	}
	return nil
}

// CreateAuctionCommand creates an auction listing. ReservePrice of zero
// means "default to the starting price", which is indistinguishable from
// an explicit reserve equal to the opening bid.
type CreateAuctionCommand struct {
	Seller        Party
	TokenID       string
	SerialNumber  int64
	ComicID       string
	EpisodeID     string
	StartingPrice int64
	ReservePrice  int64
	MinIncrement  int64
	Currency      string
	Duration      time.Duration
}

func (c CreateAuctionCommand) Validate() error {
	if err := validateParty("seller", c.Seller); err != nil {
		return err
	}
	if err := validateNFTRef(c.TokenID, c.SerialNumber, c.ComicID); err != nil {
		return err
	}
	if c.StartingPrice <= 0 {
		return fmt.Errorf("%w: starting price must be positive", ErrInvalidCommand)
	}
	if c.ReservePrice != 0 && c.ReservePrice < c.StartingPrice {
		return fmt.Errorf("%w: reserve price below starting price", ErrInvalidCommand)
	}
	if c.MinIncrement < 0 {
		return fmt.Errorf("%w: minimum increment must not be negative", ErrInvalidCommand)
	}
	if strings.TrimSpace(c.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidCommand)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidCommand)
	}
	return nil
}

// PlaceBidCommand places a bid on an auction listing.
type PlaceBidCommand struct {
	ListingID string
	Bidder    Party
	Amount    int64
}

func (c PlaceBidCommand) Validate() error {
	if strings.TrimSpace(c.ListingID) == "" {
		return fmt.Errorf("%w: listing id is required", ErrInvalidCommand)
	}
	if err := validateParty("bidder", c.Bidder); err != nil {
		return err
	}
	if c.Amount <= 0 {
		return fmt.Errorf("%w: bid amount must be positive", ErrInvalidCommand)
	}
	return nil
}

// CancelListingCommand withdraws an active listing.
type CancelListingCommand struct {
	ListingID string
	Requester string
}

func (c CancelListingCommand) Validate() error {
	if strings.TrimSpace(c.ListingID) == "" {
		return fmt.Errorf("%w: listing id is required", ErrInvalidCommand)
	}
	if strings.TrimSpace(c.Requester) == "" {
		return fmt.Errorf("%w: requester is required", ErrInvalidCommand)
	}
	return nil
}

// BuyCommand purchases a fixed-price listing outright.
type BuyCommand struct {
	ListingID string
	Buyer     Party
}

func (c BuyCommand) Validate() error {
	if strings.TrimSpace(c.ListingID) == "" {
		return fmt.Errorf("%w: listing id is required", ErrInvalidCommand)
	}
	return validateParty("buyer", c.Buyer)
}

func validateParty(role string, p Party) error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("%w: %s user id is required", ErrInvalidCommand, role)
	}
	if strings.TrimSpace(p.AccountID) == "" {
		return fmt.Errorf("%w: %s account id is required", ErrInvalidCommand, role)
	}
	return nil
}

func validateNFTRef(tokenID string, serial int64, comicID string) error {
	if strings.TrimSpace(tokenID) == "" {
		return fmt.Errorf("%w: token id is required", ErrInvalidCommand)
	}
	if serial <= 0 {
		return fmt.Errorf("%w: serial number must be positive", ErrInvalidCommand)
	}
	if strings.TrimSpace(comicID) == "" {
		return fmt.Errorf("%w: comic id is required", ErrInvalidCommand)
	}
	return nil
}
