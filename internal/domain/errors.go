package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateListing = errors.New("active listing already exists for serial")
	ErrNotOwner         = errors.New("seller does not own serial")
	ErrNotActive        = errors.New("listing is not active")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrAuctionEnded     = errors.New("auction has ended")
	ErrAuctionNotEnded  = errors.New("auction has not ended")
	ErrWrongListingType = errors.New("wrong listing type")
	ErrSelfBid          = errors.New("seller cannot bid on own auction")
	ErrSelfPurchase     = errors.New("buyer is the seller")
	ErrBidTooLow        = errors.New("bid must exceed current bid")
	ErrBidsExist        = errors.New("auction with bids cannot be cancelled")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrStaleBid         = errors.New("current bid changed concurrently")
	ErrLockHeld         = errors.New("lock already held")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidCommand   = errors.New("invalid command")
)
