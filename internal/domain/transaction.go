package domain

import "time"

// TransactionType names the settlement path that produced a record.
type TransactionType string

const (
	TransactionTypePurchase        TransactionType = "purchase"
	TransactionTypeAuctionComplete TransactionType = "auction_complete"
)

// TransactionStatus tracks a settlement attempt. A record is created
// pending and transitions exactly once to completed or failed.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// TransactionRecord is the durable audit entry for one settlement attempt.
// It is written before the ledger transfer is invoked so an audit trail
// exists even if the process dies mid-flight, and it is the source of
// truth for reconciliation when the listing, ownership, and record updates
// land non-atomically.
type TransactionRecord struct {
	ID     string
	Type   TransactionType
	Status TransactionStatus

	Buyer  Party
	Seller Party

	TokenID      string
	SerialNumber int64
	ComicID      string
	EpisodeID    string
	ListingID    string

	Amount   int64 // minor units
	Currency string

	PlatformFee int64
	RoyaltyFee  int64
	TotalFees   int64

	LedgerTxID  string
	ExplorerURL string

	FailureCode    string
	FailureMessage string

	InitiatedAt time.Time
	CompletedAt *time.Time
}
