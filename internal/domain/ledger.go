package domain

import (
	"context"
	"fmt"
)

// TransferRequest asks the ledger service to move one NFT serial between
// accounts, optionally settling payment in the same transaction. Amounts
// are integral minor units; the ledger rejects fractional transfers.
type TransferRequest struct {
	TokenID      string
	SerialNumber int64
	FromAccount  string
	ToAccount    string
	Amount       int64
	Currency     string
	Memo         string
}

// TransferReceipt is the ledger service's confirmation of an executed
// transfer. The transfer either fully applied on the distributed ledger
// or did not; the local record of that outcome is only as reliable as
// this receipt.
type TransferReceipt struct {
	TransactionID string
	ExplorerURL   string
	Status        string
}

// LedgerGateway executes NFT ownership transfers on the underlying
// distributed ledger. Transfers are at-least-once; callers must treat a
// returned error as "outcome unknown" and lean on the transaction record
// for reconciliation.
type LedgerGateway interface {
	TransferNFT(ctx context.Context, req TransferRequest) (TransferReceipt, error)
}

// LedgerError is a structured failure from the ledger service, preserved
// verbatim into the transaction record.
type LedgerError struct {
	Code    string
	Message string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger: %s: %s", e.Code, e.Message)
}

// Comic is the catalog metadata the settlement engine needs: who created
// the comic and what royalty they take on every resale.
type Comic struct {
	ID             string
	Title          string
	CreatorID      string
	CreatorAccount string
	RoyaltyPercent float64
}

// Catalog is the comic/episode collaborator. It owns comic metadata and
// the NFT ownership records; the settlement engine mutates ownership only
// through it, and only after a confirmed ledger transfer.
type Catalog interface {
	GetComic(ctx context.Context, comicID string) (Comic, error)
	VerifyOwnership(ctx context.Context, tokenID string, serialNumber int64, accountID string) (bool, error)
	UpdateOwner(ctx context.Context, tokenID string, serialNumber int64, owner, ownerAccount string) error
}
