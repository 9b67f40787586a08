package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/inkpress/comicmint/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type settlementFixture struct {
	listings *fakeListingStore
	txs      *fakeTransactionStore
	catalog  *fakeCatalog
	ledger   *fakeLedger
	locks    *fakeLockManager
	audit    *fakeAudit
	svc      *SettlementService
}

func newSettlementFixture(listings ...domain.Listing) *settlementFixture {
	f := &settlementFixture{
		listings: newFakeListingStore(listings...),
		txs:      newFakeTransactionStore(),
		catalog:  newFakeCatalog(),
		ledger:   &fakeLedger{receipt: domain.TransferReceipt{TransactionID: "0.0.777@1234", ExplorerURL: "https://explorer/tx/777", Status: "SUCCESS"}},
		locks:    &fakeLockManager{},
		audit:    &fakeAudit{},
	}
	f.catalog.comics["comic-1"] = domain.Comic{
		ID:             "comic-1",
		Title:          "Night Courier",
		CreatorID:      "creator-1",
		CreatorAccount: "0.0.100",
		RoyaltyPercent: 10,
	}
	f.svc = NewSettlementService(
		f.listings, f.txs, f.catalog, f.ledger, f.locks,
		&fakeBus{}, f.audit, discardLogger(), 2.5,
	)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func fixedPriceListing() domain.Listing {
	return domain.Listing{
		ID:           "lst-1",
		Type:         domain.ListingTypeFixedPrice,
		TokenID:      "0.0.5005",
		SerialNumber: 42,
		ComicID:      "comic-1",
		Seller:       domain.Party{UserID: "alice", AccountID: "0.0.200"},
		Price:        1000,
		Currency:     "PTS",
		Status:       domain.ListingStatusActive,
	}
}

func endedAuction() domain.Listing {
	return domain.Listing{
		ID:           "auc-1",
		Type:         domain.ListingTypeAuction,
		TokenID:      "0.0.5005",
		SerialNumber: 43,
		ComicID:      "comic-1",
		Seller:       domain.Party{UserID: "alice", AccountID: "0.0.200"},
		Price:        500,
		Currency:     "PTS",
		ReservePrice: 800,
		CurrentBid:   1000,
		TopBidder:    "bob",
		TopBidderAcc: "0.0.300",
		Bids: []domain.Bid{
			{Bidder: "bob", BidderAccount: "0.0.300", Amount: 1000, PlacedAt: testNow.Add(-time.Hour)},
		},
		StartTime: testNow.Add(-24 * time.Hour),
		EndTime:   testNow.Add(-time.Minute),
		Status:    domain.ListingStatusActive,
	}
}

func TestBuyHappyPath(t *testing.T) {
	f := newSettlementFixture(fixedPriceListing())
	buyer := domain.Party{UserID: "bob", AccountID: "0.0.300"}

	rec, err := f.svc.Buy(context.Background(), domain.BuyCommand{ListingID: "lst-1", Buyer: buyer})
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}

	if rec.Status != domain.TransactionStatusCompleted {
		t.Errorf("record status = %s, want completed", rec.Status)
	}
	if rec.Amount != 1000 || rec.PlatformFee != 25 || rec.RoyaltyFee != 100 {
		t.Errorf("fees = amount %d platform %d royalty %d, want 1000/25/100",
			rec.Amount, rec.PlatformFee, rec.RoyaltyFee)
	}
	if rec.LedgerTxID != "0.0.777@1234" {
		t.Errorf("ledger tx id = %q", rec.LedgerTxID)
	}

	listing, _ := f.listings.GetByID(context.Background(), "lst-1")
	if listing.Status != domain.ListingStatusSold {
		t.Errorf("listing status = %s, want sold", listing.Status)
	}
	if listing.Buyer != "bob" || listing.SaleTxID != "0.0.777@1234" {
		t.Errorf("listing buyer/saleTx = %q/%q", listing.Buyer, listing.SaleTxID)
	}

	if owner := f.catalog.owners[ownerKey("0.0.5005", 42)]; owner != "0.0.300" {
		t.Errorf("catalog owner = %q, want 0.0.300", owner)
	}

	stored, err := f.txs.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored.Status != domain.TransactionStatusCompleted {
		t.Errorf("stored status = %s, want completed", stored.Status)
	}
}

func TestBuyLedgerFailureLeavesListingActive(t *testing.T) {
	f := newSettlementFixture(fixedPriceListing())
	f.ledger.err = &domain.LedgerError{Code: "INSUFFICIENT_BALANCE", Message: "payer balance too low"}

	_, err := f.svc.Buy(context.Background(), domain.BuyCommand{
		ListingID: "lst-1",
		Buyer:     domain.Party{UserID: "bob", AccountID: "0.0.300"},
	})
	if err == nil {
		t.Fatal("Buy: expected error")
	}
	var lerr *domain.LedgerError
	if !errors.As(err, &lerr) || lerr.Code != "INSUFFICIENT_BALANCE" {
		t.Errorf("error = %v, want wrapped LedgerError", err)
	}

	listing, _ := f.listings.GetByID(context.Background(), "lst-1")
	if listing.Status != domain.ListingStatusActive {
		t.Errorf("listing status = %s, want active after ledger failure", listing.Status)
	}

	recs := f.txs.byListing("lst-1")
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Status != domain.TransactionStatusFailed {
		t.Errorf("record status = %s, want failed", recs[0].Status)
	}
	if recs[0].FailureCode != "INSUFFICIENT_BALANCE" {
		t.Errorf("failure code = %q", recs[0].FailureCode)
	}
	if f.catalog.ownerUpdates != 0 {
		t.Errorf("owner updates = %d, want 0", f.catalog.ownerUpdates)
	}
}

func TestBuyOwnershipUpdateFailure(t *testing.T) {
	f := newSettlementFixture(fixedPriceListing())
	f.catalog.updateOwnerErr = errors.New("catalog unavailable")

	_, err := f.svc.Buy(context.Background(), domain.BuyCommand{
		ListingID: "lst-1",
		Buyer:     domain.Party{UserID: "bob", AccountID: "0.0.300"},
	})
	if err == nil {
		t.Fatal("Buy: expected error")
	}

	// The ledger transfer applied but the catalog write failed: the record
	// carries the failure code and the listing stays open for repair.
	recs := f.txs.byListing("lst-1")
	if len(recs) != 1 || recs[0].FailureCode != "ownership_update_failed" {
		t.Fatalf("records = %+v, want one with ownership_update_failed", recs)
	}
	listing, _ := f.listings.GetByID(context.Background(), "lst-1")
	if listing.Status != domain.ListingStatusActive {
		t.Errorf("listing status = %s, want active", listing.Status)
	}
}

type completeSaleFailStore struct {
	*fakeListingStore
	err error
}

func (s *completeSaleFailStore) CompleteSale(context.Context, string, domain.Party, string) error {
	return s.err
}

func TestBuyCompleteSaleFailureMarksRecordFailed(t *testing.T) {
	f := newSettlementFixture(fixedPriceListing())
	store := &completeSaleFailStore{fakeListingStore: f.listings, err: errors.New("connection reset")}
	f.svc = NewSettlementService(
		store, f.txs, f.catalog, f.ledger, f.locks,
		&fakeBus{}, f.audit, discardLogger(), 2.5,
	)
	f.svc.now = func() time.Time { return testNow }

	_, err := f.svc.Buy(context.Background(), domain.BuyCommand{
		ListingID: "lst-1",
		Buyer:     domain.Party{UserID: "bob", AccountID: "0.0.300"},
	})
	if err == nil {
		t.Fatal("Buy: expected error")
	}

	// The ledger transfer applied but the listing close did not: the record
	// must not be left pending.
	recs := f.txs.byListing("lst-1")
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Status != domain.TransactionStatusFailed {
		t.Errorf("record status = %s, want failed", recs[0].Status)
	}
	if recs[0].FailureCode != "complete_sale_failed" {
		t.Errorf("failure code = %q, want complete_sale_failed", recs[0].FailureCode)
	}
	if f.ledger.calls != 1 {
		t.Errorf("ledger calls = %d, want 1", f.ledger.calls)
	}
}

func TestBuyValidation(t *testing.T) {
	tests := []struct {
		name    string
		listing domain.Listing
		buyer   domain.Party
		wantErr error
	}{
		{
			name:    "self purchase",
			listing: fixedPriceListing(),
			buyer:   domain.Party{UserID: "alice", AccountID: "0.0.200"},
			wantErr: domain.ErrSelfPurchase,
		},
		{
			name: "auction listing rejected",
			listing: func() domain.Listing {
				l := endedAuction()
				l.ID = "lst-1"
				return l
			}(),
			buyer:   domain.Party{UserID: "bob", AccountID: "0.0.300"},
			wantErr: domain.ErrWrongListingType,
		},
		{
			name: "sold listing rejected",
			listing: func() domain.Listing {
				l := fixedPriceListing()
				l.Status = domain.ListingStatusSold
				return l
			}(),
			buyer:   domain.Party{UserID: "bob", AccountID: "0.0.300"},
			wantErr: domain.ErrNotActive,
		},
		{
			// Terminal state wins over the type mismatch when both apply.
			name: "sold auction reported as not active",
			listing: func() domain.Listing {
				l := endedAuction()
				l.ID = "lst-1"
				l.Status = domain.ListingStatusSold
				return l
			}(),
			buyer:   domain.Party{UserID: "bob", AccountID: "0.0.300"},
			wantErr: domain.ErrNotActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSettlementFixture(tt.listing)
			_, err := f.svc.Buy(context.Background(), domain.BuyCommand{ListingID: "lst-1", Buyer: tt.buyer})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Buy error = %v, want %v", err, tt.wantErr)
			}
			if f.ledger.calls != 0 {
				t.Errorf("ledger calls = %d, want 0", f.ledger.calls)
			}
		})
	}
}

func TestBuyLockHeld(t *testing.T) {
	f := newSettlementFixture(fixedPriceListing())
	f.locks.held = true

	_, err := f.svc.Buy(context.Background(), domain.BuyCommand{
		ListingID: "lst-1",
		Buyer:     domain.Party{UserID: "bob", AccountID: "0.0.300"},
	})
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Errorf("Buy error = %v, want ErrLockHeld", err)
	}
}

func TestCompleteAuctionSale(t *testing.T) {
	f := newSettlementFixture(endedAuction())

	outcome, rec, err := f.svc.CompleteAuction(context.Background(), "auc-1")
	if err != nil {
		t.Fatalf("CompleteAuction: %v", err)
	}
	if outcome != domain.OutcomeSale {
		t.Errorf("outcome = %s, want sale", outcome)
	}
	if rec.Type != domain.TransactionTypeAuctionComplete {
		t.Errorf("record type = %s", rec.Type)
	}
	if rec.Amount != 1000 {
		t.Errorf("amount = %d, want winning bid 1000", rec.Amount)
	}
	if rec.Buyer.UserID != "bob" {
		t.Errorf("buyer = %q, want top bidder bob", rec.Buyer.UserID)
	}

	listing, _ := f.listings.GetByID(context.Background(), "auc-1")
	if listing.Status != domain.ListingStatusSold {
		t.Errorf("listing status = %s, want sold", listing.Status)
	}
}

func TestCompleteAuctionSecondCallFails(t *testing.T) {
	f := newSettlementFixture(endedAuction())

	if _, _, err := f.svc.CompleteAuction(context.Background(), "auc-1"); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	outcome, rec, err := f.svc.CompleteAuction(context.Background(), "auc-1")
	if !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("second completion error = %v, want ErrNotActive", err)
	}
	if outcome != "" {
		t.Errorf("outcome = %q, want empty on terminal-state error", outcome)
	}
	// The error still carries the existing record so callers can show
	// what settled the listing.
	if rec.Status != domain.TransactionStatusCompleted {
		t.Errorf("record status = %s, want existing completed record", rec.Status)
	}

	if f.ledger.calls != 1 {
		t.Errorf("ledger calls = %d, want 1", f.ledger.calls)
	}
	if recs := f.txs.byListing("auc-1"); len(recs) != 1 {
		t.Errorf("records = %d, want 1", len(recs))
	}
}

func TestCompleteAuctionReserveNotMet(t *testing.T) {
	auction := endedAuction()
	auction.CurrentBid = 700 // below the 800 reserve
	auction.Bids[0].Amount = 700
	f := newSettlementFixture(auction)

	outcome, rec, err := f.svc.CompleteAuction(context.Background(), "auc-1")
	if err != nil {
		t.Fatalf("CompleteAuction: %v", err)
	}
	if outcome != domain.OutcomeReserveNotMet {
		t.Errorf("outcome = %s, want reserve_not_met", outcome)
	}
	if rec.ID != "" {
		t.Errorf("unexpected record %+v", rec)
	}
	if f.ledger.calls != 0 {
		t.Errorf("ledger calls = %d, want 0", f.ledger.calls)
	}

	listing, _ := f.listings.GetByID(context.Background(), "auc-1")
	if listing.Status != domain.ListingStatusExpired {
		t.Errorf("listing status = %s, want expired", listing.Status)
	}
	if recs := f.txs.byListing("auc-1"); len(recs) != 0 {
		t.Errorf("records = %d, want 0", len(recs))
	}
}

func TestCompleteAuctionNoBids(t *testing.T) {
	auction := endedAuction()
	auction.CurrentBid = 0
	auction.TopBidder = ""
	auction.Bids = nil
	f := newSettlementFixture(auction)

	outcome, _, err := f.svc.CompleteAuction(context.Background(), "auc-1")
	if err != nil {
		t.Fatalf("CompleteAuction: %v", err)
	}
	if outcome != domain.OutcomeNoBids {
		t.Errorf("outcome = %s, want no_bids", outcome)
	}

	listing, _ := f.listings.GetByID(context.Background(), "auc-1")
	if listing.Status != domain.ListingStatusExpired {
		t.Errorf("listing status = %s, want expired", listing.Status)
	}
}

func TestCompleteAuctionNotEnded(t *testing.T) {
	auction := endedAuction()
	auction.EndTime = testNow.Add(time.Hour)
	f := newSettlementFixture(auction)

	_, _, err := f.svc.CompleteAuction(context.Background(), "auc-1")
	if !errors.Is(err, domain.ErrAuctionNotEnded) {
		t.Errorf("error = %v, want ErrAuctionNotEnded", err)
	}
}
