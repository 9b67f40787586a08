package service

import (
	"context"
	"testing"
	"time"

	"github.com/inkpress/comicmint/internal/domain"
)

func soldAuctionWithoutRecord() domain.Listing {
	return domain.Listing{
		ID:           "auc-9",
		Type:         domain.ListingTypeAuction,
		TokenID:      "0.0.5005",
		SerialNumber: 99,
		ComicID:      "comic-1",
		Seller:       domain.Party{UserID: "alice", AccountID: "0.0.200"},
		Price:        500,
		Currency:     "PTS",
		ReservePrice: 500,
		CurrentBid:   1200,
		TopBidder:    "bob",
		TopBidderAcc: "0.0.300",
		Status:       domain.ListingStatusSold,
		Buyer:        "bob",
		BuyerAccount: "0.0.300",
		SaleTxID:     "0.0.777@5555",
	}
}

func newReconcileFixture(listings ...domain.Listing) (*ReconcileService, *fakeTransactionStore) {
	store := newFakeListingStore(listings...)
	txs := newFakeTransactionStore()
	catalog := newFakeCatalog()
	catalog.comics["comic-1"] = domain.Comic{
		ID:             "comic-1",
		CreatorAccount: "0.0.100",
		RoyaltyPercent: 10,
	}
	svc := NewReconcileService(store, txs, catalog, &fakeAudit{}, discardLogger(), 2.5)
	svc.now = func() time.Time { return testNow }
	return svc, txs
}

func TestBackfillSynthesizesRecord(t *testing.T) {
	svc, txs := newReconcileFixture(soldAuctionWithoutRecord())

	report, err := svc.Backfill(context.Background(), []string{"auc-9"})
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if report.Created != 1 || report.Examined != 1 {
		t.Errorf("report = %+v, want 1 examined 1 created", report)
	}

	recs := txs.byListing("auc-9")
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Status != domain.TransactionStatusCompleted {
		t.Errorf("status = %s, want completed", rec.Status)
	}
	if rec.Type != domain.TransactionTypeAuctionComplete {
		t.Errorf("type = %s, want auction_complete", rec.Type)
	}
	if rec.Amount != 1200 {
		t.Errorf("amount = %d, want winning bid 1200", rec.Amount)
	}
	if rec.PlatformFee != 30 || rec.RoyaltyFee != 120 {
		t.Errorf("fees = %d/%d, want 30/120", rec.PlatformFee, rec.RoyaltyFee)
	}
	if rec.LedgerTxID != "0.0.777@5555" {
		t.Errorf("ledger tx id = %q, want the listing's sale reference", rec.LedgerTxID)
	}
	if rec.Buyer.UserID != "bob" || rec.Buyer.AccountID != "0.0.300" {
		t.Errorf("buyer = %+v", rec.Buyer)
	}
}

func TestBackfillIdempotent(t *testing.T) {
	svc, txs := newReconcileFixture(soldAuctionWithoutRecord())

	if _, err := svc.Backfill(context.Background(), []string{"auc-9"}); err != nil {
		t.Fatalf("first backfill: %v", err)
	}
	report, err := svc.Backfill(context.Background(), []string{"auc-9"})
	if err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	if report.Created != 0 || report.Skipped != 1 {
		t.Errorf("report = %+v, want 0 created 1 skipped", report)
	}
	if recs := txs.byListing("auc-9"); len(recs) != 1 {
		t.Errorf("records = %d, want 1", len(recs))
	}
}

func TestBackfillSkipsNonSold(t *testing.T) {
	svc, txs := newReconcileFixture(fixedPriceListing())

	report, err := svc.Backfill(context.Background(), []string{"lst-1"})
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if report.Created != 0 || report.Skipped != 1 {
		t.Errorf("report = %+v, want skipped", report)
	}
	if recs := txs.byListing("lst-1"); len(recs) != 0 {
		t.Errorf("records = %d, want 0", len(recs))
	}
}

func TestBackfillFixedPriceUsesAskingPrice(t *testing.T) {
	sold := fixedPriceListing()
	sold.Status = domain.ListingStatusSold
	sold.Buyer = "bob"
	sold.BuyerAccount = "0.0.300"
	sold.SaleTxID = "0.0.777@6666"
	svc, txs := newReconcileFixture(sold)

	if _, err := svc.Backfill(context.Background(), []string{"lst-1"}); err != nil {
		t.Fatalf("Backfill: %v", err)
	}

	recs := txs.byListing("lst-1")
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Type != domain.TransactionTypePurchase || recs[0].Amount != 1000 {
		t.Errorf("record = type %s amount %d, want purchase/1000", recs[0].Type, recs[0].Amount)
	}
}
