package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkpress/comicmint/internal/domain"
)

type listingFixture struct {
	listings *fakeListingStore
	catalog  *fakeCatalog
	limiter  *fakeLimiter
	views    *fakeViewCounter
	svc      *ListingService
}

func newListingFixture(listings ...domain.Listing) *listingFixture {
	f := &listingFixture{
		listings: newFakeListingStore(listings...),
		catalog:  newFakeCatalog(),
		limiter:  &fakeLimiter{},
		views:    newFakeViewCounter(),
	}
	f.catalog.owners[ownerKey("0.0.5005", 42)] = "0.0.200"
	f.svc = NewListingService(
		f.listings, f.catalog, f.limiter, &fakeBus{}, &fakeAudit{}, f.views, discardLogger(),
	)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func TestCreateListing(t *testing.T) {
	f := newListingFixture()

	listing, err := f.svc.CreateListing(context.Background(), domain.CreateListingCommand{
		Seller:       domain.Party{UserID: "alice", AccountID: "0.0.200"},
		TokenID:      "0.0.5005",
		SerialNumber: 42,
		ComicID:      "comic-1",
		Price:        1000,
		Currency:     "PTS",
	})
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if listing.Status != domain.ListingStatusActive {
		t.Errorf("status = %s, want active", listing.Status)
	}
	if listing.Type != domain.ListingTypeFixedPrice {
		t.Errorf("type = %s, want fixed_price", listing.Type)
	}
	if listing.ID == "" {
		t.Error("listing id not assigned")
	}
}

func TestCreateListingNotOwner(t *testing.T) {
	f := newListingFixture()

	_, err := f.svc.CreateListing(context.Background(), domain.CreateListingCommand{
		Seller:       domain.Party{UserID: "mallory", AccountID: "0.0.999"},
		TokenID:      "0.0.5005",
		SerialNumber: 42,
		ComicID:      "comic-1",
		Price:        1000,
		Currency:     "PTS",
	})
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Errorf("error = %v, want ErrNotOwner", err)
	}
}

func TestCreateListingDuplicateSerial(t *testing.T) {
	f := newListingFixture(fixedPriceListing())

	_, err := f.svc.CreateListing(context.Background(), domain.CreateListingCommand{
		Seller:       domain.Party{UserID: "alice", AccountID: "0.0.200"},
		TokenID:      "0.0.5005",
		SerialNumber: 42,
		ComicID:      "comic-1",
		Price:        2000,
		Currency:     "PTS",
	})
	if !errors.Is(err, domain.ErrDuplicateListing) {
		t.Errorf("error = %v, want ErrDuplicateListing", err)
	}
}

func TestCreateAuctionReserveDefaults(t *testing.T) {
	f := newListingFixture()

	listing, err := f.svc.CreateAuction(context.Background(), domain.CreateAuctionCommand{
		Seller:        domain.Party{UserID: "alice", AccountID: "0.0.200"},
		TokenID:       "0.0.5005",
		SerialNumber:  42,
		ComicID:       "comic-1",
		StartingPrice: 500,
		Currency:      "PTS",
		Duration:      24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if listing.ReservePrice != 500 {
		t.Errorf("reserve = %d, want starting price 500", listing.ReservePrice)
	}
	if got, want := listing.EndTime, testNow.Add(24*time.Hour); !got.Equal(want) {
		t.Errorf("end time = %v, want %v", got, want)
	}
}

func TestPlaceBid(t *testing.T) {
	auction := endedAuction()
	auction.EndTime = testNow.Add(time.Hour)
	f := newListingFixture(auction)

	listing, err := f.svc.PlaceBid(context.Background(), domain.PlaceBidCommand{
		ListingID: "auc-1",
		Bidder:    domain.Party{UserID: "carol", AccountID: "0.0.400"},
		Amount:    1100,
	})
	if err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if listing.CurrentBid != 1100 || listing.TopBidder != "carol" {
		t.Errorf("current bid = %d by %q, want 1100 by carol", listing.CurrentBid, listing.TopBidder)
	}
	if len(listing.Bids) != 2 {
		t.Errorf("bids = %d, want 2", len(listing.Bids))
	}
}

func TestPlaceBidErrors(t *testing.T) {
	openAuction := func() domain.Listing {
		a := endedAuction()
		a.EndTime = testNow.Add(time.Hour)
		return a
	}

	tests := []struct {
		name    string
		listing domain.Listing
		cmd     domain.PlaceBidCommand
		denied  bool
		wantErr error
	}{
		{
			name:    "too low",
			listing: openAuction(),
			cmd: domain.PlaceBidCommand{
				ListingID: "auc-1",
				Bidder:    domain.Party{UserID: "carol", AccountID: "0.0.400"},
				Amount:    1000,
			},
			wantErr: domain.ErrBidTooLow,
		},
		{
			name:    "seller bidding",
			listing: openAuction(),
			cmd: domain.PlaceBidCommand{
				ListingID: "auc-1",
				Bidder:    domain.Party{UserID: "alice", AccountID: "0.0.200"},
				Amount:    1100,
			},
			wantErr: domain.ErrSelfBid,
		},
		{
			name:    "ended auction",
			listing: endedAuction(),
			cmd: domain.PlaceBidCommand{
				ListingID: "auc-1",
				Bidder:    domain.Party{UserID: "carol", AccountID: "0.0.400"},
				Amount:    1100,
			},
			wantErr: domain.ErrAuctionEnded,
		},
		{
			name: "fixed price listing",
			listing: func() domain.Listing {
				l := fixedPriceListing()
				l.ID = "auc-1"
				return l
			}(),
			cmd: domain.PlaceBidCommand{
				ListingID: "auc-1",
				Bidder:    domain.Party{UserID: "carol", AccountID: "0.0.400"},
				Amount:    1100,
			},
			wantErr: domain.ErrWrongListingType,
		},
		{
			name:    "rate limited",
			listing: openAuction(),
			cmd: domain.PlaceBidCommand{
				ListingID: "auc-1",
				Bidder:    domain.Party{UserID: "carol", AccountID: "0.0.400"},
				Amount:    1100,
			},
			denied:  true,
			wantErr: domain.ErrRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newListingFixture(tt.listing)
			f.limiter.denied = tt.denied

			_, err := f.svc.PlaceBid(context.Background(), tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("PlaceBid error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlaceBidStaleConflict(t *testing.T) {
	auction := endedAuction()
	auction.EndTime = testNow.Add(time.Hour)
	f := newListingFixture(auction)

	// A competing bid lands between the read and the append.
	raced := domain.Bid{Bidder: "dave", BidderAccount: "0.0.500", Amount: 1050, PlacedAt: testNow}
	if err := f.listings.AppendBid(context.Background(), "auc-1", raced, 1000); err != nil {
		t.Fatalf("racing append: %v", err)
	}

	svc := f.svc
	svc.listings = &staleReadStore{fakeListingStore: f.listings, staleBid: 1000}

	_, err := svc.PlaceBid(context.Background(), domain.PlaceBidCommand{
		ListingID: "auc-1",
		Bidder:    domain.Party{UserID: "carol", AccountID: "0.0.400"},
		Amount:    1100,
	})
	if !errors.Is(err, domain.ErrStaleBid) {
		t.Errorf("PlaceBid error = %v, want ErrStaleBid", err)
	}
}

// staleReadStore serves reads with a stale current bid to simulate a racing
// bidder; writes pass through to the backing store's compare-and-swap.
type staleReadStore struct {
	*fakeListingStore
	staleBid int64
}

func (s *staleReadStore) GetByID(ctx context.Context, id string) (domain.Listing, error) {
	l, err := s.fakeListingStore.GetByID(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	l.CurrentBid = s.staleBid
	return l, nil
}

func TestPlaceBidLazyExpiry(t *testing.T) {
	auction := endedAuction()
	auction.CurrentBid = 700 // below reserve: soft ending
	auction.Bids[0].Amount = 700
	f := newListingFixture(auction)

	_, err := f.svc.PlaceBid(context.Background(), domain.PlaceBidCommand{
		ListingID: "auc-1",
		Bidder:    domain.Party{UserID: "carol", AccountID: "0.0.400"},
		Amount:    1100,
	})
	if !errors.Is(err, domain.ErrAuctionEnded) {
		t.Fatalf("PlaceBid error = %v, want ErrAuctionEnded", err)
	}

	listing, _ := f.listings.GetByID(context.Background(), "auc-1")
	if listing.Status != domain.ListingStatusExpired {
		t.Errorf("listing status = %s, want expired via lazy expiry", listing.Status)
	}
}

func TestPlaceBidEndedWithViableSaleLeftForSweep(t *testing.T) {
	f := newListingFixture(endedAuction()) // reserve met, ended

	_, err := f.svc.PlaceBid(context.Background(), domain.PlaceBidCommand{
		ListingID: "auc-1",
		Bidder:    domain.Party{UserID: "carol", AccountID: "0.0.400"},
		Amount:    1100,
	})
	if !errors.Is(err, domain.ErrAuctionEnded) {
		t.Fatalf("PlaceBid error = %v, want ErrAuctionEnded", err)
	}

	// Settlement needs the ledger, so the sweep completes it, not the bid path.
	listing, _ := f.listings.GetByID(context.Background(), "auc-1")
	if listing.Status != domain.ListingStatusActive {
		t.Errorf("listing status = %s, want active pending sweep", listing.Status)
	}
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name      string
		listing   domain.Listing
		requester string
		wantErr   error
	}{
		{
			name:      "seller cancels fixed price",
			listing:   fixedPriceListing(),
			requester: "alice",
		},
		{
			name: "auction without bids",
			listing: func() domain.Listing {
				a := endedAuction()
				a.EndTime = testNow.Add(time.Hour)
				a.CurrentBid = 0
				a.Bids = nil
				return a
			}(),
			requester: "alice",
		},
		{
			name: "auction with bids refused",
			listing: func() domain.Listing {
				a := endedAuction()
				a.EndTime = testNow.Add(time.Hour)
				return a
			}(),
			requester: "alice",
			wantErr:   domain.ErrBidsExist,
		},
		{
			name:      "non-seller refused",
			listing:   fixedPriceListing(),
			requester: "mallory",
			wantErr:   domain.ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newListingFixture(tt.listing)
			err := f.svc.Cancel(context.Background(), domain.CancelListingCommand{
				ListingID: tt.listing.ID,
				Requester: tt.requester,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Cancel error = %v, want %v", err, tt.wantErr)
			}
			listing, _ := f.listings.GetByID(context.Background(), tt.listing.ID)
			wantStatus := domain.ListingStatusCancelled
			if tt.wantErr != nil {
				wantStatus = domain.ListingStatusActive
			}
			if listing.Status != wantStatus {
				t.Errorf("listing status = %s, want %s", listing.Status, wantStatus)
			}
		})
	}
}

func TestGetListingCountsView(t *testing.T) {
	f := newListingFixture(fixedPriceListing())

	if _, err := f.svc.GetListing(context.Background(), "lst-1"); err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if _, err := f.svc.GetListing(context.Background(), "lst-1"); err != nil {
		t.Fatalf("GetListing: %v", err)
	}

	counts, _ := f.views.Drain(context.Background())
	if counts["lst-1"] != 2 {
		t.Errorf("buffered views = %d, want 2", counts["lst-1"])
	}
}
