package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/inkpress/comicmint/internal/domain"
)

// In-memory fakes for the store and collaborator interfaces. They enforce
// the same guards as the real implementations (active-only transitions,
// optimistic bid append, one completed record per listing) so the services
// are tested against the invariants they rely on.

type fakeListingStore struct {
	mu       sync.Mutex
	listings map[string]domain.Listing
}

func newFakeListingStore(listings ...domain.Listing) *fakeListingStore {
	s := &fakeListingStore{listings: make(map[string]domain.Listing)}
	for _, l := range listings {
		s.listings[l.ID] = l
	}
	return s
}

func (s *fakeListingStore) Create(_ context.Context, l domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.listings {
		if existing.TokenID == l.TokenID && existing.SerialNumber == l.SerialNumber &&
			existing.Status == domain.ListingStatusActive {
			return domain.ErrDuplicateListing
		}
	}
	s.listings[l.ID] = l
	return nil
}

func (s *fakeListingStore) GetByID(_ context.Context, id string) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (s *fakeListingStore) ListByStatus(_ context.Context, status domain.ListingStatus, _ domain.ListOpts) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeListingStore) ListBySeller(_ context.Context, sellerID string, _ domain.ListOpts) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if l.Seller.UserID == sellerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeListingStore) AppendBid(_ context.Context, listingID string, b domain.Bid, expectedBid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[listingID]
	if !ok {
		return domain.ErrNotFound
	}
	if l.Status != domain.ListingStatusActive {
		return domain.ErrAuctionNotActive
	}
	if l.CurrentBid != expectedBid {
		return domain.ErrStaleBid
	}
	l.CurrentBid = b.Amount
	l.TopBidder = b.Bidder
	l.TopBidderAcc = b.BidderAccount
	l.Bids = append(l.Bids, b)
	s.listings[listingID] = l
	return nil
}

func (s *fakeListingStore) CompleteSale(_ context.Context, listingID string, buyer domain.Party, ledgerTxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[listingID]
	if !ok {
		return domain.ErrNotFound
	}
	if l.Status != domain.ListingStatusActive {
		return domain.ErrNotActive
	}
	l.Status = domain.ListingStatusSold
	l.Buyer = buyer.UserID
	l.BuyerAccount = buyer.AccountID
	l.SaleTxID = ledgerTxID
	s.listings[listingID] = l
	return nil
}

func (s *fakeListingStore) MarkCancelled(_ context.Context, listingID string) error {
	return s.transition(listingID, domain.ListingStatusCancelled)
}

func (s *fakeListingStore) MarkExpired(_ context.Context, listingID string) error {
	return s.transition(listingID, domain.ListingStatusExpired)
}

func (s *fakeListingStore) transition(listingID string, to domain.ListingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[listingID]
	if !ok {
		return domain.ErrNotFound
	}
	if l.Status != domain.ListingStatusActive {
		return domain.ErrNotActive
	}
	l.Status = to
	s.listings[listingID] = l
	return nil
}

func (s *fakeListingStore) ListEndedAuctions(_ context.Context, now time.Time, _ int) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if l.Type == domain.ListingTypeAuction && l.Status == domain.ListingStatusActive && now.After(l.EndTime) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeListingStore) ListSoldWithoutRecord(_ context.Context, _ int) ([]domain.Listing, error) {
	return nil, nil
}

func (s *fakeListingStore) AddViews(_ context.Context, counts map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range counts {
		if l, ok := s.listings[id]; ok {
			l.Views += n
			s.listings[id] = l
		}
	}
	return nil
}

type fakeTransactionStore struct {
	mu      sync.Mutex
	records map[string]domain.TransactionRecord
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{records: make(map[string]domain.TransactionRecord)}
}

func (s *fakeTransactionStore) Create(_ context.Context, rec domain.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Status == domain.TransactionStatusCompleted {
		for _, r := range s.records {
			if r.ListingID == rec.ListingID && r.Status == domain.TransactionStatusCompleted {
				return fmt.Errorf("duplicate completed record for listing %s", rec.ListingID)
			}
		}
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeTransactionStore) GetByID(_ context.Context, id string) (domain.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.TransactionRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *fakeTransactionStore) GetByListingID(_ context.Context, listingID string) (domain.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *domain.TransactionRecord
	for _, rec := range s.records {
		if rec.ListingID == listingID {
			r := rec
			if found == nil || r.InitiatedAt.After(found.InitiatedAt) {
				found = &r
			}
		}
	}
	if found == nil {
		return domain.TransactionRecord{}, domain.ErrNotFound
	}
	return *found, nil
}

func (s *fakeTransactionStore) ExistsCompletedForListing(_ context.Context, listingID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ListingID == listingID && rec.Status == domain.TransactionStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeTransactionStore) MarkCompleted(_ context.Context, id, ledgerTxID, explorerURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Status != domain.TransactionStatusPending {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	rec.Status = domain.TransactionStatusCompleted
	rec.LedgerTxID = ledgerTxID
	rec.ExplorerURL = explorerURL
	rec.CompletedAt = &now
	s.records[id] = rec
	return nil
}

func (s *fakeTransactionStore) MarkFailed(_ context.Context, id, code, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Status != domain.TransactionStatusPending {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	rec.Status = domain.TransactionStatusFailed
	rec.FailureCode = code
	rec.FailureMessage = message
	rec.CompletedAt = &now
	s.records[id] = rec
	return nil
}

func (s *fakeTransactionStore) List(_ context.Context, _ domain.ListOpts) ([]domain.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransactionRecord
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeTransactionStore) ListTerminalBefore(_ context.Context, cutoff time.Time, _ int) ([]domain.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransactionRecord
	for _, rec := range s.records {
		if rec.Status != domain.TransactionStatusPending && rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeTransactionStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeTransactionStore) byListing(listingID string) []domain.TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransactionRecord
	for _, rec := range s.records {
		if rec.ListingID == listingID {
			out = append(out, rec)
		}
	}
	return out
}

type fakeCatalog struct {
	mu     sync.Mutex
	comics map[string]domain.Comic
	owners map[string]string // tokenID/serial -> accountID

	updateOwnerErr error
	ownerUpdates   int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		comics: make(map[string]domain.Comic),
		owners: make(map[string]string),
	}
}

func ownerKey(tokenID string, serial int64) string {
	return fmt.Sprintf("%s/%d", tokenID, serial)
}

func (c *fakeCatalog) GetComic(_ context.Context, comicID string) (domain.Comic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comic, ok := c.comics[comicID]
	if !ok {
		return domain.Comic{}, domain.ErrNotFound
	}
	return comic, nil
}

func (c *fakeCatalog) VerifyOwnership(_ context.Context, tokenID string, serial int64, accountID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owners[ownerKey(tokenID, serial)] == accountID, nil
}

func (c *fakeCatalog) UpdateOwner(_ context.Context, tokenID string, serial int64, _, ownerAccount string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updateOwnerErr != nil {
		return c.updateOwnerErr
	}
	c.owners[ownerKey(tokenID, serial)] = ownerAccount
	c.ownerUpdates++
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	receipt domain.TransferReceipt
	err     error
	calls   int
}

func (l *fakeLedger) TransferNFT(_ context.Context, _ domain.TransferRequest) (domain.TransferReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return domain.TransferReceipt{}, l.err
	}
	return l.receipt, nil
}

type fakeLockManager struct {
	held bool
}

func (l *fakeLockManager) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

type fakeBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *fakeBus) StreamAppend(context.Context, string, []byte) error      { return nil }
func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (a *fakeAudit) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeLimiter struct {
	denied bool
}

func (l *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return !l.denied, nil
}

func (l *fakeLimiter) Wait(context.Context, string) error { return nil }

type fakeViewCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeViewCounter() *fakeViewCounter {
	return &fakeViewCounter{counts: make(map[string]int64)}
}

func (v *fakeViewCounter) Increment(_ context.Context, listingID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[listingID]++
	return nil
}

func (v *fakeViewCounter) Drain(context.Context) (map[string]int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.counts
	v.counts = make(map[string]int64)
	return out, nil
}
