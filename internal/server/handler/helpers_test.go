package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/inkpress/comicmint/internal/domain"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid command", domain.ErrInvalidCommand, http.StatusBadRequest},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"not owner", domain.ErrNotOwner, http.StatusForbidden},
		{"unauthorized", domain.ErrUnauthorized, http.StatusForbidden},
		{"duplicate listing", domain.ErrDuplicateListing, http.StatusConflict},
		{"stale bid", domain.ErrStaleBid, http.StatusConflict},
		{"bid too low", domain.ErrBidTooLow, http.StatusConflict},
		{"auction ended", domain.ErrAuctionEnded, http.StatusConflict},
		{"lock held", domain.ErrLockHeld, http.StatusConflict},
		{"self purchase", domain.ErrSelfPurchase, http.StatusBadRequest},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"ledger failure", &domain.LedgerError{Code: "INSUFFICIENT_BALANCE"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusForWrappedError(t *testing.T) {
	err := errors.Join(errors.New("listing_service: get listing"), domain.ErrNotFound)
	if got := statusForError(err); got != http.StatusNotFound {
		t.Errorf("statusForError(wrapped not found) = %d, want 404", got)
	}
}

func TestParseListOpts(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 50, 0},
		{"explicit", "limit=10&offset=20", 10, 20},
		{"capped", "limit=9999", 500, 0},
		{"garbage ignored", "limit=abc&offset=-3", 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/listings?"+tt.query, nil)
			opts := parseListOpts(r)
			if opts.Limit != tt.wantLimit || opts.Offset != tt.wantOffset {
				t.Errorf("parseListOpts(%q) = limit %d offset %d, want %d/%d",
					tt.query, opts.Limit, opts.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestParseListOptsTimeWindow(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/api/transactions?since=2026-01-01T00:00:00Z&until=2026-02-01T00:00:00Z", nil)
	opts := parseListOpts(r)
	if opts.Since == nil || opts.Until == nil {
		t.Fatalf("since/until not parsed: %+v", opts)
	}
	if !opts.Until.After(*opts.Since) {
		t.Errorf("until %v not after since %v", opts.Until, opts.Since)
	}
}

func TestHealthDegraded(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when a dependency is down", rec.Code)
	}
}

func TestHealthOK(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"postgres": func(context.Context) error { return nil },
	})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
