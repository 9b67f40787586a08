// Package catalog is the REST client for the comic catalog service, which
// owns comic metadata and token ownership records.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/inkpress/comicmint/internal/crypto"
	"github.com/inkpress/comicmint/internal/domain"
)

// Client implements domain.Catalog over the catalog service's HTTP API.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
}

// NewClient creates a new catalog API client.
func NewClient(baseURL string, auth *crypto.HMACAuth) *Client {
	return &Client{
		baseURL: baseURL,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type apiComic struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	CreatorID      string  `json:"creator_id"`
	CreatorAccount string  `json:"creator_account"`
	RoyaltyPercent float64 `json:"royalty_percent"`
}

// GetComic returns the catalog record for a comic, including the creator's
// royalty percentage used in fee calculation.
func (c *Client) GetComic(ctx context.Context, comicID string) (domain.Comic, error) {
	path := fmt.Sprintf("/v1/comics/%s", url.PathEscape(comicID))

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Comic{}, fmt.Errorf("catalog: get comic %s: %w", comicID, err)
	}

	var comic apiComic
	if err := json.Unmarshal(body, &comic); err != nil {
		return domain.Comic{}, fmt.Errorf("catalog: decode comic: %w", err)
	}

	return domain.Comic{
		ID:             comic.ID,
		Title:          comic.Title,
		CreatorID:      comic.CreatorID,
		CreatorAccount: comic.CreatorAccount,
		RoyaltyPercent: comic.RoyaltyPercent,
	}, nil
}

// VerifyOwnership reports whether accountID currently owns the given token
// serial. Listing creation requires this before a serial can go on sale.
func (c *Client) VerifyOwnership(ctx context.Context, tokenID string, serial int64, accountID string) (bool, error) {
	path := fmt.Sprintf("/v1/tokens/%s/serials/%d/owner", url.PathEscape(tokenID), serial)

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, fmt.Errorf("catalog: verify ownership %s/%d: %w", tokenID, serial, err)
	}

	var resp struct {
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("catalog: decode owner: %w", err)
	}

	return resp.AccountID == accountID, nil
}

// UpdateOwner records the new owner of a token serial after a settled sale.
func (c *Client) UpdateOwner(ctx context.Context, tokenID string, serial int64, owner, ownerAccount string) error {
	path := fmt.Sprintf("/v1/tokens/%s/serials/%d/owner", url.PathEscape(tokenID), serial)

	payload := map[string]string{
		"owner_id":   owner,
		"account_id": ownerAccount,
	}
	if _, err := c.do(ctx, http.MethodPut, path, payload); err != nil {
		return fmt.Errorf("catalog: update owner %s/%d: %w", tokenID, serial, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody []byte
	var reader io.Reader
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.auth.Headers(method, path, string(reqBody)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	return body, nil
}

// Compile-time interface check.
var _ domain.Catalog = (*Client)(nil)
