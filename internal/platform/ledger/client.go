// Package ledger is the REST client for the token-transfer service that
// executes NFT sales on the underlying ledger.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inkpress/comicmint/internal/crypto"
	"github.com/inkpress/comicmint/internal/domain"
)

// Client implements domain.LedgerGateway over the ledger service's HTTP API.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
}

// NewClient creates a new ledger API client.
//
// baseURL is the ledger service root, e.g. "https://ledger.internal:8443".
func NewClient(baseURL string, auth *crypto.HMACAuth) *Client {
	return &Client{
		baseURL: baseURL,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type transferPayload struct {
	TokenID      string `json:"token_id"`
	SerialNumber int64  `json:"serial_number"`
	FromAccount  string `json:"from_account"`
	ToAccount    string `json:"to_account"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Memo         string `json:"memo,omitempty"`
}

type transferResponse struct {
	TransactionID string `json:"transaction_id"`
	ExplorerURL   string `json:"explorer_url"`
	Status        string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TransferNFT submits an atomic payment-and-token transfer to the ledger
// service. A non-2xx response with a decodable error body is returned as a
// *domain.LedgerError so the settlement layer can persist the structured
// failure detail.
func (c *Client) TransferNFT(ctx context.Context, req domain.TransferRequest) (domain.TransferReceipt, error) {
	payload := transferPayload{
		TokenID:      req.TokenID,
		SerialNumber: req.SerialNumber,
		FromAccount:  req.FromAccount,
		ToAccount:    req.ToAccount,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Memo:         req.Memo,
	}

	body, err := c.doPost(ctx, "/v1/transfers", payload)
	if err != nil {
		return domain.TransferReceipt{}, err
	}

	var resp transferResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("ledger: decode transfer response: %w", err)
	}

	return domain.TransferReceipt{
		TransactionID: resp.TransactionID,
		ExplorerURL:   resp.ExplorerURL,
		Status:        resp.Status,
	}, nil
}

func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("ledger: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.auth.Headers(http.MethodPost, path, string(reqBody)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ledger: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return nil, &domain.LedgerError{Code: apiErr.Code, Message: apiErr.Message}
		}
		return nil, &domain.LedgerError{
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: string(body),
		}
	}

	return body, nil
}

// Compile-time interface check.
var _ domain.LedgerGateway = (*Client)(nil)
