package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Intent is a payment intent opened at the gateway for the escrow deposit.
type Intent struct {
	ID         string `json:"id"`
	PaymentURL string `json:"payment_url"`
}

// Client talks to the external payment disbursement gateway over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateIntent opens a payment intent for the deposit tranche.
func (c *Client) CreateIntent(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, customerPhone string) (*Intent, error) {
	body := map[string]interface{}{
		"order_id":       orderID.String(),
		"amount":         amount.StringFixed(2),
		"customer_phone": customerPhone,
	}
	var intent Intent
	if err := c.post(ctx, "/v1/intents", body, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// Disburse pays a released escrow tranche out to the tailor.
func (c *Client) Disburse(ctx context.Context, tailorID uuid.UUID, amount decimal.Decimal, reference string) error {
	body := map[string]interface{}{
		"recipient_id": tailorID.String(),
		"amount":       amount.StringFixed(2),
		"reference":    reference,
	}
	return c.post(ctx, "/v1/disbursements", body, nil)
}

// Refund returns escrowed funds to the customer.
func (c *Client) Refund(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, reference string) error {
	body := map[string]interface{}{
		"recipient_id": customerID.String(),
		"amount":       amount.StringFixed(2),
		"reference":    reference,
	}
	return c.post(ctx, "/v1/refunds", body, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("payout: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("payout: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payout: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var gwErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&gwErr)
		if gwErr.Error != "" {
			return fmt.Errorf("payout: %s returned %d: %s", path, resp.StatusCode, gwErr.Error)
		}
		return fmt.Errorf("payout: %s returned %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("payout: decode response: %w", err)
		}
	}
	return nil
}
