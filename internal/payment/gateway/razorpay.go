package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"examreg/pkg/derrors"
)

// RazorpayClient talks to the Razorpay Orders API over REST with basic auth.
// Requests are bounded by the client timeout; callers get transient errors
// they may retry, never partial state.
type RazorpayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	return &RazorpayClient{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: timeout},
	}
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type razorpayPayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":   in.Amount,
		"currency": in.Currency,
		"receipt":  in.Receipt,
		"notes":    in.Notes,
	})
	if err != nil {
		return Order{}, fmt.Errorf("marshal order: %w", err)
	}

	var created razorpayOrder
	if err := c.do(ctx, http.MethodPost, "/orders", bytes.NewReader(payload), &created); err != nil {
		return Order{}, err
	}
	return Order{ID: created.ID, Amount: created.Amount, Currency: created.Currency, Receipt: created.Receipt}, nil
}

func (c *RazorpayClient) FetchPayments(ctx context.Context, orderID string) ([]Payment, error) {
	var resp struct {
		Items []razorpayPayment `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderID+"/payments", nil, &resp); err != nil {
		return nil, err
	}

	payments := make([]Payment, 0, len(resp.Items))
	for _, item := range resp.Items {
		payments = append(payments, Payment{ID: item.ID, OrderID: item.OrderID, Status: item.Status})
	}
	return payments, nil
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, body *bytes.Reader, out any) error {
	var reqBody *bytes.Reader
	if body == nil {
		reqBody = bytes.NewReader(nil)
	} else {
		reqBody = body
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return derrors.Wrap(err, derrors.CodeUnavailable, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return derrors.Newf(derrors.CodeUnavailable, "payment gateway returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return derrors.Newf(derrors.CodeBadRequest, "payment gateway rejected request with %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
