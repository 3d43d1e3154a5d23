package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrGatewayUnavailable marks network failures and gateway 5xx responses.
// Callers may retry the same operation with the same order reference.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// ErrInvalidSignature is returned when a webhook body does not match its
// signature header
var ErrInvalidSignature = errors.New("invalid webhook signature")

// GatewayService is the thin contract against the external invoice gateway:
// register an invoice, ask for its status, verify a callback signature
type GatewayService interface {
	CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*CreateInvoiceResponse, error)
	GetInvoice(ctx context.Context, invoiceID string) (*InvoiceStatusResponse, error)
	VerifySignature(rawBody []byte, signature string) error
}

type CreateInvoiceRequest struct {
	OrderRef      string `json:"order_ref"`
	Amount        int64  `json:"amount"` // minor units
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	CustomerEmail string `json:"customer_email,omitempty"`
	TTLSeconds    int    `json:"ttl_seconds,omitempty"`
}

type CreateInvoiceResponse struct {
	InvoiceID  string    `json:"invoice_id"`
	PaymentURL string    `json:"payment_url"`
	Status     string    `json:"status"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type InvoiceStatusResponse struct {
	InvoiceID string `json:"invoice_id"`
	Status    string `json:"status"`
}

type gatewayService struct {
	apiKey        string
	apiSecret     string
	webhookSecret string
	baseURL       string
	http          *http.Client
}

// NewGatewayService creates an HTTP gateway client
func NewGatewayService(apiKey, apiSecret, webhookSecret, baseURL string, requestTimeout time.Duration) GatewayService {
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	return &gatewayService{
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		http:          &http.Client{Timeout: requestTimeout},
	}
}

// CreateInvoice registers an invoice with the gateway. The order reference is
// sent as the idempotency key so a retried create cannot double-charge.
func (s *gatewayService) CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(s.apiKey, s.apiSecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", req.OrderRef)

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway returned %s", ErrGatewayUnavailable, resp.Status)
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway rejected invoice: %s: %s", resp.Status, raw)
	}

	var out CreateInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	if out.InvoiceID == "" {
		return nil, errors.New("gateway returned empty invoice id")
	}
	return &out, nil
}

// GetInvoice fetches the current invoice status from the gateway
func (s *gatewayService) GetInvoice(ctx context.Context, invoiceID string) (*InvoiceStatusResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/invoices/"+invoiceID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(s.apiKey, s.apiSecret)

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway returned %s", ErrGatewayUnavailable, resp.Status)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway status lookup failed: %s", resp.Status)
	}

	var out InvoiceStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	return &out, nil
}

// VerifySignature checks the HMAC-SHA256 of the raw callback body against the
// signature header using a constant time comparison
func (s *gatewayService) VerifySignature(rawBody []byte, signature string) error {
	hash := hmac.New(sha256.New, []byte(s.webhookSecret))
	hash.Write(rawBody)
	expected := hex.EncodeToString(hash.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}
