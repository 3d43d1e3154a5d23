package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCreateInvoice_SendsIdempotencyKey(t *testing.T) {
	var gotIdempotencyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdempotencyKey = r.Header.Get("X-Idempotency-Key")
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		json.NewEncoder(w).Encode(CreateInvoiceResponse{
			InvoiceID:  "inv_1",
			PaymentURL: "https://pay.example/inv_1",
			Status:     "PENDING",
			ExpiresAt:  time.Now().Add(24 * time.Hour),
		})
	}))
	defer server.Close()

	svc := NewGatewayService("key", "secret", "whsec", server.URL, 5*time.Second)
	resp, err := svc.CreateInvoice(context.Background(), &CreateInvoiceRequest{
		OrderRef: "ord-1",
		Amount:   19900,
		Currency: "UAH",
	})
	assert.NoError(t, err)
	assert.Equal(t, "inv_1", resp.InvoiceID)
	assert.Equal(t, "ord-1", gotIdempotencyKey)
}

func TestCreateInvoice_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := NewGatewayService("key", "secret", "whsec", server.URL, 5*time.Second)
	_, err := svc.CreateInvoice(context.Background(), &CreateInvoiceRequest{OrderRef: "ord-1", Amount: 100, Currency: "UAH"})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCreateInvoice_ClientRejectionIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	svc := NewGatewayService("key", "secret", "whsec", server.URL, 5*time.Second)
	_, err := svc.CreateInvoice(context.Background(), &CreateInvoiceRequest{OrderRef: "ord-1", Amount: 100, Currency: "UAH"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrGatewayUnavailable)
}

func TestGetInvoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoices/inv_1", r.URL.Path)
		json.NewEncoder(w).Encode(InvoiceStatusResponse{InvoiceID: "inv_1", Status: "PAID"})
	}))
	defer server.Close()

	svc := NewGatewayService("key", "secret", "whsec", server.URL, 5*time.Second)
	resp, err := svc.GetInvoice(context.Background(), "inv_1")
	assert.NoError(t, err)
	assert.Equal(t, "PAID", resp.Status)
}

func TestNewGatewayService_RequestTimeout(t *testing.T) {
	svc := NewGatewayService("key", "secret", "whsec", "http://gateway.local", 3*time.Second).(*gatewayService)
	assert.Equal(t, 3*time.Second, svc.http.Timeout)

	// non-positive values fall back to the default
	svc = NewGatewayService("key", "secret", "whsec", "http://gateway.local", 0).(*gatewayService)
	assert.Equal(t, 15*time.Second, svc.http.Timeout)
}

func TestVerifySignature(t *testing.T) {
	svc := NewGatewayService("key", "secret", "whsec", "http://gateway.local", 5*time.Second)
	body := []byte(`{"invoiceId":"inv_1","status":"PAID"}`)

	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.NoError(t, svc.VerifySignature(body, valid))
	assert.ErrorIs(t, svc.VerifySignature(body, "deadbeef"), ErrInvalidSignature)
	assert.ErrorIs(t, svc.VerifySignature([]byte("tampered"), valid), ErrInvalidSignature)
}
