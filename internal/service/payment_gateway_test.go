package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paypalStub(t *testing.T, captureStatus string, captureCode int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-abc",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))

		var body struct {
			Intent        string `json:"intent"`
			PurchaseUnits []struct {
				Amount struct {
					CurrencyCode string `json:"currency_code"`
					Value        string `json:"value"`
				} `json:"amount"`
			} `json:"purchase_units"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body.Intent)
		require.Len(t, body.PurchaseUnits, 1)
		assert.Equal(t, "MXN", body.PurchaseUnits[0].Amount.CurrencyCode)
		assert.Equal(t, "25.50", body.PurchaseUnits[0].Amount.Value)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "GW-ORDER-1",
			"status": "CREATED",
		})
	})
	mux.HandleFunc("/v2/checkout/orders/GW-ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(captureCode)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "GW-ORDER-1",
			"status": captureStatus,
			"payer": map[string]string{
				"email_address": "payer@example.com",
			},
		})
	})
	return httptest.NewServer(mux)
}

func TestGatewayCreateAndCapture(t *testing.T) {
	srv := paypalStub(t, "COMPLETED", http.StatusCreated)
	defer srv.Close()

	gw := NewPayPalGateway(srv.URL, "client-id", "client-secret", 5*time.Second)
	ctx := context.Background()

	id, err := gw.CreateGatewayOrder(ctx, 2550, "MXN")
	require.NoError(t, err)
	assert.Equal(t, "GW-ORDER-1", id)

	receipt, err := gw.CaptureGatewayOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "GW-ORDER-1", receipt.ExternalID)
	assert.Equal(t, "COMPLETED", receipt.Status)
	assert.Equal(t, "payer@example.com", receipt.PayerEmail)
	assert.False(t, receipt.CapturedAt.IsZero())
}

func TestGatewayCaptureRejected(t *testing.T) {
	srv := paypalStub(t, "DECLINED", http.StatusOK)
	defer srv.Close()

	gw := NewPayPalGateway(srv.URL, "client-id", "client-secret", 5*time.Second)
	ctx := context.Background()

	id, err := gw.CreateGatewayOrder(ctx, 2550, "MXN")
	require.NoError(t, err)

	_, err = gw.CaptureGatewayOrder(ctx, id)
	assert.ErrorIs(t, err, models.ErrPaymentCapture)
}

func TestGatewayCreateFailsWhenGatewayDown(t *testing.T) {
	srv := paypalStub(t, "COMPLETED", http.StatusOK)
	srv.Close()

	gw := NewPayPalGateway(srv.URL, "client-id", "client-secret", time.Second)

	_, err := gw.CreateGatewayOrder(context.Background(), 2550, "MXN")
	assert.ErrorIs(t, err, models.ErrPaymentInit)
}

func TestGatewayCaptureTimeoutIsUnknownOutcome(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-abc",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v2/checkout/orders/slow/capture", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gw := NewPayPalGateway(srv.URL, "client-id", "client-secret", 50*time.Millisecond)

	_, err := gw.CaptureGatewayOrder(context.Background(), "slow")
	assert.ErrorIs(t, err, models.ErrPaymentOutcomeUnknown)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "25.50", formatAmount(2550))
	assert.Equal(t, "0.05", formatAmount(5))
	assert.Equal(t, "1000.00", formatAmount(100000))
}
