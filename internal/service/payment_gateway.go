package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"storefront-core/internal/models"
	"storefront-core/internal/util"

	"go.uber.org/zap"
)

// PayPalGateway implements the two-phase card/wallet payment protocol against
// the PayPal Orders v2 REST API: create a gateway order, then capture it.
// Capture is the one externally latent call in the pipeline; a timeout there
// surfaces as ErrPaymentOutcomeUnknown because the capture may have succeeded
// on PayPal's side.
type PayPalGateway struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
	logger     *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewPayPalGateway creates a gateway client. timeout bounds every call,
// including the capture phase.
func NewPayPalGateway(baseURL, clientID, secret string, timeout time.Duration) *PayPalGateway {
	return &PayPalGateway{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		secret:     secret,
		logger:     util.Named("paypal"),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached OAuth2 client-credentials token, refreshing it
// shortly before expiry.
func (g *PayPalGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && time.Now().Before(g.tokenExpiry.Add(-time.Minute)) {
		return g.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}

	g.token = tr.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return g.token, nil
}

type createOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type purchaseUnit struct {
	Amount amount `json:"amount"`
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type gatewayOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
}

// CreateGatewayOrder runs phase 1 of the protocol and returns the opaque
// gateway order id. Any failure is ErrPaymentInit; the client must not
// proceed to capture.
func (g *PayPalGateway) CreateGatewayOrder(ctx context.Context, amountCents int64, currency string) (string, error) {
	ctx, span := util.StartSpan(ctx, "PayPalGateway.CreateGatewayOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())
	}()

	token, err := g.accessToken(ctx)
	if err != nil {
		util.GatewayRequestsTotal.WithLabelValues("create", "error").Inc()
		return "", fmt.Errorf("%w: %v", models.ErrPaymentInit, err)
	}

	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{
			{Amount: amount{CurrencyCode: currency, Value: formatAmount(amountCents)}},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrPaymentInit, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v2/checkout/orders", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrPaymentInit, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		util.GatewayRequestsTotal.WithLabelValues("create", "error").Inc()
		return "", fmt.Errorf("%w: %v", models.ErrPaymentInit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		util.GatewayRequestsTotal.WithLabelValues("create", "rejected").Inc()
		return "", fmt.Errorf("%w: gateway returned %d", models.ErrPaymentInit, resp.StatusCode)
	}

	var created gatewayOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrPaymentInit, err)
	}

	util.GatewayRequestsTotal.WithLabelValues("create", "ok").Inc()
	g.logger.Info("Gateway order created", zap.String("gateway_order_id", created.ID))
	return created.ID, nil
}

// CaptureGatewayOrder runs phase 2 and returns the receipt. A definitive
// gateway rejection is ErrPaymentCapture; a timeout is
// ErrPaymentOutcomeUnknown and must not be treated as a failure.
func (g *PayPalGateway) CaptureGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.PaymentReceipt, error) {
	ctx, span := util.StartSpan(ctx, "PayPalGateway.CaptureGatewayOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("capture").Observe(time.Since(start).Seconds())
	}()

	token, err := g.accessToken(ctx)
	if err != nil {
		util.GatewayRequestsTotal.WithLabelValues("capture", "error").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentCapture, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v2/checkout/orders/"+gatewayOrderID+"/capture", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentCapture, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			util.GatewayRequestsTotal.WithLabelValues("capture", "unknown").Inc()
			return nil, fmt.Errorf("%w: %v", models.ErrPaymentOutcomeUnknown, err)
		}
		util.GatewayRequestsTotal.WithLabelValues("capture", "error").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentCapture, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		util.GatewayRequestsTotal.WithLabelValues("capture", "rejected").Inc()
		return nil, fmt.Errorf("%w: gateway returned %d", models.ErrPaymentCapture, resp.StatusCode)
	}

	var captured gatewayOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&captured); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentCapture, err)
	}
	if captured.Status != "COMPLETED" {
		util.GatewayRequestsTotal.WithLabelValues("capture", "rejected").Inc()
		return nil, fmt.Errorf("%w: capture status %s", models.ErrPaymentCapture, captured.Status)
	}

	util.GatewayRequestsTotal.WithLabelValues("capture", "ok").Inc()
	g.logger.Info("Gateway order captured", zap.String("gateway_order_id", captured.ID))

	return &models.PaymentReceipt{
		ExternalID: captured.ID,
		Status:     captured.Status,
		CapturedAt: time.Now(),
		PayerEmail: captured.Payer.EmailAddress,
	}, nil
}

// formatAmount renders integer cents as the decimal string the gateway
// expects, e.g. 2550 -> "25.50".
func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var _ PaymentGateway = (*PayPalGateway)(nil)
