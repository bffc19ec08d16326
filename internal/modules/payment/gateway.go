package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"servicehub/internal/config"
)

var (
	// ErrGatewayUnavailable marks the explicit "no credentials" state. The
	// adapter is constructed anyway so the rest of the service keeps working.
	ErrGatewayUnavailable = errors.New("payment gateway is not configured")

	// ErrGatewayUncertain is returned when a money-moving call may or may not
	// have reached the gateway. Callers must never blindly retry; the webhook
	// stream is the reconciliation path.
	ErrGatewayUncertain = errors.New("gateway outcome unknown")
)

// GatewayError carries the upstream failure from a completed gateway call.
type GatewayError struct {
	Op      string
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed: status=%d message=%s", e.Op, e.Status, e.Message)
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // whole currency units
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type GatewayPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"` // whole currency units
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"` // whole currency units
	Status    string `json:"status"`
}

// Gateway talks to the Razorpay REST API. All conversions between whole
// currency units and the gateway's minor units (paise) happen here and
// nowhere else.
type Gateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
	loggerf       func(format string, args ...interface{})
}

func NewGateway(cfg config.Razorpay, loggerf func(format string, args ...interface{})) *Gateway {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Gateway{
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       cfg.BaseURL,
		client:        &http.Client{Timeout: cfg.Timeout},
		loggerf:       loggerf,
	}
}

func (g *Gateway) configured() bool {
	return g.keyID != "" && g.keySecret != ""
}

// wire types: the gateway speaks paise.
type orderWire struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type paymentWire struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
}

type refundWire struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

type gatewayErrorWire struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (g *Gateway) do(ctx context.Context, op, method, path string, payload, out interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.loggerf("level=error msg=gateway request failed op=%s err=%v", op, err)
		return fmt.Errorf("%w: %s: %v", ErrGatewayUncertain, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ew gatewayErrorWire
		_ = json.NewDecoder(resp.Body).Decode(&ew)
		g.loggerf("level=error msg=gateway rejected request op=%s status=%d code=%s", op, resp.StatusCode, ew.Error.Code)
		return &GatewayError{Op: op, Status: resp.StatusCode, Message: ew.Error.Description}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateOrder registers a payment order. The receipt doubles as the
// idempotency handle on the gateway side.
func (g *Gateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	if !g.configured() {
		return nil, ErrGatewayUnavailable
	}

	payload := map[string]interface{}{
		"amount":   amount * 100,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	}

	var w orderWire
	if err := g.do(ctx, "create_order", http.MethodPost, "/v1/orders", payload, &w); err != nil {
		return nil, err
	}
	g.loggerf("level=info msg=payment order created order_id=%s amount=%d", w.ID, w.Amount/100)
	return &Order{ID: w.ID, Amount: w.Amount / 100, Currency: w.Currency, Status: w.Status}, nil
}

// FetchPayment is read-only; upstream failures surface as GatewayError
// directly since nothing has moved.
func (g *Gateway) FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	if !g.configured() {
		return nil, ErrGatewayUnavailable
	}

	var w paymentWire
	if err := g.do(ctx, "fetch_payment", http.MethodGet, "/v1/payments/"+paymentID, nil, &w); err != nil {
		if errors.Is(err, ErrGatewayUncertain) {
			return nil, &GatewayError{Op: "fetch_payment", Message: err.Error()}
		}
		return nil, err
	}
	return &GatewayPayment{
		ID:       w.ID,
		OrderID:  w.OrderID,
		Amount:   w.Amount / 100,
		Currency: w.Currency,
		Status:   w.Status,
		Method:   w.Method,
	}, nil
}

// Refund issues a partial refund when amount > 0, a full refund otherwise.
// A fresh receipt is generated per call so a manual retry after an uncertain
// outcome is distinguishable on the gateway side.
func (g *Gateway) Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error) {
	if !g.configured() {
		return nil, ErrGatewayUnavailable
	}

	payload := map[string]interface{}{
		"receipt": uuid.NewString(),
		"notes":   notes,
	}
	if amount > 0 {
		payload["amount"] = amount * 100
	}

	var w refundWire
	if err := g.do(ctx, "refund", http.MethodPost, "/v1/payments/"+paymentID+"/refund", payload, &w); err != nil {
		return nil, err
	}
	g.loggerf("level=info msg=refund issued refund_id=%s payment_id=%s amount=%d", w.ID, paymentID, w.Amount/100)
	return &Refund{ID: w.ID, PaymentID: w.PaymentID, Amount: w.Amount / 100, Status: w.Status}, nil
}

// VerifySignature checks the checkout callback signature: HMAC-SHA256 of
// "orderID|paymentID" under the key secret, hex-encoded. No network call.
func (g *Gateway) VerifySignature(orderID, paymentID, signature string) bool {
	if !g.configured() {
		return false
	}
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ValidateWebhookSignature authenticates a webhook delivery. The HMAC is
// computed over the raw request bytes; re-serializing the parsed JSON would
// change the representation and break verification.
func (g *Gateway) ValidateWebhookSignature(rawBody []byte, signature string) bool {
	if g.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
