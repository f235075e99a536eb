package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	domainErrors "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/errors"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/gate"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/infrastructure/observability"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/redact"
)

// CurrentConfig holds the credentials and endpoint for the current JSON
// protocol.
type CurrentConfig struct {
	Endpoint    string
	StoreID     string
	PublicKeyID string
	Timeout     time.Duration
}

// currentClient speaks the current protocol: JSON requests and
// responses, idempotency carried in a request header.
type currentClient struct {
	cfg  CurrentConfig
	core *wireCore
}

// NewCurrent creates the current-protocol client. metrics may be nil.
func NewCurrent(cfg CurrentConfig, audit *redact.Logger, metrics *observability.Metrics) Client {
	return &currentClient{
		cfg:  cfg,
		core: newWireCore("amazon-pay-current", string(gate.Current), cfg.Endpoint, cfg.Timeout, audit, metrics),
	}
}

func (c *currentClient) Variant() gate.Variant { return gate.Current }

// --- wire types ---

type currentStatus struct {
	State           string    `json:"state"`
	ReasonCode      string    `json:"reasonCode"`
	LastUpdatedTime time.Time `json:"lastUpdatedTime"`
}

type currentPrice struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type currentErrorBody struct {
	ReasonCode string `json:"reasonCode"`
	Message    string `json:"message"`
}

type currentSession struct {
	CheckoutSessionID string        `json:"checkoutSessionId"`
	StatusDetails     currentStatus `json:"statusDetails"`
}

type currentCharge struct {
	ChargeID           string        `json:"chargeId"`
	ChargePermissionID string        `json:"chargePermissionId"`
	StatusDetails      currentStatus `json:"statusDetails"`
}

type currentRefund struct {
	RefundID      string        `json:"refundId"`
	StatusDetails currentStatus `json:"statusDetails"`
}

// --- operations ---

func (c *currentClient) CreateReference(ctx context.Context, req CreateReferenceRequest) (*ReferenceResult, error) {
	payload := map[string]any{
		"storeId": c.cfg.StoreID,
		"merchantMetadata": map[string]any{
			"merchantReferenceId": req.OrderID,
			"merchantStoreName":   sanitizeSellerString(req.StoreName),
			"noteToBuyer":         sanitizeSellerString(req.SellerNote),
		},
		"paymentDetails": map[string]any{
			"chargeAmount": currentPrice{Amount: formatCents(req.Amount.ValueCents), CurrencyCode: req.Amount.Currency},
		},
	}
	var out currentSession
	if err := c.call(ctx, "CreateCheckoutSession", http.MethodPost, "/v2/checkoutSessions", payload, "", &out); err != nil {
		return nil, err
	}
	return &ReferenceResult{
		ReferenceID: out.CheckoutSessionID,
		State:       currentState(out.StatusDetails.State, reference.StatePending),
		ObservedAt:  currentTime(out.StatusDetails.LastUpdatedTime),
	}, nil
}

func (c *currentClient) Authorize(ctx context.Context, referenceID string, amount reference.Amount, token string) (*AuthorizationResult, error) {
	payload := map[string]any{
		"chargePermissionId": referenceID,
		"chargeAmount":       currentPrice{Amount: formatCents(amount.ValueCents), CurrencyCode: amount.Currency},
		"captureNow":         false,
	}
	var out currentCharge
	if err := c.call(ctx, "CreateCharge", http.MethodPost, "/v2/charges", payload, token, &out); err != nil {
		return nil, err
	}
	return &AuthorizationResult{
		AuthorizationID: out.ChargeID,
		State:           currentState(out.StatusDetails.State, reference.StatePending),
		Amount:          amount,
		ObservedAt:      currentTime(out.StatusDetails.LastUpdatedTime),
	}, nil
}

func (c *currentClient) Capture(ctx context.Context, authorizationID string, amount reference.Amount, token string) (*CaptureResult, error) {
	payload := map[string]any{
		"captureAmount": currentPrice{Amount: formatCents(amount.ValueCents), CurrencyCode: amount.Currency},
	}
	var out currentCharge
	path := fmt.Sprintf("/v2/charges/%s/capture", authorizationID)
	if err := c.call(ctx, "CaptureCharge", http.MethodPost, path, payload, token, &out); err != nil {
		return nil, err
	}
	return &CaptureResult{
		CaptureID:  out.ChargeID,
		State:      currentState(out.StatusDetails.State, reference.StatePending),
		ObservedAt: currentTime(out.StatusDetails.LastUpdatedTime),
	}, nil
}

func (c *currentClient) Refund(ctx context.Context, captureID string, amount reference.Amount, token string) (*RefundResult, error) {
	payload := map[string]any{
		"chargeId":     captureID,
		"refundAmount": currentPrice{Amount: formatCents(amount.ValueCents), CurrencyCode: amount.Currency},
	}
	var out currentRefund
	if err := c.call(ctx, "CreateRefund", http.MethodPost, "/v2/refunds", payload, token, &out); err != nil {
		return nil, err
	}
	return &RefundResult{
		RefundID:   out.RefundID,
		State:      currentState(out.StatusDetails.State, reference.StatePending),
		ObservedAt: currentTime(out.StatusDetails.LastUpdatedTime),
	}, nil
}

func (c *currentClient) GetReferenceDetails(ctx context.Context, referenceID string) (*ReferenceSnapshot, error) {
	var out struct {
		currentSession
		Charges []currentCharge `json:"charges"`
	}
	path := fmt.Sprintf("/v2/checkoutSessions/%s", referenceID)
	if err := c.call(ctx, "GetCheckoutSession", http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	snap := &ReferenceSnapshot{
		ReferenceID:    out.CheckoutSessionID,
		ReferenceState: currentState(out.StatusDetails.State, ""),
		ObservedAt:     currentTime(out.StatusDetails.LastUpdatedTime),
	}
	if len(out.Charges) > 0 {
		ch := out.Charges[len(out.Charges)-1]
		snap.AuthorizationID = ch.ChargeID
		snap.AuthorizationState = currentState(ch.StatusDetails.State, "")
		if snap.AuthorizationState == reference.StateCompleted {
			snap.CaptureID = ch.ChargeID
			snap.CaptureState = reference.StateCompleted
		}
	}
	return snap, nil
}

// call posts one JSON operation. token, when non-empty, is sent as the
// idempotency header the current protocol defines for mutating calls.
func (c *currentClient) call(ctx context.Context, opContext, method, path string, payload any, token string, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: encode %s request: %v", domainErrors.ErrInvalidRequest, opContext, err)
		}
	}

	headers := map[string]string{
		"x-amz-pay-public-key-id": c.cfg.PublicKeyID,
	}
	if token != "" {
		headers["x-amz-pay-idempotency-key"] = token
	}

	resp, err := c.core.do(ctx, opContext, method, path, "application/json", body, headers)
	if err != nil {
		return err
	}
	if resp.status < 200 || resp.status >= 300 {
		var e currentErrorBody
		_ = json.Unmarshal(resp.body, &e)
		return classify(resp.status, e.ReasonCode)
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domainErrors.ErrProviderTransient, opContext, err)
	}
	return nil
}

// currentState maps the current protocol's state vocabulary onto the
// canonical one.
func currentState(raw string, fallback reference.State) reference.State {
	switch raw {
	case "AuthorizationInitiated", "CaptureInitiated", "RefundInitiated":
		return reference.StatePending
	case "Authorized":
		return reference.StateOpen
	case "Captured", "Refunded":
		return reference.StateCompleted
	case "Canceled":
		return reference.StateClosed
	}
	s := reference.State(raw)
	if s.Valid() {
		return s
	}
	return fallback
}

func currentTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
