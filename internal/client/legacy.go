package client

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	domainErrors "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/errors"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/gate"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/infrastructure/observability"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/redact"
)

// LegacyConfig holds the credentials and endpoint for the legacy
// query/XML protocol.
type LegacyConfig struct {
	Endpoint    string
	SellerID    string
	AccessKeyID string
	SecretKey   string
	Timeout     time.Duration
}

// legacyClient speaks the legacy protocol: signed query-encoded
// requests, XML responses.
type legacyClient struct {
	cfg  LegacyConfig
	core *wireCore
}

// NewLegacy creates the legacy-protocol client. metrics may be nil.
func NewLegacy(cfg LegacyConfig, audit *redact.Logger, metrics *observability.Metrics) Client {
	return &legacyClient{
		cfg:  cfg,
		core: newWireCore("amazon-pay-legacy", string(gate.Legacy), cfg.Endpoint, cfg.Timeout, audit, metrics),
	}
}

func (c *legacyClient) Variant() gate.Variant { return gate.Legacy }

// --- wire types ---

type legacyStatus struct {
	State               string `xml:"State"`
	LastUpdateTimestamp string `xml:"LastUpdateTimestamp"`
}

type legacyError struct {
	Code    string `xml:"Error>Code"`
	Message string `xml:"Error>Message"`
}

type legacyOrderReference struct {
	AmazonOrderReferenceID string       `xml:"AmazonOrderReferenceId"`
	OrderReferenceStatus   legacyStatus `xml:"OrderReferenceStatus"`
}

type legacyAuthorizationDetails struct {
	AmazonAuthorizationID string       `xml:"AmazonAuthorizationId"`
	AuthorizationAmount   legacyPrice  `xml:"AuthorizationAmount"`
	AuthorizationStatus   legacyStatus `xml:"AuthorizationStatus"`
}

type legacyCaptureDetails struct {
	AmazonCaptureID string       `xml:"AmazonCaptureId"`
	CaptureStatus   legacyStatus `xml:"CaptureStatus"`
}

type legacyRefundDetails struct {
	AmazonRefundID string       `xml:"AmazonRefundId"`
	RefundStatus   legacyStatus `xml:"RefundStatus"`
}

type legacyPrice struct {
	Amount       string `xml:"Amount"`
	CurrencyCode string `xml:"CurrencyCode"`
}

// --- operations ---

func (c *legacyClient) CreateReference(ctx context.Context, req CreateReferenceRequest) (*ReferenceResult, error) {
	params := map[string]string{
		"Action":                  "SetOrderReferenceDetails",
		"SellerOrderId":           req.OrderID,
		"OrderTotal.Amount":       formatCents(req.Amount.ValueCents),
		"OrderTotal.CurrencyCode": req.Amount.Currency,
		"StoreName":               sanitizeSellerString(req.StoreName),
		"SellerNote":              sanitizeSellerString(req.SellerNote),
	}
	var out struct {
		Details legacyOrderReference `xml:"SetOrderReferenceDetailsResult>OrderReferenceDetails"`
	}
	if err := c.call(ctx, "SetOrderReferenceDetails", params, &out); err != nil {
		return nil, err
	}
	return &ReferenceResult{
		ReferenceID: out.Details.AmazonOrderReferenceID,
		State:       legacyState(out.Details.OrderReferenceStatus.State, reference.StatePending),
		ObservedAt:  legacyTime(out.Details.OrderReferenceStatus.LastUpdateTimestamp),
	}, nil
}

func (c *legacyClient) Authorize(ctx context.Context, referenceID string, amount reference.Amount, token string) (*AuthorizationResult, error) {
	// The attempt-scoped reference id doubles as the provider-side
	// idempotency key: a retried call with the same value returns the
	// original authorization instead of creating a second hold.
	params := map[string]string{
		"Action":                           "Authorize",
		"AmazonOrderReferenceId":           referenceID,
		"AuthorizationReferenceId":         legacyToken(token),
		"AuthorizationAmount.Amount":       formatCents(amount.ValueCents),
		"AuthorizationAmount.CurrencyCode": amount.Currency,
		"TransactionTimeout":               "0",
	}
	var out struct {
		Details legacyAuthorizationDetails `xml:"AuthorizeResult>AuthorizationDetails"`
	}
	if err := c.call(ctx, "Authorize", params, &out); err != nil {
		return nil, err
	}
	return &AuthorizationResult{
		AuthorizationID: out.Details.AmazonAuthorizationID,
		State:           legacyState(out.Details.AuthorizationStatus.State, reference.StatePending),
		Amount:          amount,
		ObservedAt:      legacyTime(out.Details.AuthorizationStatus.LastUpdateTimestamp),
	}, nil
}

func (c *legacyClient) Capture(ctx context.Context, authorizationID string, amount reference.Amount, token string) (*CaptureResult, error) {
	params := map[string]string{
		"Action":                     "Capture",
		"AmazonAuthorizationId":      authorizationID,
		"CaptureReferenceId":         legacyToken(token),
		"CaptureAmount.Amount":       formatCents(amount.ValueCents),
		"CaptureAmount.CurrencyCode": amount.Currency,
	}
	var out struct {
		Details legacyCaptureDetails `xml:"CaptureResult>CaptureDetails"`
	}
	if err := c.call(ctx, "Capture", params, &out); err != nil {
		return nil, err
	}
	return &CaptureResult{
		CaptureID:  out.Details.AmazonCaptureID,
		State:      legacyState(out.Details.CaptureStatus.State, reference.StatePending),
		ObservedAt: legacyTime(out.Details.CaptureStatus.LastUpdateTimestamp),
	}, nil
}

func (c *legacyClient) Refund(ctx context.Context, captureID string, amount reference.Amount, token string) (*RefundResult, error) {
	params := map[string]string{
		"Action":                    "Refund",
		"AmazonCaptureId":           captureID,
		"RefundReferenceId":         legacyToken(token),
		"RefundAmount.Amount":       formatCents(amount.ValueCents),
		"RefundAmount.CurrencyCode": amount.Currency,
	}
	var out struct {
		Details legacyRefundDetails `xml:"RefundResult>RefundDetails"`
	}
	if err := c.call(ctx, "Refund", params, &out); err != nil {
		return nil, err
	}
	return &RefundResult{
		RefundID:   out.Details.AmazonRefundID,
		State:      legacyState(out.Details.RefundStatus.State, reference.StatePending),
		ObservedAt: legacyTime(out.Details.RefundStatus.LastUpdateTimestamp),
	}, nil
}

func (c *legacyClient) GetReferenceDetails(ctx context.Context, referenceID string) (*ReferenceSnapshot, error) {
	params := map[string]string{
		"Action":                 "GetOrderReferenceDetails",
		"AmazonOrderReferenceId": referenceID,
	}
	var out struct {
		Details struct {
			legacyOrderReference
			Authorization legacyAuthorizationDetails `xml:"AuthorizationDetails"`
			Capture       legacyCaptureDetails       `xml:"CaptureDetails"`
		} `xml:"GetOrderReferenceDetailsResult>OrderReferenceDetails"`
	}
	if err := c.call(ctx, "GetOrderReferenceDetails", params, &out); err != nil {
		return nil, err
	}
	snap := &ReferenceSnapshot{
		ReferenceID:        out.Details.AmazonOrderReferenceID,
		ReferenceState:     legacyState(out.Details.OrderReferenceStatus.State, ""),
		AuthorizationID:    out.Details.Authorization.AmazonAuthorizationID,
		AuthorizationState: legacyState(out.Details.Authorization.AuthorizationStatus.State, ""),
		CaptureID:          out.Details.Capture.AmazonCaptureID,
		CaptureState:       legacyState(out.Details.Capture.CaptureStatus.State, ""),
		ObservedAt:         legacyTime(out.Details.OrderReferenceStatus.LastUpdateTimestamp),
	}
	return snap, nil
}

// call signs and posts one query-encoded action, then decodes the XML
// response into out or classifies the error body.
func (c *legacyClient) call(ctx context.Context, action string, params map[string]string, out any) error {
	params["AWSAccessKeyId"] = c.cfg.AccessKeyID
	params["SellerId"] = c.cfg.SellerID
	params["SignatureMethod"] = "HmacSHA256"
	params["SignatureVersion"] = "2"
	params["Timestamp"] = time.Now().UTC().Format(time.RFC3339)
	params["Signature"] = c.sign(params)

	body := encodeForm(params)
	resp, err := c.core.do(ctx, action, http.MethodPost, "/", "application/x-www-form-urlencoded", []byte(body), nil)
	if err != nil {
		return err
	}
	if resp.status < 200 || resp.status >= 300 {
		var e legacyError
		_ = xml.Unmarshal(resp.body, &e)
		return classify(resp.status, e.Code)
	}
	if err := xml.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domainErrors.ErrProviderTransient, action, err)
	}
	return nil
}

// sign computes the request signature over the sorted parameter string.
func (c *legacyClient) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params[k]))
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func encodeForm(params map[string]string) string {
	v := url.Values{}
	for k, val := range params {
		v.Set(k, val)
	}
	return v.Encode()
}

// legacyToken shortens the idempotency token to the 32-character limit
// the legacy reference-id fields impose.
func legacyToken(token string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return -1
		}
	}, token)
	if len(cleaned) > 32 {
		cleaned = cleaned[len(cleaned)-32:]
	}
	return cleaned
}

func legacyState(raw string, fallback reference.State) reference.State {
	s := reference.State(raw)
	if s.Valid() {
		return s
	}
	return fallback
}

func legacyTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

func formatCents(cents int64) string {
	whole := cents / 100
	frac := cents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d", whole, frac)
}

// sanitizeSellerString strips non-printable characters and surrounding
// whitespace from merchant-supplied text before it is sent provider-side.
func sanitizeSellerString(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(cleaned)
}
