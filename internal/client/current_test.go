package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/client"
	domainErrors "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/errors"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/gate"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/redact"
)

func newCurrent(t *testing.T, endpoint string) client.Client {
	t.Helper()
	audit := redact.NewLogger(zerolog.Nop(), false, "TEST")
	return client.NewCurrent(client.CurrentConfig{
		Endpoint:    endpoint,
		StoreID:     "amzn1.application-oa2-client.test",
		PublicKeyID: "PUBKEY123",
		Timeout:     2 * time.Second,
	}, audit, nil)
}

func TestCurrentVariant(t *testing.T) {
	c := newCurrent(t, "https://example.invalid")
	assert.Equal(t, gate.Current, c.Variant())
}

func TestCurrentCreateReference(t *testing.T) {
	var gotPath string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Write([]byte(`{
			"checkoutSessionId": "cs-abc-123",
			"statusDetails": {"state": "Open", "lastUpdatedTime": "2024-06-01T12:00:00Z"}
		}`))
	}))
	defer srv.Close()

	c := newCurrent(t, srv.URL)
	res, err := c.CreateReference(context.Background(), client.CreateReferenceRequest{
		OrderID:    "order-42",
		Amount:     reference.Amount{ValueCents: 1999, Currency: "EUR"},
		StoreName:  "ACME Store",
		SellerNote: "gift wrap",
	})
	require.NoError(t, err)

	assert.Equal(t, "cs-abc-123", res.ReferenceID)
	assert.Equal(t, reference.StateOpen, res.State)
	assert.Equal(t, "/v2/checkoutSessions", gotPath)
	assert.Equal(t, "amzn1.application-oa2-client.test", payload["storeId"])

	meta, ok := payload["merchantMetadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "order-42", meta["merchantReferenceId"])
	assert.Equal(t, "gift wrap", meta["noteToBuyer"])
}

func TestCurrentAuthorize_IdempotencyHeader(t *testing.T) {
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		w.Write([]byte(`{
			"chargeId": "chg-1",
			"chargePermissionId": "cs-abc-123",
			"statusDetails": {"state": "Authorized", "lastUpdatedTime": "2024-06-01T12:00:00Z"}
		}`))
	}))
	defer srv.Close()

	c := newCurrent(t, srv.URL)
	token := client.Token("order-42", "authorize", "0f8fad5b-d9cb-469f-a165-70867728950e")
	res, err := c.Authorize(context.Background(), "cs-abc-123", reference.Amount{ValueCents: 1999, Currency: "EUR"}, token)
	require.NoError(t, err)

	assert.Equal(t, "chg-1", res.AuthorizationID)
	// "Authorized" maps onto the canonical open state.
	assert.Equal(t, reference.StateOpen, res.State)

	assert.Equal(t, token, headers.Get("x-amz-pay-idempotency-key"))
	assert.Equal(t, "PUBKEY123", headers.Get("x-amz-pay-public-key-id"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
}

func TestCurrentCapture_StateMapping(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{
			"chargeId": "chg-1",
			"statusDetails": {"state": "Captured", "lastUpdatedTime": "2024-06-01T12:01:00Z"}
		}`))
	}))
	defer srv.Close()

	c := newCurrent(t, srv.URL)
	res, err := c.Capture(context.Background(), "chg-1", reference.Amount{ValueCents: 1999, Currency: "EUR"}, "tok")
	require.NoError(t, err)

	assert.Equal(t, "/v2/charges/chg-1/capture", gotPath)
	assert.Equal(t, "chg-1", res.CaptureID)
	assert.Equal(t, reference.StateCompleted, res.State)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 1, 0, 0, time.UTC), res.ObservedAt)
}

func TestCurrentRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"refundId": "rf-1",
			"statusDetails": {"state": "RefundInitiated", "lastUpdatedTime": "2024-06-01T12:02:00Z"}
		}`))
	}))
	defer srv.Close()

	c := newCurrent(t, srv.URL)
	res, err := c.Refund(context.Background(), "chg-1", reference.Amount{ValueCents: 500, Currency: "EUR"}, "tok")
	require.NoError(t, err)

	assert.Equal(t, "rf-1", res.RefundID)
	assert.Equal(t, reference.StatePending, res.State)
}

func TestCurrentCall_DeclineClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"reasonCode": "Declined", "message": "insufficient funds"}`))
	}))
	defer srv.Close()

	c := newCurrent(t, srv.URL)
	_, err := c.Authorize(context.Background(), "cs-abc-123", reference.Amount{ValueCents: 1999, Currency: "EUR"}, "tok")
	assert.ErrorIs(t, err, domainErrors.ErrPaymentDeclined)
	assert.False(t, domainErrors.IsRetryable(err))
}

func TestCurrentCall_UnauthorizedClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"reasonCode": "InvalidRequestSignature"}`))
	}))
	defer srv.Close()

	c := newCurrent(t, srv.URL)
	_, err := c.GetReferenceDetails(context.Background(), "cs-abc-123")
	assert.ErrorIs(t, err, domainErrors.ErrCredentialsExpired)
}

func TestCurrentCall_ThrottleIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"reasonCode": "TransactionCountExceeded"}`))
	}))
	defer srv.Close()

	c := newCurrent(t, srv.URL)
	_, err := c.Capture(context.Background(), "chg-1", reference.Amount{ValueCents: 100, Currency: "EUR"}, "tok")
	assert.ErrorIs(t, err, domainErrors.ErrProviderTransient)
}

func TestCurrentGetReferenceDetails_CapturedChargeFillsCaptureSlot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{
			"checkoutSessionId": "cs-abc-123",
			"statusDetails": {"state": "Open", "lastUpdatedTime": "2024-06-01T12:03:00Z"},
			"charges": [
				{"chargeId": "chg-1", "statusDetails": {"state": "Captured"}}
			]
		}`))
	}))
	defer srv.Close()

	c := newCurrent(t, srv.URL)
	snap, err := c.GetReferenceDetails(context.Background(), "cs-abc-123")
	require.NoError(t, err)

	assert.Equal(t, "cs-abc-123", snap.ReferenceID)
	assert.Equal(t, reference.StateOpen, snap.ReferenceState)
	assert.Equal(t, "chg-1", snap.AuthorizationID)
	assert.Equal(t, reference.StateCompleted, snap.AuthorizationState)
	assert.Equal(t, "chg-1", snap.CaptureID)
	assert.Equal(t, reference.StateCompleted, snap.CaptureState)
}
