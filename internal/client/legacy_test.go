package client_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
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

const legacySecret = "test-secret-key"

func newLegacy(t *testing.T, endpoint string) client.Client {
	t.Helper()
	audit := redact.NewLogger(zerolog.Nop(), false, "TEST")
	return client.NewLegacy(client.LegacyConfig{
		Endpoint:    endpoint,
		SellerID:    "SELLER123",
		AccessKeyID: "AKTEST",
		SecretKey:   legacySecret,
		Timeout:     2 * time.Second,
	}, audit, nil)
}

// signFor recomputes the signature the same way the sender must: HMAC
// over the sorted, query-escaped parameter string, signature excluded.
func signFor(form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		if k == "Signature" {
			continue
		}
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
		sb.WriteString(url.QueryEscape(form.Get(k)))
	}
	mac := hmac.New(sha256.New, []byte(legacySecret))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestLegacyVariant(t *testing.T) {
	c := newLegacy(t, "https://example.invalid")
	assert.Equal(t, gate.Legacy, c.Variant())
}

func TestLegacyCreateReference_SignedRequest(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`<SetOrderReferenceDetailsResponse>
			<SetOrderReferenceDetailsResult><OrderReferenceDetails>
				<AmazonOrderReferenceId>S01-1234567-1234567</AmazonOrderReferenceId>
				<OrderReferenceStatus>
					<State>Open</State>
					<LastUpdateTimestamp>2024-06-01T12:00:00Z</LastUpdateTimestamp>
				</OrderReferenceStatus>
			</OrderReferenceDetails></SetOrderReferenceDetailsResult>
		</SetOrderReferenceDetailsResponse>`))
	}))
	defer srv.Close()

	c := newLegacy(t, srv.URL)
	res, err := c.CreateReference(context.Background(), client.CreateReferenceRequest{
		OrderID:    "order-42",
		Amount:     reference.Amount{ValueCents: 1999, Currency: "USD"},
		StoreName:  "ACME Store",
		SellerNote: "thanks\x01 for your order",
	})
	require.NoError(t, err)

	assert.Equal(t, "S01-1234567-1234567", res.ReferenceID)
	assert.Equal(t, reference.StateOpen, res.State)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), res.ObservedAt)

	assert.Equal(t, "SetOrderReferenceDetails", form.Get("Action"))
	assert.Equal(t, "SELLER123", form.Get("SellerId"))
	assert.Equal(t, "AKTEST", form.Get("AWSAccessKeyId"))
	assert.Equal(t, "order-42", form.Get("SellerOrderId"))
	assert.Equal(t, "19.99", form.Get("OrderTotal.Amount"))
	assert.Equal(t, "USD", form.Get("OrderTotal.CurrencyCode"))
	// Control characters stripped before the note goes provider-side.
	assert.Equal(t, "thanks for your order", form.Get("SellerNote"))
	assert.Equal(t, signFor(form), form.Get("Signature"))
}

func TestLegacyAuthorize_TokenBecomesReferenceID(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`<AuthorizeResponse><AuthorizeResult><AuthorizationDetails>
			<AmazonAuthorizationId>S01-1234567-1234567-A1</AmazonAuthorizationId>
			<AuthorizationStatus>
				<State>Open</State>
				<LastUpdateTimestamp>2024-06-01T12:00:00Z</LastUpdateTimestamp>
			</AuthorizationStatus>
		</AuthorizationDetails></AuthorizeResult></AuthorizeResponse>`))
	}))
	defer srv.Close()

	c := newLegacy(t, srv.URL)
	token := client.Token("order-42", "authorize", "0f8fad5b-d9cb-469f-a165-70867728950e")
	res, err := c.Authorize(context.Background(), "S01-1234567-1234567", reference.Amount{ValueCents: 1999, Currency: "USD"}, token)
	require.NoError(t, err)

	assert.Equal(t, "S01-1234567-1234567-A1", res.AuthorizationID)
	assert.Equal(t, reference.StateOpen, res.State)

	// The token is squeezed into the 32-char alphanumeric reference-id
	// field; retries carry the identical value.
	ref := form.Get("AuthorizationReferenceId")
	assert.NotEmpty(t, ref)
	assert.LessOrEqual(t, len(ref), 32)
	assert.NotContains(t, ref, ":")
	assert.Equal(t, "19.99", form.Get("AuthorizationAmount.Amount"))
}

func TestLegacyCapture_DeclinedClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`<ErrorResponse><Error>
			<Code>TransactionDeclined</Code>
			<Message>The transaction was declined.</Message>
		</Error></ErrorResponse>`))
	}))
	defer srv.Close()

	c := newLegacy(t, srv.URL)
	_, err := c.Capture(context.Background(), "A1", reference.Amount{ValueCents: 500, Currency: "USD"}, "tok")
	assert.ErrorIs(t, err, domainErrors.ErrPaymentDeclined)
}

func TestLegacyCall_CredentialFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<ErrorResponse><Error>
			<Code>SignatureDoesNotMatch</Code>
		</Error></ErrorResponse>`))
	}))
	defer srv.Close()

	c := newLegacy(t, srv.URL)
	_, err := c.GetReferenceDetails(context.Background(), "S01-1234567-1234567")
	assert.ErrorIs(t, err, domainErrors.ErrCredentialsExpired)
	assert.False(t, domainErrors.IsRetryable(err))
}

func TestLegacyCall_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newLegacy(t, srv.URL)
	_, err := c.Refund(context.Background(), "C1", reference.Amount{ValueCents: 500, Currency: "USD"}, "tok")
	assert.ErrorIs(t, err, domainErrors.ErrProviderTransient)
	assert.True(t, domainErrors.IsRetryable(err))
}

func TestLegacyCall_NetworkFaultTripsBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // every dial now fails

	c := newLegacy(t, srv.URL)
	amount := reference.Amount{ValueCents: 100, Currency: "USD"}

	for i := 0; i < 10; i++ {
		_, err := c.Capture(context.Background(), "A1", amount, "tok")
		require.ErrorIs(t, err, domainErrors.ErrProviderTransient)
	}

	// Ten consecutive connection failures open the breaker; further
	// calls fail fast without touching the wire.
	_, err := c.Capture(context.Background(), "A1", amount, "tok")
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
}

func TestLegacyGetReferenceDetails_FullSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<GetOrderReferenceDetailsResponse>
			<GetOrderReferenceDetailsResult><OrderReferenceDetails>
				<AmazonOrderReferenceId>S01-1234567-1234567</AmazonOrderReferenceId>
				<OrderReferenceStatus>
					<State>Open</State>
					<LastUpdateTimestamp>2024-06-01T12:05:00Z</LastUpdateTimestamp>
				</OrderReferenceStatus>
				<AuthorizationDetails>
					<AmazonAuthorizationId>S01-1234567-1234567-A1</AmazonAuthorizationId>
					<AuthorizationStatus><State>Closed</State></AuthorizationStatus>
				</AuthorizationDetails>
				<CaptureDetails>
					<AmazonCaptureId>S01-1234567-1234567-C1</AmazonCaptureId>
					<CaptureStatus><State>Completed</State></CaptureStatus>
				</CaptureDetails>
			</OrderReferenceDetails></GetOrderReferenceDetailsResult>
		</GetOrderReferenceDetailsResponse>`))
	}))
	defer srv.Close()

	c := newLegacy(t, srv.URL)
	snap, err := c.GetReferenceDetails(context.Background(), "S01-1234567-1234567")
	require.NoError(t, err)

	assert.Equal(t, "S01-1234567-1234567", snap.ReferenceID)
	assert.Equal(t, reference.StateOpen, snap.ReferenceState)
	assert.Equal(t, "S01-1234567-1234567-A1", snap.AuthorizationID)
	assert.Equal(t, reference.StateClosed, snap.AuthorizationState)
	assert.Equal(t, "S01-1234567-1234567-C1", snap.CaptureID)
	assert.Equal(t, reference.StateCompleted, snap.CaptureState)
}
