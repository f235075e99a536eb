package redact_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/redact"
)

func TestResponse_XMLTags(t *testing.T) {
	body := `<GetOrderReferenceDetailsResponse>` +
		`<Buyer><Name>Jane Doe</Name><Email>jane@example.com</Email></Buyer>` +
		`<PhysicalDestination><City>Seattle</City></PhysicalDestination>` +
		`<SellerNote>gift for order 42</SellerNote>` +
		`<OrderReferenceStatus><State>Open</State></OrderReferenceStatus>` +
		`</GetOrderReferenceDetailsResponse>`

	got := redact.Response(body)

	assert.NotContains(t, got, "Jane Doe")
	assert.NotContains(t, got, "jane@example.com")
	assert.NotContains(t, got, "Seattle")
	assert.NotContains(t, got, "gift for order 42")
	assert.Contains(t, got, "<Buyer> REMOVED </Buyer>")
	assert.Contains(t, got, "<PhysicalDestination> REMOVED </PhysicalDestination>")
	assert.Contains(t, got, "<SellerNote> REMOVED </SellerNote>")
	// Non-sensitive structure survives untouched.
	assert.Contains(t, got, "<State>Open</State>")
}

func TestResponse_MultilineXML(t *testing.T) {
	body := "<BillingAddress>\n  <Line1>1 Main St</Line1>\n  <PostalCode>98101</PostalCode>\n</BillingAddress>"

	got := redact.Response(body)

	assert.Equal(t, "<BillingAddress> REMOVED </BillingAddress>", got)
}

func TestResponse_JSONBodies(t *testing.T) {
	body := `{"statusDetails":{"state":"Completed"},` +
		`"buyer":{"name":"Jane Doe","email":"jane@example.com"},` +
		`"shippingAddress":{"city":"Seattle"},` +
		`"softDescriptor":"ACME STORE 42"}`

	got := redact.Response(body)

	assert.NotContains(t, got, "Jane Doe")
	assert.NotContains(t, got, "Seattle")
	assert.NotContains(t, got, "ACME STORE 42")
	assert.Contains(t, got, `"buyer":"REMOVED"`)
	assert.Contains(t, got, `"shippingAddress":"REMOVED"`)
	assert.Contains(t, got, `"softDescriptor":"REMOVED"`)
	assert.Contains(t, got, `"state":"Completed"`)
}

func TestRequest_QueryEncodedKeys(t *testing.T) {
	body := "Action=SetOrderReferenceDetails&SellerNote=secret123&AmazonOrderReferenceId=S01-1234567-1234567"

	got := redact.Request(body)

	assert.NotContains(t, got, "secret123")
	assert.Contains(t, got, "SellerNote=REMOVED&")
	assert.Contains(t, got, "AmazonOrderReferenceId=S01-1234567-1234567")
}

func TestRequest_KeyAtEndOfBody(t *testing.T) {
	body := "Action=Authorize&SellerAuthorizationNote=internal memo"

	got := redact.Request(body)

	assert.Equal(t, "Action=Authorize&SellerAuthorizationNote=REMOVED", got)
}

func TestRequest_JSONNote(t *testing.T) {
	body := `{"chargeAmount":{"amount":"10.00"},"sellerNote":"call \"me\" maybe"}`

	got := redact.Request(body)

	assert.NotContains(t, got, "maybe")
	assert.Contains(t, got, `"sellerNote":"REMOVED"`)
	assert.Contains(t, got, `"amount":"10.00"`)
}

func TestLogger_DebugDisabledEmitsNothing(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	l := redact.NewLogger(log, false, "AMZ")
	l.Request("Authorize", "SellerNote=secret123")
	l.Response("Authorize", "<Buyer>Jane</Buyer>")

	assert.Zero(t, buf.Len())
}

func TestLogger_NeverExposesRedactedValues(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	l := redact.NewLogger(log, true, "AMZ")
	l.Request("Authorize", "SellerNote=secret123&Amount=10.00")
	l.Response("Authorize", "<Buyer><Name>Jane Doe</Name></Buyer>")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.NotContains(t, out, "secret123")
	assert.NotContains(t, out, "Jane Doe")
	assert.Contains(t, out, "REMOVED")
	assert.Contains(t, out, "AMZ")
	assert.Contains(t, out, "Amount=10.00")
}
