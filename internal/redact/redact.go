// Package redact strips personally identifying content from provider
// request and response bodies before they reach the audit log. Tags and
// keys are preserved so logged messages stay diffable; only the values
// are replaced.
package redact

import (
	"regexp"

	"github.com/rs/zerolog"
)

// Placeholder replaces every redacted value.
const Placeholder = "REMOVED"

// xmlPatterns cover the legacy protocol's XML response bodies.
var xmlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)(<Buyer>)(.+?)(</Buyer>)`),
	regexp.MustCompile(`(?s)(<PhysicalDestination>)(.+?)(</PhysicalDestination>)`),
	regexp.MustCompile(`(?s)(<BillingAddress>)(.+?)(</BillingAddress>)`),
	regexp.MustCompile(`(?s)(<AuthorizationBillingAddress>)(.+?)(</AuthorizationBillingAddress>)`),
	regexp.MustCompile(`(?s)(<SellerNote>)(.+?)(</SellerNote>)`),
	regexp.MustCompile(`(?s)(<SellerAuthorizationNote>)(.+?)(</SellerAuthorizationNote>)`),
	regexp.MustCompile(`(?s)(<SellerCaptureNote>)(.+?)(</SellerCaptureNote>)`),
	regexp.MustCompile(`(?s)(<SellerRefundNote>)(.+?)(</SellerRefundNote>)`),
}

// formPatterns cover the legacy protocol's query-encoded request bodies.
var formPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(SellerNote=)([^&]+)(&|$)`),
	regexp.MustCompile(`(SellerAuthorizationNote=)([^&]+)(&|$)`),
	regexp.MustCompile(`(SellerCaptureNote=)([^&]+)(&|$)`),
	regexp.MustCompile(`(SellerRefundNote=)([^&]+)(&|$)`),
}

// jsonPatterns cover the current protocol's JSON bodies.
var jsonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`("buyer"\s*:\s*)(\{.*?\})`),
	regexp.MustCompile(`("billingAddress"\s*:\s*)(\{.*?\})`),
	regexp.MustCompile(`("shippingAddress"\s*:\s*)(\{.*?\})`),
	regexp.MustCompile(`("sellerNote"\s*:\s*)("(?:[^"\\]|\\.)*")`),
	regexp.MustCompile(`("sellerAuthorizationNote"\s*:\s*)("(?:[^"\\]|\\.)*")`),
	regexp.MustCompile(`("sellerCaptureNote"\s*:\s*)("(?:[^"\\]|\\.)*")`),
	regexp.MustCompile(`("sellerRefundNote"\s*:\s*)("(?:[^"\\]|\\.)*")`),
	regexp.MustCompile(`("softDescriptor"\s*:\s*)("(?:[^"\\]|\\.)*")`),
}

// Response sanitizes an XML or JSON response body.
func Response(body string) string {
	for _, p := range xmlPatterns {
		body = p.ReplaceAllString(body, "$1 "+Placeholder+" $3")
	}
	for _, p := range jsonPatterns {
		body = p.ReplaceAllString(body, `$1"`+Placeholder+`"`)
	}
	return body
}

// Request sanitizes a query-encoded or JSON request body.
func Request(body string) string {
	for _, p := range formPatterns {
		body = p.ReplaceAllString(body, "$1"+Placeholder+"$3")
	}
	for _, p := range jsonPatterns {
		body = p.ReplaceAllString(body, `$1"`+Placeholder+`"`)
	}
	return body
}

// Logger writes one audit line per provider interaction, with bodies
// passed through the sanitizers above. Lines are emitted only when the
// debug flag is set; the prefix ties all lines of one transaction
// together and is supplied by the caller, never derived from the stack.
type Logger struct {
	log    zerolog.Logger
	debug  bool
	prefix string
}

// NewLogger creates an audit logger. prefix is a short token identifying
// the transaction the logged interactions belong to.
func NewLogger(log zerolog.Logger, debug bool, prefix string) *Logger {
	return &Logger{log: log, debug: debug, prefix: prefix}
}

// Request logs an outbound provider request body.
func (l *Logger) Request(context, body string) {
	if !l.debug {
		return
	}
	l.log.Debug().
		Str("prefix", l.prefix).
		Str("context", context).
		Str("direction", "request").
		Str("body", Request(body)).
		Msg("provider interaction")
}

// Response logs an inbound provider response body.
func (l *Logger) Response(context, body string) {
	if !l.debug {
		return
	}
	l.log.Debug().
		Str("prefix", l.prefix).
		Str("context", context).
		Str("direction", "response").
		Str("body", Response(body)).
		Msg("provider interaction")
}
