package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domainErrors "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/errors"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/infrastructure/observability"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/redact"
	"github.com/sony/gobreaker/v2"
)

// wireResponse is the raw outcome of one provider round trip.
type wireResponse struct {
	status int
	body   []byte
}

// wireCore is the HTTP plumbing shared by both protocol variants: one
// circuit breaker per variant, transport timeout, and audit logging of
// every request and response body through the redactor.
type wireCore struct {
	name    string
	variant string
	baseURL string
	hc      *http.Client
	breaker *gobreaker.CircuitBreaker[*wireResponse]
	audit   *redact.Logger
	metrics *observability.Metrics
}

func newWireCore(name, variant, baseURL string, timeout time.Duration, audit *redact.Logger, metrics *observability.Metrics) *wireCore {
	return &wireCore{
		name:    name,
		variant: variant,
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*wireResponse](gobreaker.Settings{
			Name:        name,
			MaxRequests: 10,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 10 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if metrics != nil {
					metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
				}
			},
		}),
		audit:   audit,
		metrics: metrics,
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// do performs one provider round trip. Network faults and timeouts come
// back as ErrProviderTransient; non-2xx statuses are returned to the
// caller for protocol-specific classification.
func (c *wireCore) do(ctx context.Context, opContext, method, path, contentType string, body []byte, headers map[string]string) (*wireResponse, error) {
	c.audit.Request(opContext, string(body))

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*wireResponse, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrInvalidRequest, err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		httpResp, err := c.hc.Do(req)
		if err != nil {
			// A timeout here may mean the state changed provider-side.
			// The idempotency token makes the retry safe.
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrProviderTransient, err)
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read response: %v", domainErrors.ErrProviderTransient, err)
		}
		return &wireResponse{status: httpResp.StatusCode, body: respBody}, nil
	})
	c.observe(opContext, time.Since(start), resp, err)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err)
		}
		return nil, err
	}

	c.audit.Response(opContext, string(resp.body))
	return resp, nil
}

func (c *wireCore) observe(operation string, elapsed time.Duration, resp *wireResponse, err error) {
	if c.metrics == nil {
		return
	}
	result := "error"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "breaker_open"
	case err == nil && resp.status >= 200 && resp.status < 300:
		result = "success"
	case err == nil:
		result = "http_" + fmt.Sprint(resp.status)
	}
	c.metrics.ProviderRequestsTotal.WithLabelValues(c.variant, operation, result).Inc()
	c.metrics.ProviderRequestDuration.WithLabelValues(c.variant, operation).Observe(elapsed.Seconds())
	c.metrics.CircuitBreakerRequests.WithLabelValues(c.name, result).Inc()
}

// classify maps a non-2xx provider response to the failure taxonomy.
// code is the protocol-level error code parsed from the body, when any.
func classify(status int, code string) error {
	switch code {
	case "TransactionDeclined", "TransactionAmountExceeded", "InvalidPaymentMethod", "AmazonRejected", "ProcessingFailure", "Declined":
		return fmt.Errorf("%w: %s", domainErrors.ErrPaymentDeclined, code)
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "UnauthorizedAccess", "ExpiredToken":
		return fmt.Errorf("%w: %s", domainErrors.ErrCredentialsExpired, code)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: http %d", domainErrors.ErrCredentialsExpired, status)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: http %d (%s)", domainErrors.ErrProviderTransient, status, code)
	default:
		return fmt.Errorf("%w: http %d (%s)", domainErrors.ErrInvalidRequest, status, code)
	}
}
