package controller

import (
	"io"
	"net/http"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/infrastructure/observability"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/ipn"
)

// SignatureHeader carries the provider's message signature on push
// notification deliveries.
const SignatureHeader = "X-Amz-Pay-Signature"

const maxNotificationBytes = 1 << 20

// IPNController receives the provider's push notifications.
type IPNController struct {
	handler *ipn.Handler
	metrics *observability.Metrics
}

// NewIPNController creates a new IPNController.
func NewIPNController(handler *ipn.Handler, metrics *observability.Metrics) *IPNController {
	return &IPNController{handler: handler, metrics: metrics}
}

// Receive handles POST /ipn. Acknowledged outcomes return 200 so the
// provider stops redelivering; verification failures return 403 and
// malformed payloads 400. Internal faults return 500, inviting a
// redelivery.
func (h *IPNController) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable body", Code: "malformed"})
		return
	}

	outcome := h.handler.Handle(r.Context(), ipn.Request{
		Body:        body,
		Signature:   r.Header.Get(SignatureHeader),
		ContentType: r.Header.Get("Content-Type"),
	})
	if h.metrics != nil {
		h.metrics.NotificationsTotal.WithLabelValues(string(outcome)).Inc()
	}

	switch {
	case outcome.Acknowledged():
		writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
	case outcome == ipn.OutcomeVerificationFailed:
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "signature verification failed", Code: string(outcome)})
	case outcome == ipn.OutcomeMalformed:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed notification", Code: string(outcome)})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "notification processing failed", Code: string(outcome)})
	}
}
