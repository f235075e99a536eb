package controller

import (
	"context"
	"net/http"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/client"
	domainErrors "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/errors"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/reconcile"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/store"
	"github.com/go-chi/chi/v5"
)

// ReferenceController exposes the synchronous gateway operations over
// HTTP: checkout opens a reference, admin actions authorize, capture,
// refund and refresh it.
type ReferenceController struct {
	reconciler *reconcile.Reconciler
	store      *store.Store
}

// NewReferenceController creates a new ReferenceController.
func NewReferenceController(reconciler *reconcile.Reconciler, st *store.Store) *ReferenceController {
	return &ReferenceController{reconciler: reconciler, store: st}
}

func orderID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "orderID")
	if id == "" {
		return "", domainErrors.NewValidationError("orderID", "order id is required")
	}
	return id, nil
}

// CreateReference handles POST /api/v1/orders/{orderID}/reference
func (h *ReferenceController) CreateReference(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateReferenceRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.reconciler.CreateReference(r.Context(), client.CreateReferenceRequest{
		OrderID:    id,
		Amount:     toAmount(req.Amount, req.Currency),
		StoreName:  req.StoreName,
		SellerNote: req.SellerNote,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromResult(res))
}

// Authorize handles POST /api/v1/orders/{orderID}/authorize
func (h *ReferenceController) Authorize(w http.ResponseWriter, r *http.Request) {
	h.money(w, r, h.reconciler.Authorize)
}

// Capture handles POST /api/v1/orders/{orderID}/capture
func (h *ReferenceController) Capture(w http.ResponseWriter, r *http.Request) {
	h.money(w, r, h.reconciler.Capture)
}

// Refund handles POST /api/v1/orders/{orderID}/refund
func (h *ReferenceController) Refund(w http.ResponseWriter, r *http.Request) {
	h.money(w, r, h.reconciler.Refund)
}

// GetSnapshot handles GET /api/v1/orders/{orderID}/reference
func (h *ReferenceController) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.store.Snapshot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromSnapshot(snap))
}

// Refresh handles POST /api/v1/orders/{orderID}/refresh
func (h *ReferenceController) Refresh(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.reconciler.Refresh(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromSnapshot(snap))
}

func (h *ReferenceController) money(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, orderID string, amount reference.Amount) (*reconcile.Result, error)) {
	id, err := orderID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req MoneyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := op(r.Context(), id, toAmount(req.Amount, req.Currency))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromResult(res))
}
