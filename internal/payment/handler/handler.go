// Package handler exposes order creation, payment verification and
// reconciliation over HTTP.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"examreg/internal/payment/reconcile"
	"examreg/pkg/derrors"
	"examreg/pkg/httputil"
)

// SignatureHeader carries the webhook body signature.
const SignatureHeader = "X-Razorpay-Signature"

// maxWebhookBody bounds how much of a webhook request is read.
const maxWebhookBody = 1 << 20

type Handler struct {
	coordinator *reconcile.Coordinator
	logger      *slog.Logger
}

func New(coordinator *reconcile.Coordinator, logger *slog.Logger) *Handler {
	return &Handler{coordinator: coordinator, logger: logger}
}

// RegisterPublic mounts the routes the paying client and the gateway hit.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/payments/order", h.createOrder)
	r.Post("/payments/verify", h.verify)
	r.Post("/payments/webhook", h.webhook)
}

// RegisterAdmin mounts the manual reconciliation routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/payments/{key}/reconcile", h.reconcile)
	r.Post("/payments/reconcile", h.reconcileAll)
}

type createOrderRequest struct {
	Key string `json:"key"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "malformed request body"))
		return
	}
	key, err := uuid.Parse(req.Key)
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid registration key"))
		return
	}

	order, err := h.coordinator.CreateOrder(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"orderId":  order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
	})
}

type verifyRequest struct {
	Key       string `json:"key"`
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "malformed request body"))
		return
	}
	key, err := uuid.Parse(req.Key)
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid registration key"))
		return
	}

	res, err := h.coordinator.ConfirmCallback(r.Context(), key, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// webhook verifies the body signature before parsing anything, so the raw
// bytes must be read exactly as sent.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "unreadable webhook body"))
		return
	}

	res, err := h.coordinator.HandleWebhook(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if res == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	key, err := uuid.Parse(chi.URLParam(r, "key"))
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid registration key"))
		return
	}

	res, err := h.coordinator.Reconcile(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) reconcileAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.coordinator.ReconcileAllPending(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"checked": len(results),
		"results": results,
	})
}
