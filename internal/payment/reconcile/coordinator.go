// Package reconcile drives the terminal paid transition for registrations.
//
// Three independent triggers can report the same payment: the signed callback
// the paying client carries back, the gateway webhook, and a manual admin
// reconciliation. All of them funnel into one shared routine built around the
// store's conditional mark-paid write, so the transition lands exactly once
// no matter how many triggers fire or in what order.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"examreg/internal/payment/gateway"
	"examreg/internal/payment/signature"
	"examreg/internal/platform/metrics"
	"examreg/internal/registration/identifier"
	"examreg/internal/registration/models"
	"examreg/internal/registration/receipt"
	"examreg/internal/registration/store"
	"examreg/pkg/derrors"
	"examreg/pkg/requestcontext"
	"examreg/pkg/sentinel"
)

// maxReceiptAttempts bounds the collision retry loop. Each retry allocates a
// fresh independent receipt number, so exhausting this means the counter
// itself is handing out taken values.
const maxReceiptAttempts = 10

// Webhook event types that carry a settled payment. Everything else is
// acknowledged and dropped.
const (
	eventPaymentCaptured = "payment.captured"
	eventOrderPaid       = "order.paid"
)

// Result reports the outcome of a reconciliation trigger.
type Result struct {
	RegistrationID string `json:"registrationId"`
	Status         string `json:"status"` // paid or pending
	ReceiptNo      string `json:"receiptNo,omitempty"`
	OrderID        string `json:"orderId,omitempty"`
	PaymentID      string `json:"paymentId,omitempty"`
}

// Secrets holds the gateway credentials the coordinator verifies against.
type Secrets struct {
	KeySecret     string
	WebhookSecret string
}

// Coordinator owns order creation and the paid transition.
type Coordinator struct {
	registrations store.Store
	gateway       gateway.Gateway
	receipts      *receipt.Generator
	secrets       Secrets
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func New(
	registrations store.Store,
	gw gateway.Gateway,
	receipts *receipt.Generator,
	secrets Secrets,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		registrations: registrations,
		gateway:       gw,
		receipts:      receipts,
		secrets:       secrets,
		metrics:       m,
		logger:        logger,
	}
}

// CreateOrder opens a gateway order for a pending registration and records the
// order ID on the row. Calling it again for the same registration reuses the
// existing order instead of opening a second one.
func (c *Coordinator) CreateOrder(ctx context.Context, key uuid.UUID) (gateway.Order, error) {
	r, err := c.registrations.FindByKey(ctx, key)
	if err != nil {
		return gateway.Order{}, translateStoreErr(err)
	}
	if r.IsPaid() {
		return gateway.Order{}, derrors.New(derrors.CodeConflict, "registration is already paid")
	}
	if r.PaymentStatus == models.PaymentStatusWaived {
		return gateway.Order{}, derrors.New(derrors.CodeConflict, "registration fee is waived")
	}
	if r.OrderID != "" {
		return gateway.Order{ID: r.OrderID, Amount: r.RegistrationAmount, Currency: "INR"}, nil
	}

	order, err := c.gateway.CreateOrder(ctx, gateway.CreateOrderInput{
		Amount:   r.RegistrationAmount,
		Currency: "INR",
		Receipt:  "receipt_" + r.RegistrationID,
		Notes: map[string]string{
			"registrationId":  r.RegistrationID,
			"registrationKey": r.Key.String(),
		},
	})
	if err != nil {
		return gateway.Order{}, err
	}

	r.OrderID = order.ID
	r.UpdatedAt = requestcontext.Now(ctx)
	if err := c.registrations.Update(ctx, r); err != nil {
		return gateway.Order{}, translateStoreErr(err)
	}

	c.logger.InfoContext(ctx, "payment order created",
		"registration_id", r.RegistrationID,
		"order_id", order.ID,
		"amount", order.Amount,
	)
	return order, nil
}

// ConfirmCallback handles the signed confirmation the paying client posts
// back after the gateway checkout. The signature covers orderID|paymentID
// with the key secret; a mismatch writes nothing.
func (c *Coordinator) ConfirmCallback(ctx context.Context, key uuid.UUID, orderID, paymentID, sig string) (Result, error) {
	if err := signature.VerifyCallback(orderID, paymentID, sig, c.secrets.KeySecret); err != nil {
		c.metrics.IncrementSignatureFailures()
		c.logger.WarnContext(ctx, "payment callback rejected",
			"registration_key", key,
			"order_id", orderID,
		)
		return Result{}, err
	}

	r, err := c.registrations.FindByKey(ctx, key)
	if err != nil {
		return Result{}, translateStoreErr(err)
	}
	return c.markPaid(ctx, r, paymentID, orderID, sig)
}

// webhookEnvelope is the slice of the gateway webhook payload the coordinator
// reads. Unknown fields are ignored.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Notes   struct {
					RegistrationKey string `json:"registrationKey"`
				} `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook verifies the webhook body signature and, for settled-payment
// events, reconciles the referenced registration. Non-payment events return a
// nil result and no error so the endpoint can acknowledge them.
func (c *Coordinator) HandleWebhook(ctx context.Context, rawBody []byte, sig string) (*Result, error) {
	if err := signature.VerifyWebhook(rawBody, sig, c.secrets.WebhookSecret); err != nil {
		c.metrics.IncrementSignatureFailures()
		c.logger.WarnContext(ctx, "webhook rejected", "reason", "bad signature")
		return nil, err
	}

	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeBadRequest, "malformed webhook payload")
	}
	if env.Event != eventPaymentCaptured && env.Event != eventOrderPaid {
		c.logger.DebugContext(ctx, "webhook event ignored", "event", env.Event)
		return nil, nil
	}

	entity := env.Payload.Payment.Entity
	r, err := c.resolveWebhookTarget(ctx, entity.Notes.RegistrationKey, entity.OrderID)
	if err != nil {
		return nil, err
	}

	res, err := c.markPaid(ctx, r, entity.ID, entity.OrderID, "")
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// resolveWebhookTarget locates the registration a webhook refers to: the
// registration key from the order notes when present, otherwise the order ID.
func (c *Coordinator) resolveWebhookTarget(ctx context.Context, rawKey, orderID string) (*models.Registration, error) {
	if rawKey != "" {
		key, err := uuid.Parse(rawKey)
		if err == nil {
			r, err := c.registrations.FindByKey(ctx, key)
			if err == nil {
				return r, nil
			}
			if !errors.Is(err, sentinel.ErrNotFound) {
				return nil, translateStoreErr(err)
			}
		}
	}
	if orderID == "" {
		return nil, derrors.New(derrors.CodeBadRequest, "webhook payload names no registration")
	}
	r, err := c.registrations.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return r, nil
}

// Reconcile checks the gateway for a captured payment on the registration's
// order and applies the paid transition if one exists. Safe to call any
// number of times; a registration with no captured payment stays pending.
func (c *Coordinator) Reconcile(ctx context.Context, key uuid.UUID) (Result, error) {
	r, err := c.registrations.FindByKey(ctx, key)
	if err != nil {
		return Result{}, translateStoreErr(err)
	}
	return c.reconcile(ctx, r)
}

func (c *Coordinator) reconcile(ctx context.Context, r *models.Registration) (Result, error) {
	if r.IsPaid() {
		c.metrics.ObserveReconciliation("already_paid")
		return paidResult(r), nil
	}
	if r.OrderID == "" {
		return Result{}, derrors.New(derrors.CodeConflict, "registration has no payment order")
	}

	payments, err := c.gateway.FetchPayments(ctx, r.OrderID)
	if err != nil {
		c.metrics.ObserveReconciliation("failed")
		return Result{}, err
	}

	for _, p := range payments {
		if p.Captured() {
			return c.markPaid(ctx, r, p.ID, r.OrderID, "")
		}
	}

	c.metrics.ObserveReconciliation("pending")
	return Result{
		RegistrationID: r.RegistrationID,
		Status:         "pending",
		OrderID:        r.OrderID,
	}, nil
}

// ReconcileAllPending sweeps every unpaid registration that has an order,
// querying the gateway with bounded concurrency. Individual failures are
// logged and counted but do not abort the sweep.
func (c *Coordinator) ReconcileAllPending(ctx context.Context) ([]Result, error) {
	pending, err := c.registrations.ListPendingWithOrders(ctx)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	results := make([]Result, len(pending))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, r := range pending {
		g.Go(func() error {
			res, err := c.reconcile(ctx, r)
			if err != nil {
				c.logger.ErrorContext(ctx, "reconciliation sweep entry failed",
					"registration_id", r.RegistrationID,
					"error", err,
				)
				res = Result{RegistrationID: r.RegistrationID, Status: "pending", OrderID: r.OrderID}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MarkPaidManually applies the paid transition on an admin's word, without a
// gateway signature. Implements the registration service's PaidMarker.
func (c *Coordinator) MarkPaidManually(ctx context.Context, key uuid.UUID, paymentID, orderID string) error {
	r, err := c.registrations.FindByKey(ctx, key)
	if err != nil {
		return translateStoreErr(err)
	}
	if orderID == "" {
		orderID = r.OrderID
	}
	_, err = c.markPaid(ctx, r, paymentID, orderID, "")
	return err
}

// markPaid is the shared terminal routine every trigger converges on.
//
// The write itself is a single conditional update guarded on the stored
// payment status. Losing the race to another trigger is success: the payment
// is recorded and the winner's receipt number is returned. A receipt number
// collision retries with a freshly allocated independent number, bounded.
func (c *Coordinator) markPaid(ctx context.Context, r *models.Registration, paymentID, orderID, sig string) (Result, error) {
	if r.IsPaid() {
		c.metrics.ObserveReconciliation("already_paid")
		return paidResult(r), nil
	}
	if r.PaymentStatus == models.PaymentStatusWaived {
		return Result{}, derrors.New(derrors.CodeConflict, "registration fee is waived")
	}

	// Recode the identifier's status segment. A stored identifier that does
	// not decode is left untouched rather than blocking the payment record.
	recoded, err := identifier.Recode(r.RegistrationID, identifier.StatusCompleted)
	if err != nil {
		c.logger.WarnContext(ctx, "stored identifier did not decode, keeping as-is",
			"registration_id", r.RegistrationID,
		)
		recoded = ""
	}

	receiptNo := r.ReceiptNo
	if receiptNo == "" {
		receiptNo, err = receipt.FromIdentifier(r.RegistrationID)
		if err != nil {
			receiptNo, err = c.receipts.Independent(ctx)
			if err != nil {
				c.metrics.ObserveReconciliation("failed")
				return Result{}, err
			}
		}
	}

	for attempt := 0; attempt < maxReceiptAttempts; attempt++ {
		updated, err := c.registrations.MarkPaid(ctx, r.Key, store.PaidUpdate{
			RegistrationID: recoded,
			ReceiptNo:      receiptNo,
			PaymentID:      paymentID,
			OrderID:        orderID,
			Signature:      sig,
			Now:            requestcontext.Now(ctx),
		})
		switch {
		case err == nil:
			c.metrics.ObserveReconciliation("paid")
			c.logger.InfoContext(ctx, "registration marked paid",
				"registration_id", updated.RegistrationID,
				"receipt_no", updated.ReceiptNo,
				"payment_id", paymentID,
			)
			return paidResult(updated), nil

		case errors.Is(err, sentinel.ErrInvalidState):
			// Another trigger won the race. Re-read and report its result.
			winner, err := c.registrations.FindByKey(ctx, r.Key)
			if err != nil {
				return Result{}, translateStoreErr(err)
			}
			if !winner.IsPaid() {
				return Result{}, derrors.New(derrors.CodeConflict, "registration is not payable")
			}
			c.metrics.ObserveReconciliation("already_paid")
			return paidResult(winner), nil

		case errors.Is(err, sentinel.ErrConflict):
			c.metrics.IncrementReceiptCollisionRetries()
			c.logger.WarnContext(ctx, "receipt number collision, retrying",
				"registration_id", r.RegistrationID,
				"receipt_no", receiptNo,
				"attempt", attempt+1,
			)
			receiptNo, err = c.receipts.Independent(ctx)
			if err != nil {
				c.metrics.ObserveReconciliation("failed")
				return Result{}, err
			}

		case errors.Is(err, sentinel.ErrNotFound):
			return Result{}, derrors.New(derrors.CodeNotFound, "registration not found")

		default:
			c.metrics.ObserveReconciliation("failed")
			return Result{}, derrors.Wrap(err, derrors.CodeInternal, "paid transition write failed")
		}
	}

	c.metrics.ObserveReconciliation("failed")
	return Result{}, derrors.Newf(derrors.CodeReconciliationFailed,
		"could not assign a unique receipt number after %d attempts", maxReceiptAttempts)
}

func paidResult(r *models.Registration) Result {
	return Result{
		RegistrationID: r.RegistrationID,
		Status:         "paid",
		ReceiptNo:      r.ReceiptNo,
		OrderID:        r.OrderID,
		PaymentID:      r.PaymentID,
	}
}

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return derrors.New(derrors.CodeNotFound, "registration not found")
	case errors.Is(err, sentinel.ErrConflict):
		return derrors.New(derrors.CodeConflict, "receipt number already in use")
	default:
		return derrors.Wrap(err, derrors.CodeInternal, "registration store failure")
	}
}
