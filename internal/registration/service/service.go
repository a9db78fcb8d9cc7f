// Package service orchestrates registration lifecycle operations on top of
// the store, the sequence allocator and the identifier codec.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"examreg/internal/platform/metrics"
	"examreg/internal/registration/identifier"
	"examreg/internal/registration/models"
	"examreg/internal/registration/receipt"
	"examreg/internal/registration/store"
	"examreg/internal/sequence"
	"examreg/pkg/derrors"
	"examreg/pkg/requestcontext"
	"examreg/pkg/sentinel"
)

// OfferTagFeeWaived marks registrations recorded under the free offer.
const OfferTagFeeWaived = "limited_time_free"

// PaidMarker is the coordinator's shared terminal-transition routine. Admin
// edits that flip a registration to paid route through it so the identifier
// recode and receipt assignment happen in exactly one place.
type PaidMarker interface {
	MarkPaidManually(ctx context.Context, key uuid.UUID, paymentID, orderID string) error
}

// Fees maps exam types to registration fees in paise.
type Fees struct {
	Foundation int64
	Regular    int64
}

func (f Fees) For(examType identifier.ExamType) int64 {
	if examType == identifier.ExamTypeFoundation {
		return f.Foundation
	}
	return f.Regular
}

// Service exposes registration lifecycle operations.
type Service struct {
	registrations store.Store
	allocator     *sequence.Allocator
	receipts      *receipt.Generator
	paidMarker    PaidMarker
	fees          Fees
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func New(
	registrations store.Store,
	allocator *sequence.Allocator,
	receipts *receipt.Generator,
	fees Fees,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		registrations: registrations,
		allocator:     allocator,
		receipts:      receipts,
		fees:          fees,
		metrics:       m,
		logger:        logger,
	}
}

// SetPaidMarker wires the reconciliation coordinator in after construction;
// the coordinator itself depends on the registration store, so the two are
// linked post-hoc in main.
func (s *Service) SetPaidMarker(pm PaidMarker) {
	s.paidMarker = pm
}

// CreateDraft allocates an identifier and persists a new registration. The
// fee-waived path creates the registration already terminal with a receipt
// number assigned up front.
func (s *Service) CreateDraft(ctx context.Context, in models.DraftInput) (*models.Registration, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	seq, err := s.allocator.Next(ctx, sequence.CounterRegistrationID)
	if err != nil {
		return nil, err
	}

	status := identifier.StatusDraft
	if in.FeeWaived {
		status = identifier.StatusCompleted
	}
	regID := identifier.Encode(in.ExamType, status, seq)

	r := models.NewDraft(uuid.New(), regID, in, s.fees.For(in.ExamType), requestcontext.Now(ctx))
	if in.FeeWaived {
		r.Status = identifier.StatusCompleted
		r.PaymentStatus = models.PaymentStatusWaived
		r.OfferTag = OfferTagFeeWaived
		receiptNo, err := s.receipts.Independent(ctx)
		if err != nil {
			return nil, err
		}
		r.ReceiptNo = receiptNo
	}

	if err := s.registrations.Create(ctx, r); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to create registration")
	}

	s.metrics.IncrementDraftsCreated()
	s.logger.InfoContext(ctx, "registration created",
		"registration_id", r.RegistrationID,
		"exam_type", r.ExamType,
		"fee_waived", in.FeeWaived,
	)
	return r, nil
}

func (s *Service) Get(ctx context.Context, key uuid.UUID) (*models.Registration, error) {
	r, err := s.registrations.FindByKey(ctx, key)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return r, nil
}

// ApplyEdit applies an allowlisted partial update. A patch requesting the
// paid/completed state is routed through the coordinator's mark-paid routine
// instead of being written blindly.
func (s *Service) ApplyEdit(ctx context.Context, key uuid.UUID, patch models.Patch) (*models.Registration, error) {
	r, err := s.registrations.FindByKey(ctx, key)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	patch.Apply(r, requestcontext.Now(ctx))
	if err := s.registrations.Update(ctx, r); err != nil {
		return nil, translateStoreErr(err)
	}

	if patch.RequestsPaid() && !r.IsPaid() {
		if s.paidMarker == nil {
			return nil, derrors.New(derrors.CodeInternal, "paid transitions unavailable")
		}
		var paymentID, orderID string
		if patch.PaymentID != nil {
			paymentID = *patch.PaymentID
		}
		if patch.OrderID != nil {
			orderID = *patch.OrderID
		}
		if err := s.paidMarker.MarkPaidManually(ctx, key, paymentID, orderID); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, key)
}

// Delete removes a registration. Paid or completed registrations are
// refused unless force is set; the legacy system deleted unconditionally,
// which looked unintended (see DESIGN.md).
func (s *Service) Delete(ctx context.Context, key uuid.UUID, force bool) error {
	r, err := s.registrations.FindByKey(ctx, key)
	if err != nil {
		return translateStoreErr(err)
	}
	if r.IsTerminal() && !force {
		return derrors.New(derrors.CodeConflict, "refusing to delete a completed registration without force")
	}
	if err := s.registrations.Delete(ctx, key); err != nil {
		return translateStoreErr(err)
	}
	s.logger.InfoContext(ctx, "registration deleted",
		"registration_id", r.RegistrationID,
		"forced", force,
		"admin_id", requestcontext.AdminID(ctx),
	)
	return nil
}

func (s *Service) List(ctx context.Context, q store.Query) ([]*models.Registration, int, error) {
	rs, total, err := s.registrations.List(ctx, q)
	if err != nil {
		return nil, 0, derrors.Wrap(err, derrors.CodeInternal, "failed to list registrations")
	}
	return rs, total, nil
}

func (s *Service) ExamDates(ctx context.Context) ([]string, error) {
	dates, err := s.registrations.DistinctExamDates(ctx)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list exam dates")
	}
	return dates, nil
}

// ResetReceipts clears every assigned receipt number and winds the receipt
// counter back to zero. Administrative recovery for renumbering; paid
// registrations get fresh numbers on their next reconciliation.
func (s *Service) ResetReceipts(ctx context.Context) (int64, error) {
	cleared, err := s.registrations.ClearReceiptNumbers(ctx)
	if err != nil {
		return 0, derrors.Wrap(err, derrors.CodeInternal, "failed to clear receipt numbers")
	}
	if err := s.allocator.Reset(ctx, sequence.CounterReceiptNumber, 0); err != nil {
		return cleared, err
	}
	s.logger.WarnContext(ctx, "receipt numbers reset",
		"cleared", cleared,
		"admin_id", requestcontext.AdminID(ctx),
	)
	return cleared, nil
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
