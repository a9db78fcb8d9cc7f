package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"examreg/internal/registration/identifier"
	"examreg/internal/registration/models"
	"examreg/internal/registration/receipt"
	"examreg/internal/registration/store"
	"examreg/internal/sequence"
	"examreg/pkg/derrors"
)

// stubPaidMarker records mark-paid routing and applies the terminal write
// through the store so the service's re-read sees the transition.
type stubPaidMarker struct {
	store *store.InMemory
	calls []uuid.UUID
	err   error
}

func (m *stubPaidMarker) MarkPaidManually(ctx context.Context, key uuid.UUID, paymentID, orderID string) error {
	m.calls = append(m.calls, key)
	if m.err != nil {
		return m.err
	}
	_, err := m.store.MarkPaid(ctx, key, store.PaidUpdate{
		ReceiptNo: "btnmrzp0099",
		PaymentID: paymentID,
		OrderID:   orderID,
		Now:       time.Now(),
	})
	return err
}

type ServiceSuite struct {
	suite.Suite

	registrations *store.InMemory
	paidMarker    *stubPaidMarker
	service       *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.registrations = store.NewInMemory()
	s.paidMarker = &stubPaidMarker{store: s.registrations}
	allocator := sequence.NewAllocator(sequence.NewInMemory())
	s.service = New(
		s.registrations,
		allocator,
		receipt.NewGenerator(allocator),
		Fees{Foundation: 50000, Regular: 60000},
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	s.service.SetPaidMarker(s.paidMarker)
}

func validInput() models.DraftInput {
	return models.DraftInput{
		StudentName:  "Ravi Kumar",
		CurrentClass: "9",
		SchoolName:   "Model School",
		ParentMobile: "9876543210",
		ExamDate:     "2026-01-11",
		ExamType:     identifier.ExamTypeFoundation,
	}
}

func (s *ServiceSuite) TestCreateDraft() {
	r, err := s.service.CreateDraft(context.Background(), validInput())
	s.Require().NoError(err)

	s.Equal("BTNM-F-D-00001", r.RegistrationID)
	s.Equal(identifier.StatusDraft, r.Status)
	s.Equal(models.PaymentStatusPending, r.PaymentStatus)
	s.Equal(int64(50000), r.RegistrationAmount)
	s.Empty(r.ReceiptNo)

	stored, err := s.registrations.FindByKey(context.Background(), r.Key)
	s.Require().NoError(err)
	s.Equal(r.RegistrationID, stored.RegistrationID)
}

func (s *ServiceSuite) TestCreateDraftSequencesIdentifiers() {
	ctx := context.Background()
	first, err := s.service.CreateDraft(ctx, validInput())
	s.Require().NoError(err)

	in := validInput()
	in.ExamType = identifier.ExamTypeRegular
	second, err := s.service.CreateDraft(ctx, in)
	s.Require().NoError(err)

	s.Equal("BTNM-F-D-00001", first.RegistrationID)
	s.Equal("BTNM-C-D-00002", second.RegistrationID)
	s.Equal(int64(60000), second.RegistrationAmount)
}

func (s *ServiceSuite) TestCreateDraftRejectsMissingFields() {
	in := validInput()
	in.StudentName = "  "
	in.ExamDate = ""

	_, err := s.service.CreateDraft(context.Background(), in)
	s.Require().Error(err)
	s.True(derrors.HasCode(err, derrors.CodeBadRequest))
	s.Contains(err.Error(), "studentName")
	s.Contains(err.Error(), "examDate")
}

func (s *ServiceSuite) TestCreateDraftFeeWaived() {
	in := validInput()
	in.FeeWaived = true

	r, err := s.service.CreateDraft(context.Background(), in)
	s.Require().NoError(err)

	s.Equal("BTNM-F-C-00001", r.RegistrationID)
	s.Equal(identifier.StatusCompleted, r.Status)
	s.Equal(models.PaymentStatusWaived, r.PaymentStatus)
	s.Equal(OfferTagFeeWaived, r.OfferTag)
	s.Equal("btnmrzp0001", r.ReceiptNo)
}

func (s *ServiceSuite) TestApplyEditUpdatesAllowlistedFields() {
	ctx := context.Background()
	r, err := s.service.CreateDraft(ctx, validInput())
	s.Require().NoError(err)

	name := "Ravi K Kumar"
	email := "ravi@example.com"
	updated, err := s.service.ApplyEdit(ctx, r.Key, models.Patch{
		StudentName: &name,
		Email:       &email,
	})
	s.Require().NoError(err)
	s.Equal(name, updated.StudentName)
	s.Equal(email, updated.Email)
	s.Empty(s.paidMarker.calls, "a plain edit must not touch the paid path")
}

func (s *ServiceSuite) TestApplyEditRoutesPaidThroughMarker() {
	ctx := context.Background()
	r, err := s.service.CreateDraft(ctx, validInput())
	s.Require().NoError(err)

	paid := models.PaymentStatusPaid
	paymentID := "pay_manual"
	updated, err := s.service.ApplyEdit(ctx, r.Key, models.Patch{
		PaymentStatus: &paid,
		PaymentID:     &paymentID,
	})
	s.Require().NoError(err)
	s.Equal([]uuid.UUID{r.Key}, s.paidMarker.calls)
	s.True(updated.IsPaid())
}

func (s *ServiceSuite) TestApplyEditCannotDowngradePaid() {
	ctx := context.Background()
	r, err := s.service.CreateDraft(ctx, validInput())
	s.Require().NoError(err)

	_, err = s.registrations.MarkPaid(ctx, r.Key, store.PaidUpdate{
		ReceiptNo: "btnmrzp0042",
		PaymentID: "pay_42",
		Now:       time.Now(),
	})
	s.Require().NoError(err)

	pending := models.PaymentStatusPending
	updated, err := s.service.ApplyEdit(ctx, r.Key, models.Patch{PaymentStatus: &pending})
	s.Require().NoError(err)
	s.True(updated.IsPaid(), "paid must never be downgraded by an edit")
	s.Equal("btnmrzp0042", updated.ReceiptNo)
}

// racingStore injects a successful terminal transition between a caller's
// read and its write, simulating a reconciliation trigger landing mid-edit.
type racingStore struct {
	store.Store
	raced bool
}

func (rs *racingStore) FindByKey(ctx context.Context, key uuid.UUID) (*models.Registration, error) {
	r, err := rs.Store.FindByKey(ctx, key)
	if err != nil || rs.raced {
		return r, err
	}
	rs.raced = true
	if _, err := rs.Store.MarkPaid(ctx, key, store.PaidUpdate{
		RegistrationID: "BTNM-F-C-00001",
		ReceiptNo:      "btnmrzp0077",
		PaymentID:      "pay_race",
		Now:            time.Now(),
	}); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ServiceSuite) TestApplyEditDoesNotRevertConcurrentPaid() {
	ctx := context.Background()
	r, err := s.service.CreateDraft(ctx, validInput())
	s.Require().NoError(err)

	racing := &racingStore{Store: s.registrations}
	allocator := sequence.NewAllocator(sequence.NewInMemory())
	svc := New(
		racing,
		allocator,
		receipt.NewGenerator(allocator),
		Fees{Foundation: 50000, Regular: 60000},
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	name := "Ravi K Kumar"
	updated, err := svc.ApplyEdit(ctx, r.Key, models.Patch{StudentName: &name})
	s.Require().NoError(err)
	s.True(updated.IsPaid(), "paid transition must survive a concurrent edit")
	s.Equal("btnmrzp0077", updated.ReceiptNo)
	s.Equal("BTNM-F-C-00001", updated.RegistrationID)
	s.Equal(name, updated.StudentName, "the edit itself must still apply")
}

func (s *ServiceSuite) TestApplyEditNotFound() {
	_, err := s.service.ApplyEdit(context.Background(), uuid.New(), models.Patch{})
	s.Require().Error(err)
	s.True(derrors.HasCode(err, derrors.CodeNotFound))
}

func (s *ServiceSuite) TestDeleteDraft() {
	ctx := context.Background()
	r, err := s.service.CreateDraft(ctx, validInput())
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(ctx, r.Key, false))
	_, err = s.service.Get(ctx, r.Key)
	s.True(derrors.HasCode(err, derrors.CodeNotFound))
}

func (s *ServiceSuite) TestDeleteCompletedRequiresForce() {
	ctx := context.Background()
	in := validInput()
	in.FeeWaived = true
	r, err := s.service.CreateDraft(ctx, in)
	s.Require().NoError(err)

	err = s.service.Delete(ctx, r.Key, false)
	s.Require().Error(err)
	s.True(derrors.HasCode(err, derrors.CodeConflict))

	s.Require().NoError(s.service.Delete(ctx, r.Key, true))
	_, err = s.service.Get(ctx, r.Key)
	s.True(derrors.HasCode(err, derrors.CodeNotFound))
}

func (s *ServiceSuite) TestResetReceipts() {
	ctx := context.Background()
	in := validInput()
	in.FeeWaived = true
	r, err := s.service.CreateDraft(ctx, in)
	s.Require().NoError(err)
	s.Equal("btnmrzp0001", r.ReceiptNo)

	cleared, err := s.service.ResetReceipts(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), cleared)

	stored, err := s.service.Get(ctx, r.Key)
	s.Require().NoError(err)
	s.Empty(stored.ReceiptNo)

	in2 := validInput()
	in2.FeeWaived = true
	next, err := s.service.CreateDraft(ctx, in2)
	s.Require().NoError(err)
	s.Equal("btnmrzp0001", next.ReceiptNo, "counter must restart after a reset")
}
