package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"examreg/internal/registration/identifier"
	"examreg/pkg/derrors"
)

// PaymentStatus tracks the money side of a registration. It is correlated
// with the lifecycle status but stored independently; the reconciliation
// coordinator keeps the pair consistent.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
	PaymentStatusWaived  PaymentStatus = "waived"
)

// Registration is the authoritative record for one exam registration.
//
// Invariants:
//   - Key is assigned at creation and immutable
//   - The identifier's sequence segment never changes; only its status letter
//     may be rewritten (draft -> completed)
//   - Status moves draft -> completed only, never backwards
//   - ReceiptNo, once non-empty, never changes and is unique across all
//     registrations (sparse unique index: absent values don't collide)
//   - OrderID/PaymentID/Signature are populated from the gateway, never
//     invented locally
type Registration struct {
	Key            uuid.UUID           `json:"key"`
	RegistrationID string              `json:"registrationId"`
	Status         identifier.Status   `json:"status"`
	PaymentStatus  PaymentStatus       `json:"paymentStatus"`
	ExamType       identifier.ExamType `json:"examType"`

	StudentName    string `json:"studentName"`
	CurrentClass   string `json:"currentClass"`
	SchoolName     string `json:"schoolName"`
	ParentMobile   string `json:"parentMobile"`
	Email          string `json:"email,omitempty"`
	ExamDate       string `json:"examDate"`
	ReferralSource string `json:"referralSource,omitempty"`

	OrderID   string `json:"orderId,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
	Signature string `json:"signature,omitempty"`
	ReceiptNo string `json:"receiptNo,omitempty"`

	RegistrationAmount int64  `json:"registrationAmount"`
	OfferTag           string `json:"offerTag,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *Registration) IsPaid() bool {
	return r.PaymentStatus == PaymentStatusPaid
}

// IsTerminal reports whether the registration reached its terminal state,
// either by payment or by fee waiver.
func (r *Registration) IsTerminal() bool {
	return r.Status == identifier.StatusCompleted
}

// DraftInput carries the registrant-supplied fields for a new draft.
type DraftInput struct {
	StudentName    string
	CurrentClass   string
	SchoolName     string
	ParentMobile   string
	Email          string
	ExamDate       string
	ExamType       identifier.ExamType
	ReferralSource string
	// FeeWaived records the registration under a free offer: terminal at
	// creation, no gateway involvement.
	FeeWaived bool
}

// Validate checks the required fields. Email and referral are optional.
func (in *DraftInput) Validate() error {
	missing := make([]string, 0, 6)
	for _, f := range []struct{ name, value string }{
		{"studentName", in.StudentName},
		{"currentClass", in.CurrentClass},
		{"schoolName", in.SchoolName},
		{"parentMobile", in.ParentMobile},
		{"examDate", in.ExamDate},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if in.ExamType != identifier.ExamTypeFoundation && in.ExamType != identifier.ExamTypeRegular {
		missing = append(missing, "examType")
	}
	if len(missing) > 0 {
		return derrors.Newf(derrors.CodeBadRequest, "missing or invalid fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// NewDraft builds a draft registration from validated input. The caller
// supplies the already-encoded identifier and the fee for the exam type.
func NewDraft(key uuid.UUID, registrationID string, in DraftInput, amount int64, now time.Time) *Registration {
	return &Registration{
		Key:                key,
		RegistrationID:     registrationID,
		Status:             identifier.StatusDraft,
		PaymentStatus:      PaymentStatusPending,
		ExamType:           in.ExamType,
		StudentName:        strings.TrimSpace(in.StudentName),
		CurrentClass:       strings.TrimSpace(in.CurrentClass),
		SchoolName:         strings.TrimSpace(in.SchoolName),
		ParentMobile:       strings.TrimSpace(in.ParentMobile),
		Email:              strings.TrimSpace(in.Email),
		ExamDate:           strings.TrimSpace(in.ExamDate),
		ReferralSource:     strings.TrimSpace(in.ReferralSource),
		RegistrationAmount: amount,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Patch is a partial update. Nil fields are left untouched. Only fields
// present here are editable at all; anything else a caller submits is dropped
// before a Patch is ever built.
type Patch struct {
	StudentName    *string
	CurrentClass   *string
	SchoolName     *string
	ParentMobile   *string
	Email          *string
	ExamDate       *string
	ReferralSource *string

	// Administrative fields. Setting PaymentStatus to paid (or Status to
	// completed) is not applied here; the service routes that through the
	// reconciliation coordinator's mark-paid path instead.
	Status        *identifier.Status
	PaymentStatus *PaymentStatus
	OrderID       *string
	PaymentID     *string
}

// RequestsPaid reports whether the patch asks for the terminal paid state.
func (p *Patch) RequestsPaid() bool {
	if p.PaymentStatus != nil && *p.PaymentStatus == PaymentStatusPaid {
		return true
	}
	if p.Status != nil && *p.Status == identifier.StatusCompleted {
		return true
	}
	return false
}

// Apply writes the patch onto the registration, excluding the paid
// transition, and bumps UpdatedAt.
func (p *Patch) Apply(r *Registration, now time.Time) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&r.StudentName, p.StudentName)
	set(&r.CurrentClass, p.CurrentClass)
	set(&r.SchoolName, p.SchoolName)
	set(&r.ParentMobile, p.ParentMobile)
	set(&r.Email, p.Email)
	set(&r.ExamDate, p.ExamDate)
	set(&r.ReferralSource, p.ReferralSource)
	set(&r.OrderID, p.OrderID)
	set(&r.PaymentID, p.PaymentID)

	// Paid is terminal in both directions: a patch neither sets it (the
	// coordinator does) nor unsets it.
	if p.PaymentStatus != nil && *p.PaymentStatus != PaymentStatusPaid && r.PaymentStatus != PaymentStatusPaid {
		r.PaymentStatus = *p.PaymentStatus
	}
	r.UpdatedAt = now
}
