package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"examreg/internal/registration/identifier"
	"examreg/internal/registration/models"
	"examreg/pkg/sentinel"
)

// InMemory keeps registrations in process memory with the same atomicity
// guarantees as the durable store: the mutex makes MarkPaid's check-and-write
// indivisible, and the receipt index enforces uniqueness.
type InMemory struct {
	mu            sync.RWMutex
	registrations map[uuid.UUID]*models.Registration
	receipts      map[string]uuid.UUID
}

func NewInMemory() *InMemory {
	return &InMemory{
		registrations: make(map[uuid.UUID]*models.Registration),
		receipts:      make(map[string]uuid.UUID),
	}
}

func (s *InMemory) Create(_ context.Context, r *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ReceiptNo != "" {
		if _, taken := s.receipts[r.ReceiptNo]; taken {
			return sentinel.ErrConflict
		}
		s.receipts[r.ReceiptNo] = r.Key
	}
	clone := *r
	s.registrations[r.Key] = &clone
	return nil
}

func (s *InMemory) FindByKey(_ context.Context, key uuid.UUID) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registrations[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (s *InMemory) FindByOrderID(_ context.Context, orderID string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if orderID == "" {
		return nil, sentinel.ErrNotFound
	}
	for _, r := range s.registrations {
		if r.OrderID == orderID {
			clone := *r
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Update writes the editable fields only; the state-machine fields stay
// whatever the stored row holds, so a stale read cannot revert a concurrent
// paid transition. Payment status is never written over a paid row.
func (s *InMemory) Update(_ context.Context, r *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.registrations[r.Key]
	if !ok {
		return sentinel.ErrNotFound
	}
	clone := *existing
	clone.StudentName = r.StudentName
	clone.CurrentClass = r.CurrentClass
	clone.SchoolName = r.SchoolName
	clone.ParentMobile = r.ParentMobile
	clone.Email = r.Email
	clone.ExamDate = r.ExamDate
	clone.ReferralSource = r.ReferralSource
	clone.OrderID = r.OrderID
	clone.PaymentID = r.PaymentID
	clone.OfferTag = r.OfferTag
	clone.UpdatedAt = r.UpdatedAt
	if clone.PaymentStatus != models.PaymentStatusPaid {
		clone.PaymentStatus = r.PaymentStatus
	}
	s.registrations[r.Key] = &clone
	return nil
}

func (s *InMemory) Delete(_ context.Context, key uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registrations[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.receipts, r.ReceiptNo)
	delete(s.registrations, key)
	return nil
}

func (s *InMemory) List(_ context.Context, q Query) ([]*models.Registration, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Registration, 0, len(s.registrations))
	for _, r := range s.registrations {
		if matches(r, q) {
			clone := *r
			matched = append(matched, &clone)
		}
	}

	sortRegistrations(matched, q.SortBy, q.SortDesc)

	total := len(matched)
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	start := (page - 1) * limit
	if start >= total {
		return []*models.Registration{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *InMemory) DistinctExamDates(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	dates := make([]string, 0)
	for _, r := range s.registrations {
		if r.ExamDate != "" && !seen[r.ExamDate] {
			seen[r.ExamDate] = true
			dates = append(dates, r.ExamDate)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

func (s *InMemory) ListPendingWithOrders(_ context.Context) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending := make([]*models.Registration, 0)
	for _, r := range s.registrations {
		if !r.IsPaid() && r.PaymentStatus != models.PaymentStatusWaived && r.OrderID != "" {
			clone := *r
			pending = append(pending, &clone)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

func (s *InMemory) MarkPaid(_ context.Context, key uuid.UUID, upd PaidUpdate) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registrations[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if r.PaymentStatus == models.PaymentStatusPaid || r.PaymentStatus == models.PaymentStatusWaived {
		return nil, sentinel.ErrInvalidState
	}
	if r.ReceiptNo == "" && upd.ReceiptNo != "" {
		if owner, taken := s.receipts[upd.ReceiptNo]; taken && owner != key {
			return nil, sentinel.ErrConflict
		}
	}

	clone := *r
	clone.Status = identifier.StatusCompleted
	clone.PaymentStatus = models.PaymentStatusPaid
	if upd.RegistrationID != "" {
		clone.RegistrationID = upd.RegistrationID
	}
	if clone.ReceiptNo == "" && upd.ReceiptNo != "" {
		clone.ReceiptNo = upd.ReceiptNo
		s.receipts[upd.ReceiptNo] = key
	}
	if upd.PaymentID != "" {
		clone.PaymentID = upd.PaymentID
	}
	if upd.OrderID != "" {
		clone.OrderID = upd.OrderID
	}
	if upd.Signature != "" {
		clone.Signature = upd.Signature
	}
	clone.UpdatedAt = upd.Now

	s.registrations[key] = &clone
	result := clone
	return &result, nil
}

func (s *InMemory) ClearReceiptNumbers(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cleared int64
	for key, r := range s.registrations {
		if r.ReceiptNo != "" {
			clone := *r
			clone.ReceiptNo = ""
			s.registrations[key] = &clone
			cleared++
		}
	}
	s.receipts = make(map[string]uuid.UUID)
	return cleared, nil
}

func matches(r *models.Registration, q Query) bool {
	if q.Class != "" && r.CurrentClass != q.Class {
		return false
	}
	if q.ExamDate != "" && r.ExamDate != q.ExamDate {
		return false
	}
	if q.Status != "" && string(r.Status) != q.Status {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		haystacks := []string{r.StudentName, r.ParentMobile, r.SchoolName, r.Email}
		found := false
		for _, h := range haystacks {
			if strings.Contains(strings.ToLower(h), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortRegistrations(rs []*models.Registration, sortBy string, desc bool) {
	less := func(a, b *models.Registration) bool {
		switch sortBy {
		case "studentName":
			return a.StudentName < b.StudentName
		case "examDate":
			return a.ExamDate < b.ExamDate
		case "registrationId":
			return a.RegistrationID < b.RegistrationID
		case "updatedAt":
			return a.UpdatedAt.Before(b.UpdatedAt)
		default: // createdAt
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if desc {
			return less(rs[j], rs[i])
		}
		return less(rs[i], rs[j])
	})
}
