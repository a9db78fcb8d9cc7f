package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"examreg/internal/registration/models"
	"examreg/internal/registration/receipt"
	"examreg/internal/registration/service"
	"examreg/internal/registration/store"
	"examreg/internal/sequence"
	"examreg/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite

	registrations *store.InMemory
	router        chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.registrations = store.NewInMemory()
	allocator := sequence.NewAllocator(sequence.NewInMemory())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(
		s.registrations,
		allocator,
		receipt.NewGenerator(allocator),
		service.Fees{Foundation: 50000, Regular: 60000},
		nil,
		logger,
	)

	h := New(svc, logger)
	s.router = chi.NewRouter()
	s.router.Route("/api", h.RegisterPublic)
	s.router.Route("/api/admin", h.RegisterAdmin)
}

func draftBody() map[string]any {
	return map[string]any{
		"studentName":  "Meera Nair",
		"currentClass": "8",
		"schoolName":   "Hill View School",
		"parentMobile": "9876543210",
		"examDate":     "2026-01-11",
		"examType":     "foundation",
	}
}

func (s *HandlerSuite) createDraft() *models.Registration {
	s.T().Helper()
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/registrations", draftBody())
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[models.Registration](s.T(), rr)
}

func (s *HandlerSuite) TestCreateDraft() {
	reg := s.createDraft()
	s.Equal("BTNM-F-D-00001", reg.RegistrationID)
	s.Equal(models.PaymentStatusPending, reg.PaymentStatus)
	s.NotEqual(reg.Key.String(), "00000000-0000-0000-0000-000000000000")
}

func (s *HandlerSuite) TestCreateDraftValidation() {
	body := draftBody()
	body["studentName"] = ""
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/registrations", body)
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Contains(rr.Body.String(), "studentName")
}

func (s *HandlerSuite) TestCreateDraftMalformedBody() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/registrations", "{not json")
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *HandlerSuite) TestGet() {
	reg := s.createDraft()

	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/registrations/"+reg.Key.String(), nil)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code)
	got := testutil.UnmarshalResponse[models.Registration](s.T(), rr)
	s.Equal(reg.RegistrationID, got.RegistrationID)
}

func (s *HandlerSuite) TestGetUnknownKey() {
	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/registrations/6b1e8cfe-0000-4000-8000-000000000000", nil)
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusNotFound, rr.Code)
}

func (s *HandlerSuite) TestGetBadKey() {
	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/registrations/not-a-uuid", nil)
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusBadRequest, rr.Code)
}

type listResp struct {
	Registrations []*models.Registration `json:"registrations"`
	Total         int                    `json:"total"`
	Page          int                    `json:"page"`
	Limit         int                    `json:"limit"`
}

func (s *HandlerSuite) TestListFiltersAndPages() {
	for i := 0; i < 3; i++ {
		body := draftBody()
		body["studentName"] = fmt.Sprintf("Student %d", i)
		if i == 2 {
			body["currentClass"] = "9"
		}
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/registrations", body)
		rr := testutil.DoRequest(s.router, req)
		s.Require().Equal(http.StatusCreated, rr.Code)
	}

	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/admin/registrations?class=8&limit=1&page=2", nil)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code)
	got := testutil.UnmarshalResponse[listResp](s.T(), rr)
	s.Equal(2, got.Total)
	s.Len(got.Registrations, 1)
	s.Equal(2, got.Page)
}

func (s *HandlerSuite) TestPatch() {
	reg := s.createDraft()

	req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/api/admin/registrations/"+reg.Key.String(), map[string]any{
		"studentName": "Meera N Nair",
		"email":       "meera@example.com",
	})
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	got := testutil.UnmarshalResponse[models.Registration](s.T(), rr)
	s.Equal("Meera N Nair", got.StudentName)
	s.Equal("meera@example.com", got.Email)
}

func (s *HandlerSuite) TestPatchRejectsUnknownPaymentStatus() {
	reg := s.createDraft()

	req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/api/admin/registrations/"+reg.Key.String(), map[string]any{
		"paymentStatus": "refunded",
	})
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *HandlerSuite) TestDelete() {
	reg := s.createDraft()

	req := testutil.NewJSONRequest(s.T(), http.MethodDelete, "/api/admin/registrations/"+reg.Key.String(), nil)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusNoContent, rr.Code)

	req = testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/registrations/"+reg.Key.String(), nil)
	rr = testutil.DoRequest(s.router, req)
	s.Equal(http.StatusNotFound, rr.Code)
}

func (s *HandlerSuite) TestDeleteCompletedNeedsForce() {
	body := draftBody()
	body["feeWaived"] = true
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/registrations", body)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code)
	reg := testutil.UnmarshalResponse[models.Registration](s.T(), rr)

	req = testutil.NewJSONRequest(s.T(), http.MethodDelete, "/api/admin/registrations/"+reg.Key.String(), nil)
	rr = testutil.DoRequest(s.router, req)
	s.Equal(http.StatusConflict, rr.Code)

	req = testutil.NewJSONRequest(s.T(), http.MethodDelete, "/api/admin/registrations/"+reg.Key.String()+"?force=true", nil)
	rr = testutil.DoRequest(s.router, req)
	s.Equal(http.StatusNoContent, rr.Code)
}

func (s *HandlerSuite) TestExamDates() {
	s.createDraft()
	body := draftBody()
	body["examDate"] = "2026-02-08"
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/registrations", body)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code)

	req = testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/admin/exam-dates", nil)
	rr = testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code)
	got := testutil.UnmarshalResponse[map[string][]string](s.T(), rr)
	s.Equal([]string{"2026-01-11", "2026-02-08"}, (*got)["examDates"])
}

func (s *HandlerSuite) TestResetReceipts() {
	body := draftBody()
	body["feeWaived"] = true
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/registrations", body)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code)

	req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/admin/receipts/reset", nil)
	rr = testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code)
	got := testutil.UnmarshalResponse[map[string]int64](s.T(), rr)
	s.Equal(int64(1), (*got)["cleared"])

	regs, _, err := s.registrations.List(context.Background(), store.Query{})
	s.Require().NoError(err)
	for _, r := range regs {
		s.Empty(r.ReceiptNo)
	}
}
