// Package handler exposes the registration lifecycle over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"examreg/internal/registration/identifier"
	"examreg/internal/registration/models"
	"examreg/internal/registration/service"
	"examreg/internal/registration/store"
	"examreg/pkg/derrors"
	"examreg/pkg/httputil"
)

type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// RegisterPublic mounts the registrant-facing routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/registrations", h.createDraft)
	r.Get("/registrations/{key}", h.get)
}

// RegisterAdmin mounts the admin routes; the caller wraps them in auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/registrations", h.list)
	r.Patch("/registrations/{key}", h.patch)
	r.Delete("/registrations/{key}", h.delete)
	r.Get("/exam-dates", h.examDates)
	r.Post("/receipts/reset", h.resetReceipts)
}

type draftRequest struct {
	StudentName    string `json:"studentName"`
	CurrentClass   string `json:"currentClass"`
	SchoolName     string `json:"schoolName"`
	ParentMobile   string `json:"parentMobile"`
	Email          string `json:"email"`
	ExamDate       string `json:"examDate"`
	ExamType       string `json:"examType"`
	ReferralSource string `json:"referralSource"`
	FeeWaived      bool   `json:"feeWaived"`
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "malformed request body"))
		return
	}

	reg, err := h.service.CreateDraft(r.Context(), models.DraftInput{
		StudentName:    req.StudentName,
		CurrentClass:   req.CurrentClass,
		SchoolName:     req.SchoolName,
		ParentMobile:   req.ParentMobile,
		Email:          req.Email,
		ExamDate:       req.ExamDate,
		ExamType:       identifier.ExamType(req.ExamType),
		ReferralSource: req.ReferralSource,
		FeeWaived:      req.FeeWaived,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, reg)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reg, err := h.service.Get(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reg)
}

type listResponse struct {
	Registrations []*models.Registration `json:"registrations"`
	Total         int                    `json:"total"`
	Page          int                    `json:"page"`
	Limit         int                    `json:"limit"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := store.Query{
		Class:    r.URL.Query().Get("class"),
		ExamDate: r.URL.Query().Get("examDate"),
		Status:   r.URL.Query().Get("status"),
		Search:   r.URL.Query().Get("search"),
		SortBy:   r.URL.Query().Get("sortBy"),
		SortDesc: r.URL.Query().Get("sortOrder") == "desc",
	}
	q.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 10
	}

	regs, total, err := h.service.List(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{
		Registrations: regs,
		Total:         total,
		Page:          q.Page,
		Limit:         q.Limit,
	})
}

type patchRequest struct {
	StudentName    *string `json:"studentName"`
	CurrentClass   *string `json:"currentClass"`
	SchoolName     *string `json:"schoolName"`
	ParentMobile   *string `json:"parentMobile"`
	Email          *string `json:"email"`
	ExamDate       *string `json:"examDate"`
	ReferralSource *string `json:"referralSource"`
	Status         *string `json:"status"`
	PaymentStatus  *string `json:"paymentStatus"`
	OrderID        *string `json:"orderId"`
	PaymentID      *string `json:"paymentId"`
}

// toPatch narrows the request to the editable fields. Anything the request
// carries beyond these fields never reaches the service.
func (req *patchRequest) toPatch() (models.Patch, error) {
	p := models.Patch{
		StudentName:    req.StudentName,
		CurrentClass:   req.CurrentClass,
		SchoolName:     req.SchoolName,
		ParentMobile:   req.ParentMobile,
		Email:          req.Email,
		ExamDate:       req.ExamDate,
		ReferralSource: req.ReferralSource,
		OrderID:        req.OrderID,
		PaymentID:      req.PaymentID,
	}
	if req.Status != nil {
		st := identifier.Status(*req.Status)
		if st != identifier.StatusDraft && st != identifier.StatusCompleted {
			return models.Patch{}, derrors.Newf(derrors.CodeBadRequest, "unknown status %q", *req.Status)
		}
		p.Status = &st
	}
	if req.PaymentStatus != nil {
		ps := models.PaymentStatus(*req.PaymentStatus)
		switch ps {
		case models.PaymentStatusPending, models.PaymentStatusPaid, models.PaymentStatusFailed, models.PaymentStatusWaived:
			p.PaymentStatus = &ps
		default:
			return models.Patch{}, derrors.Newf(derrors.CodeBadRequest, "unknown payment status %q", *req.PaymentStatus)
		}
	}
	return p, nil
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeBadRequest, "malformed request body"))
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	reg, err := h.service.ApplyEdit(r.Context(), key, patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	if err := h.service.Delete(r.Context(), key, force); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) examDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.service.ExamDates(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"examDates": dates})
}

func (h *Handler) resetReceipts(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.service.ResetReceipts(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"cleared": cleared})
}

func parseKey(r *http.Request) (uuid.UUID, error) {
	key, err := uuid.Parse(chi.URLParam(r, "key"))
	if err != nil {
		return uuid.Nil, derrors.New(derrors.CodeBadRequest, "invalid registration key")
	}
	return key, nil
}
