package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"examreg/internal/registration/identifier"
	"examreg/internal/registration/models"
	"examreg/pkg/sentinel"
)

// Schema for the registrations table. The partial unique index is what makes
// receipt numbers collision-safe: absent receipts don't collide, assigned
// ones must be globally unique.
const Schema = `
CREATE TABLE IF NOT EXISTS registrations (
    key                 UUID PRIMARY KEY,
    registration_id     TEXT NOT NULL,
    status              TEXT NOT NULL,
    payment_status      TEXT NOT NULL,
    exam_type           TEXT NOT NULL,
    student_name        TEXT NOT NULL,
    current_class       TEXT NOT NULL,
    school_name         TEXT NOT NULL,
    parent_mobile       TEXT NOT NULL,
    email               TEXT NOT NULL DEFAULT '',
    exam_date           TEXT NOT NULL,
    referral_source     TEXT NOT NULL DEFAULT '',
    order_id            TEXT NOT NULL DEFAULT '',
    payment_id          TEXT NOT NULL DEFAULT '',
    signature           TEXT NOT NULL DEFAULT '',
    receipt_no          TEXT,
    registration_amount BIGINT NOT NULL DEFAULT 0,
    offer_tag           TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS registrations_receipt_no_key
    ON registrations (receipt_no) WHERE receipt_no IS NOT NULL;

CREATE INDEX IF NOT EXISTS registrations_order_id_idx
    ON registrations (order_id) WHERE order_id <> '';
`

const registrationColumns = `key, registration_id, status, payment_status, exam_type,
	student_name, current_class, school_name, parent_mobile, email, exam_date,
	referral_source, order_id, payment_id, signature, receipt_no,
	registration_amount, offer_tag, created_at, updated_at`

// Postgres is the durable registration store.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, r *models.Registration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registrations (`+registrationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		r.Key, r.RegistrationID, r.Status, r.PaymentStatus, r.ExamType,
		r.StudentName, r.CurrentClass, r.SchoolName, r.ParentMobile, r.Email, r.ExamDate,
		r.ReferralSource, r.OrderID, r.PaymentID, r.Signature, nullable(r.ReceiptNo),
		r.RegistrationAmount, r.OfferTag, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", translatePQ(err))
	}
	return nil
}

func (s *Postgres) FindByKey(ctx context.Context, key uuid.UUID) (*models.Registration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE key = $1`, key)
	return scanRegistration(row)
}

func (s *Postgres) FindByOrderID(ctx context.Context, orderID string) (*models.Registration, error) {
	if orderID == "" {
		return nil, sentinel.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE order_id = $1
		 ORDER BY created_at LIMIT 1`, orderID)
	return scanRegistration(row)
}

// Update writes the editable fields only. The state-machine fields (status,
// registration identifier, receipt number, signature) belong to MarkPaid, and
// payment status is never written over a paid row, so a reconciliation
// landing between a caller's read and this write cannot be reverted.
func (s *Postgres) Update(ctx context.Context, r *models.Registration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE registrations SET
			student_name = $2, current_class = $3, school_name = $4,
			parent_mobile = $5, email = $6, exam_date = $7,
			referral_source = $8, order_id = $9, payment_id = $10,
			offer_tag = $11, updated_at = $12,
			payment_status = CASE WHEN payment_status = 'paid' THEN payment_status ELSE $13 END
		WHERE key = $1`,
		r.Key,
		r.StudentName, r.CurrentClass, r.SchoolName,
		r.ParentMobile, r.Email, r.ExamDate,
		r.ReferralSource, r.OrderID, r.PaymentID,
		r.OfferTag, r.UpdatedAt, r.PaymentStatus,
	)
	if err != nil {
		return fmt.Errorf("update registration: %w", translatePQ(err))
	}
	return requireRow(res)
}

func (s *Postgres) Delete(ctx context.Context, key uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registrations WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return requireRow(res)
}

var sortColumns = map[string]string{
	"createdAt":      "created_at",
	"updatedAt":      "updated_at",
	"studentName":    "student_name",
	"examDate":       "exam_date",
	"registrationId": "registration_id",
}

func (s *Postgres) List(ctx context.Context, q Query) ([]*models.Registration, int, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 5)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Class != "" {
		where = append(where, "current_class = "+arg(q.Class))
	}
	if q.ExamDate != "" {
		where = append(where, "exam_date = "+arg(q.ExamDate))
	}
	if q.Status != "" {
		where = append(where, "status = "+arg(q.Status))
	}
	if q.Search != "" {
		pattern := arg("%" + q.Search + "%")
		where = append(where, fmt.Sprintf(
			"(student_name ILIKE %[1]s OR parent_mobile ILIKE %[1]s OR school_name ILIKE %[1]s OR email ILIKE %[1]s)",
			pattern))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM registrations"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	sortCol, ok := sortColumns[q.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}

	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	query := fmt.Sprintf(
		"SELECT %s FROM registrations%s ORDER BY %s %s LIMIT %s OFFSET %s",
		registrationColumns, clause, sortCol, direction,
		arg(limit), arg((page-1)*limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	results := make([]*models.Registration, 0, limit)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	return results, total, nil
}

func (s *Postgres) DistinctExamDates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT exam_date FROM registrations WHERE exam_date <> '' ORDER BY exam_date`)
	if err != nil {
		return nil, fmt.Errorf("distinct exam dates: %w", err)
	}
	defer rows.Close()

	dates := make([]string, 0)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan exam date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (s *Postgres) ListPendingWithOrders(ctx context.Context) ([]*models.Registration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+registrationColumns+` FROM registrations
		WHERE payment_status NOT IN ('paid', 'waived') AND order_id <> ''
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list pending registrations: %w", err)
	}
	defer rows.Close()

	results := make([]*models.Registration, 0)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// MarkPaid is the single conditional write of the terminal transition. The
// WHERE clause is the optimistic concurrency guard: if another trigger
// already flipped the row to paid, zero rows match and the caller re-reads.
func (s *Postgres) MarkPaid(ctx context.Context, key uuid.UUID, upd PaidUpdate) (*models.Registration, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE registrations SET
			status = $2,
			payment_status = $3,
			registration_id = CASE WHEN $4 <> '' THEN $4 ELSE registration_id END,
			receipt_no = COALESCE(receipt_no, NULLIF($5, '')),
			payment_id = CASE WHEN $6 <> '' THEN $6 ELSE payment_id END,
			order_id = CASE WHEN $7 <> '' THEN $7 ELSE order_id END,
			signature = CASE WHEN $8 <> '' THEN $8 ELSE signature END,
			updated_at = $9
		WHERE key = $1 AND payment_status NOT IN ('paid', 'waived')
		RETURNING `+registrationColumns,
		key, identifier.StatusCompleted, models.PaymentStatusPaid,
		upd.RegistrationID, upd.ReceiptNo, upd.PaymentID, upd.OrderID,
		upd.Signature, upd.Now,
	)

	r, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Either the row is absent or it is already terminal; distinguish
			// so the coordinator can treat the lost race as success.
			if _, findErr := s.FindByKey(ctx, key); findErr == nil {
				return nil, sentinel.ErrInvalidState
			}
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *Postgres) ClearReceiptNumbers(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE registrations SET receipt_no = NULL WHERE receipt_no IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("clear receipt numbers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear receipt numbers: %w", err)
	}
	return n, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*models.Registration, error) {
	var r models.Registration
	var receiptNo sql.NullString
	err := row.Scan(
		&r.Key, &r.RegistrationID, &r.Status, &r.PaymentStatus, &r.ExamType,
		&r.StudentName, &r.CurrentClass, &r.SchoolName, &r.ParentMobile, &r.Email, &r.ExamDate,
		&r.ReferralSource, &r.OrderID, &r.PaymentID, &r.Signature, &receiptNo,
		&r.RegistrationAmount, &r.OfferTag, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan registration: %w", translatePQ(err))
	}
	r.ReceiptNo = receiptNo.String
	return &r, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// translatePQ maps the unique-violation class to the conflict sentinel so the
// service layer never sees driver-specific codes.
func translatePQ(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %v", sentinel.ErrConflict, err)
	}
	return err
}
