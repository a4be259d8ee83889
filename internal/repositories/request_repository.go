package repositories

import (
	"database/sql"
	"errors"
	"time"

	intconfig "temani/internal/config"
	"temani/internal/domain"
	"temani/internal/domain/models"
)

const requestColumns = `id, client_id, companion_id, message,
	proposed_start, proposed_end, total_amount,
	COALESCE(payment_hold_ref, ''), status, valid_until, created_at`

type RequestRepository struct {
	DB *sql.DB
}

func (r RequestRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func scanRequest(row interface{ Scan(dest ...any) error }) (models.BookingRequest, error) {
	var q models.BookingRequest
	var pStart, pEnd sql.NullTime
	err := row.Scan(
		&q.ID, &q.ClientID, &q.CompanionID, &q.Message,
		&pStart, &pEnd, &q.TotalAmount,
		&q.PaymentHoldRef, &q.Status, &q.ValidUntil, &q.CreatedAt,
	)
	if err != nil {
		return models.BookingRequest{}, err
	}
	if pStart.Valid {
		t := pStart.Time
		q.ProposedStart = &t
	}
	if pEnd.Valid {
		t := pEnd.Time
		q.ProposedEnd = &t
	}
	return q, nil
}

func (r RequestRepository) Create(req models.BookingRequest) (int64, error) {
	if req.PaymentHoldRef == "" {
		return 0, domain.ValidationError{Field: "payment_hold_ref", Msg: "hold belum dibuat"}
	}
	var pStart, pEnd any
	if req.ProposedStart != nil {
		pStart = *req.ProposedStart
	}
	if req.ProposedEnd != nil {
		pEnd = *req.ProposedEnd
	}
	res, err := r.db().Exec(`
		INSERT INTO booking_requests
			(client_id, companion_id, message, proposed_start, proposed_end,
			 total_amount, payment_hold_ref, status, valid_until)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		req.ClientID, req.CompanionID, req.Message, pStart, pEnd,
		req.TotalAmount, req.PaymentHoldRef, models.RequestPending, req.ValidUntil,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r RequestRepository) GetByID(id int64) (models.BookingRequest, error) {
	row := r.db().QueryRow(`SELECT `+requestColumns+` FROM booking_requests WHERE id=? LIMIT 1`, id)
	q, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BookingRequest{}, domain.NotFoundError{Resource: "booking request", Err: err}
	}
	return q, err
}

func (r RequestRepository) GetForUpdate(tx *sql.Tx, id int64) (models.BookingRequest, error) {
	row := tx.QueryRow(`SELECT `+requestColumns+` FROM booking_requests WHERE id=? FOR UPDATE`, id)
	q, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BookingRequest{}, domain.NotFoundError{Resource: "booking request", Err: err}
	}
	return q, err
}

func (r RequestRepository) SetStatus(q DBTX, id int64, status models.RequestStatus) error {
	if q == nil {
		q = r.db()
	}
	_, err := q.Exec(`UPDATE booking_requests SET status=? WHERE id=?`, status, id)
	return err
}

// OverlappingPending returns pending requests to the companion whose
// proposed interval overlaps [start, end), locked for the acceptance
// fan-out rejection. excludeID keeps the request being accepted out of
// its own fan-out.
func (r RequestRepository) OverlappingPending(tx *sql.Tx, companionID int64, start, end time.Time, excludeID int64) ([]models.BookingRequest, error) {
	rows, err := tx.Query(`
		SELECT `+requestColumns+` FROM booking_requests
		WHERE companion_id=? AND status=? AND id<>?
		  AND proposed_start IS NOT NULL AND proposed_end IS NOT NULL
		  AND proposed_start < ? AND proposed_end > ?
		FOR UPDATE`,
		companionID, models.RequestPending, excludeID, end, start,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.BookingRequest
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// ExpiredPendingIDs lists requests past their validity window or past
// their proposed start with no companion response.
func (r RequestRepository) ExpiredPendingIDs(now time.Time) ([]int64, error) {
	rows, err := r.db().Query(`
		SELECT id FROM booking_requests
		WHERE status=?
		  AND (valid_until <= ? OR (proposed_start IS NOT NULL AND proposed_start <= ?))`,
		models.RequestPending, now, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
