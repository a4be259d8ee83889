package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	intconfig "temani/internal/config"
	"temani/internal/domain"
	"temani/internal/domain/models"
)

const bookingColumns = `id, client_id, companion_id, start_at, end_at, total_amount,
	status, payment_status, COALESCE(payment_hold_ref, ''),
	meeting_lat, meeting_lng, meeting_address,
	verification_required, transfer_pending,
	COALESCE(cancelled_by, ''), COALESCE(cancel_reason, ''), cancelled_at, created_at`

type BookingRepository struct {
	DB *sql.DB
}

func (r BookingRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func scanBooking(row interface{ Scan(dest ...any) error }) (models.Booking, error) {
	var b models.Booking
	var cancelledAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.ClientID, &b.CompanionID, &b.StartAt, &b.EndAt, &b.TotalAmount,
		&b.Status, &b.PaymentStatus, &b.PaymentHoldRef,
		&b.MeetingLat, &b.MeetingLng, &b.MeetingAddress,
		&b.VerificationRequired, &b.TransferPending,
		&b.CancelledBy, &b.CancelReason, &cancelledAt, &b.CreatedAt,
	)
	if err != nil {
		return models.Booking{}, err
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	return b, nil
}

// Create inserts a new booking in pending state. The hold reference
// must already exist: a booking row is never created before its
// funding commitment.
func (r BookingRepository) Create(q DBTX, b models.Booking) (int64, error) {
	if b.PaymentHoldRef == "" {
		return 0, domain.ValidationError{Field: "payment_hold_ref", Msg: "hold belum dibuat"}
	}
	if q == nil {
		q = r.db()
	}
	res, err := q.Exec(`
		INSERT INTO bookings
			(client_id, companion_id, start_at, end_at, total_amount,
			 status, payment_status, payment_hold_ref,
			 meeting_lat, meeting_lng, meeting_address, verification_required)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ClientID, b.CompanionID, b.StartAt, b.EndAt, b.TotalAmount,
		models.BookingPending, models.PaymentAuthorized, b.PaymentHoldRef,
		b.MeetingLat, b.MeetingLng, b.MeetingAddress, b.VerificationRequired,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r BookingRepository) GetByID(id int64) (models.Booking, error) {
	if id <= 0 {
		return models.Booking{}, domain.ValidationError{Field: "id", Msg: "id tidak valid"}
	}
	row := r.db().QueryRow(`SELECT `+bookingColumns+` FROM bookings WHERE id=? LIMIT 1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, domain.NotFoundError{Resource: "booking", Err: err}
	}
	return b, err
}

// GetForUpdate reads the booking under a row lock. Every state
// transition with side effects goes through this.
func (r BookingRepository) GetForUpdate(tx *sql.Tx, id int64) (models.Booking, error) {
	row := tx.QueryRow(`SELECT `+bookingColumns+` FROM bookings WHERE id=? FOR UPDATE`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, domain.NotFoundError{Resource: "booking", Err: err}
	}
	return b, err
}

// Update performs PATCH-style updates based on key presence.
func (r BookingRepository) Update(q DBTX, id int64, upd models.BookingUpdate) error {
	if id <= 0 {
		return domain.ValidationError{Field: "id", Msg: "id tidak valid"}
	}
	if q == nil {
		q = r.db()
	}
	sets := []string{}
	args := []any{}

	if upd.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, string(*upd.Status))
	}
	if upd.PaymentStatus != nil {
		sets = append(sets, "payment_status=?")
		args = append(args, string(*upd.PaymentStatus))
	}
	if upd.PaymentHoldRef != nil {
		sets = append(sets, "payment_hold_ref=?")
		args = append(args, *upd.PaymentHoldRef)
	}
	if upd.TransferPending != nil {
		sets = append(sets, "transfer_pending=?")
		args = append(args, *upd.TransferPending)
	}
	if upd.CancelledBy != nil {
		sets = append(sets, "cancelled_by=?")
		args = append(args, *upd.CancelledBy)
	}
	if upd.CancelReason != nil {
		sets = append(sets, "cancel_reason=?")
		args = append(args, *upd.CancelReason)
	}
	if upd.CancelledAt != nil {
		sets = append(sets, "cancelled_at=?")
		args = append(args, *upd.CancelledAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := q.Exec(`UPDATE bookings SET `+strings.Join(sets, ", ")+` WHERE id=?`, args...)
	return err
}

// CountOverlappingConfirmed counts confirmed bookings of the companion
// that overlap [start, end) with zero buffer. Used at acceptance time,
// which is authoritative.
func (r BookingRepository) CountOverlappingConfirmed(tx *sql.Tx, companionID int64, start, end time.Time, excludeID int64) (int, error) {
	var n int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM bookings
		WHERE companion_id=? AND id<>? AND status=?
		  AND start_at < ? AND end_at > ?`,
		companionID, excludeID, models.BookingConfirmed, end, start,
	).Scan(&n)
	return n, err
}

// HasOverlapWithBuffer checks overlap for creation with an advisory
// buffer around the interval. Creation is a soft check; acceptance
// re-checks with zero buffer.
func (r BookingRepository) HasOverlapWithBuffer(companionID int64, start, end time.Time, buffer time.Duration) (bool, error) {
	var n int
	err := r.db().QueryRow(`
		SELECT COUNT(*) FROM bookings
		WHERE companion_id=? AND status IN (?, ?)
		  AND start_at < ? AND end_at > ?`,
		companionID, models.BookingPending, models.BookingConfirmed,
		end.Add(buffer), start.Add(-buffer),
	).Scan(&n)
	return n > 0, err
}

// OverlappingPending returns other pending bookings of the companion
// that overlap the interval, locked for the fan-out cancellation.
func (r BookingRepository) OverlappingPending(tx *sql.Tx, companionID int64, start, end time.Time, excludeID int64) ([]models.Booking, error) {
	rows, err := tx.Query(`
		SELECT `+bookingColumns+` FROM bookings
		WHERE companion_id=? AND id<>? AND status=?
		  AND start_at < ? AND end_at > ?
		FOR UPDATE`,
		companionID, excludeID, models.BookingPending, end, start,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListByUser returns the user's bookings, newest first, with clamped
// pagination (bounds are integers by construction, never interpolated).
func (r BookingRepository) ListByUser(userID int64, role models.Role, p domain.Pagination) ([]models.Booking, int, error) {
	p.Clamp()
	col := "client_id"
	if role == models.RoleCompanion {
		col = "companion_id"
	}

	var total int
	if err := r.db().QueryRow(`SELECT COUNT(*) FROM bookings WHERE `+col+`=?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db().Query(
		`SELECT `+bookingColumns+` FROM bookings WHERE `+col+`=? ORDER BY start_at DESC LIMIT ? OFFSET ?`,
		userID, p.PageSize, p.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// PendingExpiredIDs lists pending bookings whose start time has passed
// with no companion acceptance.
func (r BookingRepository) PendingExpiredIDs(now time.Time) ([]int64, error) {
	return r.idList(`SELECT id FROM bookings WHERE status=? AND start_at <= ?`,
		models.BookingPending, now)
}

// NoShowCandidateIDs lists confirmed, still-held bookings whose end
// time passed at least grace ago without the meeting ever starting.
func (r BookingRepository) NoShowCandidateIDs(now time.Time, grace time.Duration) ([]int64, error) {
	return r.idList(`
		SELECT id FROM bookings
		WHERE status=? AND payment_status=? AND end_at <= ?`,
		models.BookingConfirmed, models.PaymentAuthorized, now.Add(-grace))
}

// AutoCompleteIDs lists started meetings whose interval has ended and
// whose payment was captured.
func (r BookingRepository) AutoCompleteIDs(now time.Time) ([]int64, error) {
	return r.idList(`
		SELECT id FROM bookings
		WHERE status=? AND payment_status=? AND end_at <= ?`,
		models.BookingMeetingStarted, models.PaymentPaid, now)
}

// CodeIssueCandidateIDs lists confirmed bookings that need a meeting
// code: start within the lead window (or already started inside the
// fallback window catching missed runs) and no record issued yet.
func (r BookingRepository) CodeIssueCandidateIDs(now time.Time, lead, fallback time.Duration) ([]int64, error) {
	return r.idList(`
		SELECT b.id FROM bookings b
		WHERE b.status=? AND b.verification_required=1
		  AND b.start_at <= ? AND b.start_at > ?
		  AND NOT EXISTS (SELECT 1 FROM verification_records v WHERE v.booking_id = b.id)`,
		models.BookingConfirmed, now.Add(lead), now.Add(-fallback))
}

func (r BookingRepository) idList(query string, args ...any) ([]int64, error) {
	rows, err := r.db().Query(query, args...)
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

// EnsureExists is a cheap guard used by handlers before heavier work.
func (r BookingRepository) EnsureExists(id int64) error {
	var one int
	err := r.db().QueryRow(`SELECT 1 FROM bookings WHERE id=? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundError{Resource: "booking", Err: fmt.Errorf("booking %d", id)}
	}
	return err
}
