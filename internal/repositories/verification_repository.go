package repositories

import (
	"database/sql"
	"errors"
	"time"

	intconfig "temani/internal/config"
	"temani/internal/domain"
	"temani/internal/domain/models"
)

const verificationColumns = `id, booking_id, client_code, companion_code,
	client_verified_at, client_lat, client_lng,
	companion_verified_at, companion_lat, companion_lng,
	status, deadline, extension_used, code_issued_at`

type VerificationRepository struct {
	DB *sql.DB
}

func (r VerificationRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func scanVerification(row interface{ Scan(dest ...any) error }) (models.VerificationRecord, error) {
	var v models.VerificationRecord
	var cVerified, mVerified sql.NullTime
	var cLat, cLng, mLat, mLng sql.NullFloat64
	err := row.Scan(
		&v.ID, &v.BookingID, &v.ClientCode, &v.CompanionCode,
		&cVerified, &cLat, &cLng,
		&mVerified, &mLat, &mLng,
		&v.Status, &v.Deadline, &v.ExtensionUsed, &v.CodeIssuedAt,
	)
	if err != nil {
		return models.VerificationRecord{}, err
	}
	if cVerified.Valid {
		t := cVerified.Time
		v.ClientVerifiedAt = &t
	}
	if mVerified.Valid {
		t := mVerified.Time
		v.CompanionVerifiedAt = &t
	}
	if cLat.Valid {
		f := cLat.Float64
		v.ClientLat = &f
	}
	if cLng.Valid {
		f := cLng.Float64
		v.ClientLng = &f
	}
	if mLat.Valid {
		f := mLat.Float64
		v.CompanionLat = &f
	}
	if mLng.Valid {
		f := mLng.Float64
		v.CompanionLng = &f
	}
	return v, nil
}

// Create persists freshly issued codes together with their deadline.
// The unique key on booking_id makes double issuance a no-op failure.
func (r VerificationRepository) Create(q DBTX, v models.VerificationRecord) (int64, error) {
	if q == nil {
		q = r.db()
	}
	res, err := q.Exec(`
		INSERT INTO verification_records
			(booking_id, client_code, companion_code, status, deadline, code_issued_at)
		VALUES (?,?,?,?,?,?)`,
		v.BookingID, v.ClientCode, v.CompanionCode,
		models.VerificationPending, v.Deadline, v.CodeIssuedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetByBookingID reads without locking, for display paths only.
func (r VerificationRepository) GetByBookingID(bookingID int64) (models.VerificationRecord, error) {
	row := r.db().QueryRow(`SELECT `+verificationColumns+` FROM verification_records WHERE booking_id=? LIMIT 1`, bookingID)
	v, err := scanVerification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VerificationRecord{}, domain.NotFoundError{Resource: "verification", Err: err}
	}
	return v, err
}

// GetForUpdate takes the per-booking row lock. Every mutation of the
// record — submissions, extension, expiry — reads through here first.
func (r VerificationRepository) GetForUpdate(tx *sql.Tx, bookingID int64) (models.VerificationRecord, error) {
	row := tx.QueryRow(`SELECT `+verificationColumns+` FROM verification_records WHERE booking_id=? FOR UPDATE`, bookingID)
	v, err := scanVerification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VerificationRecord{}, domain.NotFoundError{Resource: "verification", Err: err}
	}
	return v, err
}

// MarkPartyVerified stores one side's verified-at and coordinates.
func (r VerificationRepository) MarkPartyVerified(tx *sql.Tx, recordID int64, role models.Role, at time.Time, lat, lng float64) error {
	if role == models.RoleClient {
		_, err := tx.Exec(`UPDATE verification_records SET client_verified_at=?, client_lat=?, client_lng=? WHERE id=?`,
			at, lat, lng, recordID)
		return err
	}
	_, err := tx.Exec(`UPDATE verification_records SET companion_verified_at=?, companion_lat=?, companion_lng=? WHERE id=?`,
		at, lat, lng, recordID)
	return err
}

// SetStatus flips the overall record status.
func (r VerificationRepository) SetStatus(q DBTX, recordID int64, status models.VerificationStatus) error {
	if q == nil {
		q = r.db()
	}
	_, err := q.Exec(`UPDATE verification_records SET status=? WHERE id=?`, status, recordID)
	return err
}

// ExtendDeadline pushes the deadline forward and burns the single
// extension. The WHERE clause repeats the guards so a racing second
// request cannot apply twice even across processes.
func (r VerificationRepository) ExtendDeadline(tx *sql.Tx, recordID int64, newDeadline, now time.Time) (bool, error) {
	res, err := tx.Exec(`
		UPDATE verification_records
		SET deadline=?, extension_used=1
		WHERE id=? AND extension_used=0 AND deadline > ? AND status=?`,
		newDeadline, recordID, now, models.VerificationPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExpiredPendingBookingIDs lists bookings whose codes were issued, the
// (possibly extended) deadline has passed, and dual verification never
// happened.
func (r VerificationRepository) ExpiredPendingBookingIDs(now time.Time) ([]int64, error) {
	rows, err := r.db().Query(`
		SELECT booking_id FROM verification_records
		WHERE status=? AND deadline <= ?
		  AND (client_verified_at IS NULL OR companion_verified_at IS NULL)`,
		models.VerificationPending, now)
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

// RecordAttempt appends one audit row. Attempts are never updated or
// deleted.
func (r VerificationRepository) RecordAttempt(q DBTX, a models.VerificationAttempt) error {
	if q == nil {
		q = r.db()
	}
	_, err := q.Exec(`
		INSERT INTO verification_attempts
			(booking_id, role, code_given, success, distance_m, location_overridden, reason)
		VALUES (?,?,?,?,?,?,?)`,
		a.BookingID, a.Role, a.CodeGiven, a.Success, a.DistanceM, a.LocationOverridden, a.Reason)
	return err
}

// ListAttempts returns the audit trail for dispute review, oldest
// first.
func (r VerificationRepository) ListAttempts(bookingID int64) ([]models.VerificationAttempt, error) {
	rows, err := r.db().Query(`
		SELECT id, booking_id, role, code_given, success, distance_m, location_overridden, reason, created_at
		FROM verification_attempts WHERE booking_id=? ORDER BY id ASC`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.VerificationAttempt
	for rows.Next() {
		var a models.VerificationAttempt
		if err := rows.Scan(&a.ID, &a.BookingID, &a.Role, &a.CodeGiven, &a.Success,
			&a.DistanceM, &a.LocationOverridden, &a.Reason, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
