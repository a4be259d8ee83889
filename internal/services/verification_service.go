package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	intconfig "temani/internal/config"
	intdb "temani/internal/db"
	"temani/internal/domain"
	"temani/internal/domain/models"
	"temani/internal/events"
	"temani/internal/repositories"
	"temani/internal/utils"
)

// VerificationService drives the dual-party code + location protocol.
// The verification_records row is the single point of contention per
// booking; every mutation locks it before reading the fields it acts
// on.
type VerificationService struct {
	Bookings      repositories.BookingRepository
	Verifications repositories.VerificationRepository
	Payments      PaymentService
	Notify        events.Notifier
	DB            *sql.DB

	RadiusMeters float64
	Deadline     time.Duration
	Extension    time.Duration

	Now func() time.Time

	// AfterCommit, when set, replaces the default goroutine dispatch of
	// post-commit payment work so tests can run it synchronously.
	AfterCommit func(fn func())
}

func (s VerificationService) db() *sql.DB {
	if s.DB != nil {
		return s.DB
	}
	return intconfig.DB
}

func (s VerificationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return utils.NowUTC()
}

func (s VerificationService) notifier() events.Notifier {
	if s.Notify != nil {
		return s.Notify
	}
	return events.NopNotifier{}
}

func (s VerificationService) dispatch(fn func()) {
	if s.AfterCommit != nil {
		s.AfterCommit(fn)
		return
	}
	go fn()
}

// SubmitInput is one party's verification attempt.
type SubmitInput struct {
	BookingID        int64
	Code             string
	Latitude         float64
	Longitude        float64
	OverrideLocation bool
}

// SubmitResult distinguishes the three non-error outcomes: verified
// (possibly dual), or a soft location-confirmation prompt.
type SubmitResult struct {
	Verified             bool    `json:"verified"`
	BothVerified         bool    `json:"bothVerified"`
	ConfirmationRequired bool    `json:"confirmationRequired"`
	DistanceMeters       float64 `json:"distance,omitempty"`
	MinutesRemaining     int     `json:"minutesRemaining,omitempty"`
}

// Submit processes one party's code + coordinates. Order matters:
// radius check first (soft prompt when outside and not overridden),
// then exact code match for the submitter's role, then the party's
// verified-at write followed by a fresh locked re-read for dual
// completion. Capture and transfer run after the transaction commits,
// never inside it.
func (s VerificationService) Submit(ctx context.Context, actor domain.RequestContext, in SubmitInput) (SubmitResult, error) {
	var (
		result   SubmitResult
		deferred error
		dual     bool
		booking  models.Booking
	)

	err := intdb.WithTxRetry(ctx, s.db(), txAttempts, func(tx *sql.Tx) error {
		result = SubmitResult{}
		deferred = nil
		dual = false

		b, err := s.Bookings.GetForUpdate(tx, in.BookingID)
		if err != nil {
			return err
		}
		role, ok := b.RoleOf(int64(actor.UserID))
		if !ok {
			return domain.NotFoundError{Resource: "booking"}
		}
		booking = b

		if b.Status != models.BookingConfirmed {
			if b.Status == models.BookingMeetingStarted {
				return domain.ConflictError{Resource: "verifikasi", Msg: "pertemuan sudah dimulai"}
			}
			return domain.ConflictError{Resource: "verifikasi", Msg: fmt.Sprintf("booking berstatus %s", b.Status)}
		}

		v, err := s.Verifications.GetForUpdate(tx, in.BookingID)
		if err != nil {
			if domain.IsNotFound(err) {
				return domain.ConflictError{Resource: "verifikasi", Msg: "kode belum diterbitkan"}
			}
			return err
		}

		now := s.now()
		if !now.Before(v.Deadline) {
			return domain.ConflictError{Resource: "verifikasi", Msg: "batas waktu verifikasi sudah lewat"}
		}
		if v.VerifiedAtFor(role) != nil {
			return domain.ConflictError{Resource: "verifikasi", Msg: "anda sudah terverifikasi"}
		}

		distance := utils.HaversineMeters(in.Latitude, in.Longitude, b.MeetingLat, b.MeetingLng)

		if distance > s.RadiusMeters && !in.OverrideLocation {
			// Soft prompt, not an error: no state mutation, the code
			// stays usable.
			result = SubmitResult{
				ConfirmationRequired: true,
				DistanceMeters:       distance,
				MinutesRemaining:     utils.MinutesUntil(now, v.Deadline),
			}
			return nil
		}
		overridden := distance > s.RadiusMeters && in.OverrideLocation

		if in.Code != v.CodeFor(role) {
			// Wrong code: audit the failure but commit it, and let the
			// party retry until the deadline.
			if err := s.Verifications.RecordAttempt(tx, models.VerificationAttempt{
				BookingID:          b.ID,
				Role:               role,
				CodeGiven:          in.Code,
				Success:            false,
				DistanceM:          distance,
				LocationOverridden: overridden,
				Reason:             "kode salah",
			}); err != nil {
				return err
			}
			deferred = domain.ValidationError{Field: "code", Msg: "kode tidak cocok"}
			return nil
		}

		if err := s.Verifications.MarkPartyVerified(tx, v.ID, role, now, in.Latitude, in.Longitude); err != nil {
			return err
		}
		if err := s.Verifications.RecordAttempt(tx, models.VerificationAttempt{
			BookingID:          b.ID,
			Role:               role,
			CodeGiven:          in.Code,
			Success:            true,
			DistanceM:          distance,
			LocationOverridden: overridden,
		}); err != nil {
			return err
		}

		// Fresh locked re-read, not the snapshot from the top of the
		// request: the counterpart may have verified concurrently and
		// exactly one submission must observe dual completion.
		fresh, err := s.Verifications.GetForUpdate(tx, in.BookingID)
		if err != nil {
			return err
		}
		if fresh.BothVerified() {
			if err := s.Verifications.SetStatus(tx, fresh.ID, models.VerificationVerified); err != nil {
				return err
			}
			st := models.BookingMeetingStarted
			if err := s.Bookings.Update(tx, b.ID, models.BookingUpdate{Status: &st}); err != nil {
				return err
			}
			dual = true
		}

		result = SubmitResult{Verified: true, BothVerified: dual}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	if deferred != nil {
		return SubmitResult{}, deferred
	}

	if dual {
		// Outside the transaction, asynchronously relative to the HTTP
		// response. A capture failure must not roll back a verified
		// meeting.
		bID := booking.ID
		s.dispatch(func() {
			bg := context.Background()
			if err := s.Payments.CaptureAndTransfer(bg, bID); err != nil {
				utils.LogEvent("", "verification", "capture_after_dual_failed",
					fmt.Sprintf("booking=%d err=%v", bID, err))
			}
		})
		s.notifier().Emit(ctx, events.MeetingStarted, booking.ID,
			[]int64{booking.ClientID, booking.CompanionID}, nil)
		utils.LogEvent("", "verification", "dual_success", fmt.Sprintf("booking=%d", booking.ID))
	}
	return result, nil
}

// RequestExtension pushes the deadline forward once. Only an
// unverified party may use it, only before the current deadline, and
// only if the single extension is still available.
func (s VerificationService) RequestExtension(ctx context.Context, bookingID int64, actor domain.RequestContext) (time.Time, error) {
	var newDeadline time.Time
	var booking models.Booking

	err := intdb.WithTxRetry(ctx, s.db(), txAttempts, func(tx *sql.Tx) error {
		b, err := s.Bookings.GetForUpdate(tx, bookingID)
		if err != nil {
			return err
		}
		role, ok := b.RoleOf(int64(actor.UserID))
		if !ok {
			return domain.NotFoundError{Resource: "booking"}
		}
		booking = b

		v, err := s.Verifications.GetForUpdate(tx, bookingID)
		if err != nil {
			if domain.IsNotFound(err) {
				return domain.ConflictError{Resource: "verifikasi", Msg: "kode belum diterbitkan"}
			}
			return err
		}

		now := s.now()
		switch {
		case v.VerifiedAtFor(role) != nil:
			return domain.ConflictError{Resource: "verifikasi", Msg: "sudah terverifikasi, tidak perlu perpanjangan"}
		case v.ExtensionUsed:
			return domain.ConflictError{Resource: "verifikasi", Msg: "perpanjangan sudah dipakai"}
		case !now.Before(v.Deadline):
			return domain.ConflictError{Resource: "verifikasi", Msg: "batas waktu sudah lewat"}
		}

		newDeadline = v.Deadline.Add(s.Extension)
		ok2, err := s.Verifications.ExtendDeadline(tx, v.ID, newDeadline, now)
		if err != nil {
			return err
		}
		if !ok2 {
			return domain.ConflictError{Resource: "verifikasi", Msg: "perpanjangan sudah dipakai"}
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	s.notifier().Emit(ctx, events.MeetingExtension, booking.ID,
		[]int64{booking.ClientID, booking.CompanionID}, map[string]any{
			"deadline": newDeadline,
		})
	return newDeadline, nil
}

// IssueCodes creates the verification record for a confirmed booking:
// one single-use code per party plus the deadline, persisted
// atomically with issuance. The unique key on booking_id makes a
// second issuance from an overlapping job run a no-op.
func (s VerificationService) IssueCodes(ctx context.Context, bookingID int64) error {
	b, err := s.Bookings.GetByID(bookingID)
	if err != nil {
		return err
	}
	if b.Status != models.BookingConfirmed || !b.VerificationRequired {
		return nil
	}

	clientCode, err := utils.GenerateMeetingCode()
	if err != nil {
		return domain.InternalError{Err: err}
	}
	companionCode, err := utils.GenerateMeetingCode()
	if err != nil {
		return domain.InternalError{Err: err}
	}

	now := s.now()
	rec := models.VerificationRecord{
		BookingID:     b.ID,
		ClientCode:    clientCode,
		CompanionCode: companionCode,
		Deadline:      b.StartAt.Add(s.Deadline),
		CodeIssuedAt:  now,
	}
	if _, err := s.Verifications.Create(nil, rec); err != nil {
		if intdb.IsDuplicate(err) {
			return nil
		}
		return domain.InternalError{Err: err}
	}

	s.notifier().Emit(ctx, events.MeetingCodeIssued, b.ID, []int64{b.ClientID, b.CompanionID}, map[string]any{
		"client_code":    clientCode,
		"companion_code": companionCode,
		"deadline":       rec.Deadline,
	})
	utils.LogEvent("", "verification", "codes_issued",
		fmt.Sprintf("booking=%d deadline=%s", b.ID, utils.FormatDateTime(rec.Deadline)))
	return nil
}

// Status returns the verification state visible to a participant. The
// party's own expected input (the counterpart's code) is not exposed.
func (s VerificationService) Status(bookingID int64, actor domain.RequestContext) (models.VerificationRecord, error) {
	b, err := s.Bookings.GetByID(bookingID)
	if err != nil {
		return models.VerificationRecord{}, err
	}
	if _, ok := b.RoleOf(int64(actor.UserID)); !ok {
		return models.VerificationRecord{}, domain.NotFoundError{Resource: "booking"}
	}
	return s.Verifications.GetByBookingID(bookingID)
}

// Attempts exposes the append-only audit trail (dispute review).
func (s VerificationService) Attempts(bookingID int64) ([]models.VerificationAttempt, error) {
	return s.Verifications.ListAttempts(bookingID)
}
