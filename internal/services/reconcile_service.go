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

// Job names accepted by Run and by the admin trigger endpoint.
const (
	JobIssueCodes          = "issue_codes"
	JobExpirePending       = "expire_pending"
	JobRefundNoShows       = "refund_no_shows"
	JobAutoComplete        = "auto_complete"
	JobExpireVerifications = "expire_verifications"
	JobExpireRequests      = "expire_requests"
)

// JobNames lists every job in its scheduled order.
var JobNames = []string{
	JobIssueCodes,
	JobExpirePending,
	JobRefundNoShows,
	JobAutoComplete,
	JobExpireVerifications,
	JobExpireRequests,
}

// ReconcileService hosts the idempotent periodic jobs. Each job
// re-derives its candidate set from query predicates (no in-memory
// checkpoints), processes one row per transaction so a single failure
// never blocks the rest, and relies on the next scheduled run as its
// retry mechanism.
type ReconcileService struct {
	Bookings      repositories.BookingRepository
	Requests      repositories.RequestRepository
	Verifications repositories.VerificationRepository
	Payments      PaymentService
	Verification  VerificationService
	Notify        events.Notifier
	DB            *sql.DB

	IssueLead     time.Duration
	IssueFallback time.Duration
	NoShowGrace   time.Duration

	Now func() time.Time
}

func (s ReconcileService) db() *sql.DB {
	if s.DB != nil {
		return s.DB
	}
	return intconfig.DB
}

func (s ReconcileService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return utils.NowUTC()
}

func (s ReconcileService) notifier() events.Notifier {
	if s.Notify != nil {
		return s.Notify
	}
	return events.NopNotifier{}
}

// Run executes one named job. Safe to call out-of-band for manual
// reconciliation.
func (s ReconcileService) Run(ctx context.Context, name string) error {
	switch name {
	case JobIssueCodes:
		return s.IssueCodes(ctx)
	case JobExpirePending:
		return s.ExpirePending(ctx)
	case JobRefundNoShows:
		return s.RefundNoShows(ctx)
	case JobAutoComplete:
		return s.AutoComplete(ctx)
	case JobExpireVerifications:
		return s.ExpireVerifications(ctx)
	case JobExpireRequests:
		return s.ExpireRequests(ctx)
	}
	return domain.ValidationError{Field: "job", Msg: fmt.Sprintf("job %q tidak dikenal", name)}
}

// IssueCodes issues meeting codes for confirmed bookings whose start
// falls inside the lead window. The fallback window picks up bookings
// a missed run skipped; the unique key on verification_records keeps
// reissuance out.
func (s ReconcileService) IssueCodes(ctx context.Context) error {
	ids, err := s.Bookings.CodeIssueCandidateIDs(s.now(), s.IssueLead, s.IssueFallback)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.Verification.IssueCodes(ctx, id); err != nil {
			utils.LogEvent("", "reconcile", "issue_codes_row_failed",
				fmt.Sprintf("booking=%d err=%v", id, err))
		}
	}
	return nil
}

// ExpirePending expires pending bookings whose start passed with no
// companion acceptance: full hold release, mark expired, notify both.
func (s ReconcileService) ExpirePending(ctx context.Context) error {
	ids, err := s.Bookings.PendingExpiredIDs(s.now())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.expireOne(ctx, id, models.BookingPending, models.BookingExpired, events.BookingExpired,
			"tidak ada respon companion sampai waktu mulai"); err != nil {
			utils.LogEvent("", "reconcile", "expire_pending_row_failed",
				fmt.Sprintf("booking=%d err=%v", id, err))
		}
	}
	return nil
}

// RefundNoShows settles confirmed bookings whose end passed at least
// the grace period ago without the meeting ever starting. Companions
// are explicitly told no payment was released.
func (s ReconcileService) RefundNoShows(ctx context.Context) error {
	ids, err := s.Bookings.NoShowCandidateIDs(s.now(), s.NoShowGrace)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.expireOne(ctx, id, models.BookingConfirmed, models.BookingNoShow, events.BookingNoShow,
			"pertemuan tidak terverifikasi"); err != nil {
			utils.LogEvent("", "reconcile", "no_show_row_failed",
				fmt.Sprintf("booking=%d err=%v", id, err))
		}
	}
	return nil
}

// expireOne is the shared settle-then-transition path for the expiry
// jobs: gateway consulted first (remote-status branch), local
// transition second, notifications last. A fatal refund failure parks
// the row in failed for the operator instead of completing the
// expiry.
func (s ReconcileService) expireOne(ctx context.Context, bookingID int64, from, to models.BookingStatus, eventKey, reason string) error {
	b, err := s.Bookings.GetByID(bookingID)
	if err != nil {
		return err
	}
	if b.Status != from {
		return nil // another worker settled it first
	}

	payStatus, err := s.Payments.RefundOrRelease(ctx, b, reason)
	if err != nil {
		if domain.IsPaymentFatal(err) {
			st := models.BookingFailed
			_ = s.Bookings.Update(nil, b.ID, models.BookingUpdate{Status: &st})
			utils.LogEvent("", "reconcile", "refund_fatal",
				fmt.Sprintf("booking=%d parked in failed: %v", b.ID, err))
		}
		return err
	}

	by := "system"
	now := s.now()
	err = intdb.WithTxRetry(ctx, s.db(), txAttempts, func(tx *sql.Tx) error {
		cur, err := s.Bookings.GetForUpdate(tx, bookingID)
		if err != nil {
			return err
		}
		if cur.Status != from {
			return nil
		}
		r := reason
		return s.Bookings.Update(tx, bookingID, models.BookingUpdate{
			Status:        &to,
			PaymentStatus: &payStatus,
			CancelledBy:   &by,
			CancelReason:  &r,
			CancelledAt:   &now,
		})
	})
	if err != nil {
		return err
	}

	data := map[string]any{"reason": reason}
	if to == models.BookingNoShow {
		data["payment_released"] = false
	}
	s.notifier().Emit(ctx, eventKey, b.ID, []int64{b.ClientID, b.CompanionID}, data)
	utils.LogEvent("", "reconcile", "booking_settled",
		fmt.Sprintf("booking=%d %s->%s payment=%s", b.ID, from, to, payStatus))
	return nil
}

// AutoComplete finishes started meetings whose interval ended and
// whose payment was captured, prompting the client for a review.
func (s ReconcileService) AutoComplete(ctx context.Context) error {
	ids, err := s.Bookings.AutoCompleteIDs(s.now())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.autoCompleteOne(ctx, id); err != nil {
			utils.LogEvent("", "reconcile", "auto_complete_row_failed",
				fmt.Sprintf("booking=%d err=%v", id, err))
		}
	}
	return nil
}

func (s ReconcileService) autoCompleteOne(ctx context.Context, bookingID int64) error {
	var done bool
	var b models.Booking
	err := intdb.WithTxRetry(ctx, s.db(), txAttempts, func(tx *sql.Tx) error {
		done = false
		cur, err := s.Bookings.GetForUpdate(tx, bookingID)
		if err != nil {
			return err
		}
		if cur.Status != models.BookingMeetingStarted || cur.PaymentStatus != models.PaymentPaid {
			return nil
		}
		st := models.BookingCompleted
		if err := s.Bookings.Update(tx, bookingID, models.BookingUpdate{Status: &st}); err != nil {
			return err
		}
		b = cur
		done = true
		return nil
	})
	if err != nil || !done {
		return err
	}

	s.notifier().Emit(ctx, events.BookingCompleted, b.ID, []int64{b.ClientID, b.CompanionID}, map[string]any{
		"review_prompt": true,
	})
	return nil
}

// ExpireVerifications settles bookings whose (possibly extended)
// verification deadline passed without dual success. This is the one
// place a hold might have been captured out-of-band, so the gateway is
// queried authoritatively and the audit log distinguishes a real
// refund from a hold release.
func (s ReconcileService) ExpireVerifications(ctx context.Context) error {
	ids, err := s.Verifications.ExpiredPendingBookingIDs(s.now())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.expireVerificationOne(ctx, id); err != nil {
			utils.LogEvent("", "reconcile", "expire_verification_row_failed",
				fmt.Sprintf("booking=%d err=%v", id, err))
		}
	}
	return nil
}

func (s ReconcileService) expireVerificationOne(ctx context.Context, bookingID int64) error {
	b, err := s.Bookings.GetByID(bookingID)
	if err != nil {
		return err
	}
	if b.Status != models.BookingConfirmed {
		return nil // dual success or another job won the race
	}

	reason := "verifikasi pertemuan tidak selesai sebelum batas waktu"
	payStatus, err := s.Payments.RefundOrRelease(ctx, b, reason)
	if err != nil {
		if domain.IsPaymentFatal(err) {
			st := models.BookingFailed
			_ = s.Bookings.Update(nil, b.ID, models.BookingUpdate{Status: &st})
		}
		return err
	}

	by := "system"
	now := s.now()
	err = intdb.WithTxRetry(ctx, s.db(), txAttempts, func(tx *sql.Tx) error {
		cur, err := s.Bookings.GetForUpdate(tx, bookingID)
		if err != nil {
			return err
		}
		if cur.Status != models.BookingConfirmed {
			return nil
		}
		v, err := s.Verifications.GetForUpdate(tx, bookingID)
		if err != nil {
			return err
		}
		if v.Status != models.VerificationPending || !s.now().After(v.Deadline) {
			return nil
		}
		if err := s.Verifications.SetStatus(tx, v.ID, models.VerificationExpired); err != nil {
			return err
		}
		st := models.BookingCancelled
		r := reason
		return s.Bookings.Update(tx, bookingID, models.BookingUpdate{
			Status:        &st,
			PaymentStatus: &payStatus,
			CancelledBy:   &by,
			CancelReason:  &r,
			CancelledAt:   &now,
		})
	})
	if err != nil {
		return err
	}

	s.notifier().Emit(ctx, events.BookingCancelled, b.ID, []int64{b.ClientID, b.CompanionID}, map[string]any{
		"reason": reason,
	})
	utils.LogEvent("", "reconcile", "verification_expired",
		fmt.Sprintf("booking=%d payment=%s", b.ID, payStatus))
	return nil
}

// ExpireRequests expires custom requests past their validity window or
// proposed time with no companion response.
func (s ReconcileService) ExpireRequests(ctx context.Context) error {
	ids, err := s.Requests.ExpiredPendingIDs(s.now())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.expireRequestOne(ctx, id); err != nil {
			utils.LogEvent("", "reconcile", "expire_request_row_failed",
				fmt.Sprintf("request=%d err=%v", id, err))
		}
	}
	return nil
}

func (s ReconcileService) expireRequestOne(ctx context.Context, requestID int64) error {
	rq, err := s.Requests.GetByID(requestID)
	if err != nil {
		return err
	}
	if rq.Status != models.RequestPending {
		return nil
	}

	if err := s.Payments.ReleaseRequestHold(ctx, rq.PaymentHoldRef, rq.TotalAmount, "request kedaluwarsa"); err != nil {
		return err
	}

	err = intdb.WithTxRetry(ctx, s.db(), txAttempts, func(tx *sql.Tx) error {
		cur, err := s.Requests.GetForUpdate(tx, requestID)
		if err != nil {
			return err
		}
		if cur.Status != models.RequestPending {
			return nil
		}
		return s.Requests.SetStatus(tx, requestID, models.RequestExpired)
	})
	if err != nil {
		return err
	}

	s.notifier().EmitRequest(ctx, events.BookingExpired, rq.ID, []int64{rq.ClientID, rq.CompanionID}, nil)
	return nil
}
