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

const txAttempts = 3

// BookingService owns the booking status transitions, their guards and
// side effects. Payment work is delegated to PaymentService and always
// ordered so that no gateway call runs while a row lock is held.
type BookingService struct {
	Bookings repositories.BookingRepository
	Requests repositories.RequestRepository
	Payments PaymentService
	Notify   events.Notifier
	DB       *sql.DB

	CancelNotice   time.Duration
	ConflictBuffer time.Duration

	// Now is swappable in tests.
	Now func() time.Time
}

func (s BookingService) db() *sql.DB {
	if s.DB != nil {
		return s.DB
	}
	return intconfig.DB
}

func (s BookingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return utils.NowUTC()
}

func (s BookingService) notifier() events.Notifier {
	if s.Notify != nil {
		return s.Notify
	}
	return events.NopNotifier{}
}

// CreateBookingInput is what a client submits once their payment
// method is confirmed.
type CreateBookingInput struct {
	ClientID       int64
	CompanionID    int64
	StartAt        time.Time
	EndAt          time.Time
	TotalAmount    int64
	PaymentToken   string
	MeetingLat     float64
	MeetingLng     float64
	MeetingAddress string
}

// Create authorizes the hold first and only then writes the booking
// row, so no booking ever exists without a funding commitment. The
// overlap check here is advisory (buffered); acceptance re-checks with
// zero buffer and is authoritative.
func (s BookingService) Create(ctx context.Context, in CreateBookingInput) (models.Booking, error) {
	now := s.now()
	switch {
	case in.ClientID <= 0 || in.CompanionID <= 0:
		return models.Booking{}, domain.ValidationError{Field: "user", Msg: "id tidak valid"}
	case in.ClientID == in.CompanionID:
		return models.Booking{}, domain.ValidationError{Field: "companion_id", Msg: "tidak bisa booking diri sendiri"}
	case !in.StartAt.Before(in.EndAt):
		return models.Booking{}, domain.ValidationError{Field: "end_at", Msg: "interval tidak valid"}
	case in.StartAt.Before(now):
		return models.Booking{}, domain.ValidationError{Field: "start_at", Msg: "waktu sudah lewat"}
	case in.TotalAmount <= 0:
		return models.Booking{}, domain.ValidationError{Field: "total_amount", Msg: "jumlah tidak valid"}
	}

	busy, err := s.Bookings.HasOverlapWithBuffer(in.CompanionID, in.StartAt, in.EndAt, s.ConflictBuffer)
	if err != nil {
		return models.Booking{}, domain.InternalError{Err: err}
	}
	if busy {
		return models.Booking{}, domain.ConflictError{Resource: "jadwal", Msg: "companion sudah ada booking di sekitar waktu itu"}
	}

	holdRef, err := s.Payments.CreateHold(ctx, in.TotalAmount, in.PaymentToken, map[string]any{
		"client_id":    in.ClientID,
		"companion_id": in.CompanionID,
	})
	if err != nil {
		return models.Booking{}, err
	}

	b := models.Booking{
		ClientID:             in.ClientID,
		CompanionID:          in.CompanionID,
		StartAt:              in.StartAt.UTC(),
		EndAt:                in.EndAt.UTC(),
		TotalAmount:          in.TotalAmount,
		PaymentHoldRef:       holdRef,
		MeetingLat:           in.MeetingLat,
		MeetingLng:           in.MeetingLng,
		MeetingAddress:       utils.NormalizeSpace(in.MeetingAddress),
		VerificationRequired: true,
	}
	id, err := s.Bookings.Create(nil, b)
	if err != nil {
		s.Payments.ReleaseOrphanHold(ctx, holdRef)
		return models.Booking{}, domain.InternalError{Err: err}
	}
	b.ID = id
	b.Status = models.BookingPending
	b.PaymentStatus = models.PaymentAuthorized

	utils.LogEvent("", "booking", "created",
		fmt.Sprintf("booking=%d client=%d companion=%d hold=%s", id, in.ClientID, in.CompanionID, holdRef))
	return b, nil
}

// Accept moves pending → confirmed. Companion only, hold must still be
// valid remotely, and no confirmed booking of the companion may
// overlap (zero buffer). Accepting force-cancels every overlapping
// pending booking and force-rejects every overlapping pending request,
// releasing their holds after commit.
func (s BookingService) Accept(ctx context.Context, bookingID int64, actor domain.RequestContext) (models.Booking, error) {
	pre, err := s.Bookings.GetByID(bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if int64(actor.UserID) != pre.CompanionID {
		return models.Booking{}, domain.ConflictError{Resource: "booking", Msg: "hanya companion yang bisa menerima"}
	}
	if pre.Status != models.BookingPending {
		return models.Booking{}, domain.ConflictError{Resource: "booking", Msg: fmt.Sprintf("status %s tidak bisa diterima", pre.Status)}
	}

	// Remote hold check happens before any lock is taken.
	if pre.PaymentHoldRef == "" {
		return models.Booking{}, domain.ConflictError{Resource: "booking", Msg: "tidak ada hold pembayaran"}
	}
	if err := s.Payments.EnsureHoldValid(ctx, pre.PaymentHoldRef); err != nil {
		return models.Booking{}, err
	}

	var (
		accepted      models.Booking
		cancelled     []models.Booking
		rejectedReqs  []models.BookingRequest
		overlapReason = "jadwal bentrok dengan booking yang diterima"
	)
	err = intdb.WithTxRetry(ctx, s.db(), txAttempts, func(tx *sql.Tx) error {
		b, err := s.Bookings.GetForUpdate(tx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != models.BookingPending {
			return domain.ConflictError{Resource: "booking", Msg: fmt.Sprintf("status %s tidak bisa diterima", b.Status)}
		}
		cancelled, rejectedReqs, err = s.confirmInTx(tx, b, overlapReason, 0)
		if err != nil {
			return err
		}
		b.Status = models.BookingConfirmed
		accepted = b
		return nil
	})
	if err != nil {
		return models.Booking{}, err
	}

	s.settleConfirmFanout(ctx, accepted, cancelled, rejectedReqs, overlapReason)
	utils.LogEvent("", "booking", "accepted",
		fmt.Sprintf("booking=%d cancelled_siblings=%d rejected_requests=%d", accepted.ID, len(cancelled), len(rejectedReqs)))
	return accepted, nil
}

// confirmInTx applies the acceptance-time guards and side effects to a
// booking already locked in tx: the zero-buffer confirmed-overlap
// check, the transition to confirmed, and the fan-out that cancels
// overlapping pending bookings and rejects overlapping pending
// requests. excludeRequestID protects the request an acceptance is
// being spawned from; its hold now funds the booking and must never be
// released by its own fan-out. Hold releases happen post-commit via
// settleConfirmFanout.
func (s BookingService) confirmInTx(tx *sql.Tx, b models.Booking, overlapReason string, excludeRequestID int64) ([]models.Booking, []models.BookingRequest, error) {
	n, err := s.Bookings.CountOverlappingConfirmed(tx, b.CompanionID, b.StartAt, b.EndAt, b.ID)
	if err != nil {
		return nil, nil, err
	}
	if n > 0 {
		return nil, nil, domain.ConflictError{Resource: "jadwal", Msg: "sudah ada booking terkonfirmasi di waktu itu"}
	}

	confirmed := models.BookingConfirmed
	if err := s.Bookings.Update(tx, b.ID, models.BookingUpdate{Status: &confirmed}); err != nil {
		return nil, nil, err
	}

	var cancelled []models.Booking
	siblings, err := s.Bookings.OverlappingPending(tx, b.CompanionID, b.StartAt, b.EndAt, b.ID)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	by := "system"
	for _, sib := range siblings {
		st := models.BookingCancelled
		at := now
		reason := overlapReason
		if err := s.Bookings.Update(tx, sib.ID, models.BookingUpdate{
			Status:       &st,
			CancelledBy:  &by,
			CancelReason: &reason,
			CancelledAt:  &at,
		}); err != nil {
			return nil, nil, err
		}
		cancelled = append(cancelled, sib)
	}

	var rejected []models.BookingRequest
	reqs, err := s.Requests.OverlappingPending(tx, b.CompanionID, b.StartAt, b.EndAt, excludeRequestID)
	if err != nil {
		return nil, nil, err
	}
	for _, rq := range reqs {
		if err := s.Requests.SetStatus(tx, rq.ID, models.RequestRejected); err != nil {
			return nil, nil, err
		}
		rejected = append(rejected, rq)
	}
	return cancelled, rejected, nil
}

// settleConfirmFanout runs the post-commit half of an acceptance:
// release the displaced holds and notify. Failures here are
// correctable facts, never rollbacks.
func (s BookingService) settleConfirmFanout(ctx context.Context, accepted models.Booking, cancelled []models.Booking, rejected []models.BookingRequest, overlapReason string) {
	for _, sib := range cancelled {
		s.settleReleasedHold(ctx, sib, overlapReason)
		s.notifier().Emit(ctx, events.BookingCancelled, sib.ID, []int64{sib.ClientID, sib.CompanionID}, map[string]any{
			"reason": overlapReason,
		})
	}
	for _, rq := range rejected {
		if err := s.Payments.ReleaseRequestHold(ctx, rq.PaymentHoldRef, rq.TotalAmount, overlapReason); err != nil {
			utils.LogEvent("", "booking", "request_hold_release_failed",
				fmt.Sprintf("request=%d err=%v", rq.ID, err))
		}
		s.notifier().EmitRequest(ctx, events.BookingCancelled, rq.ID, []int64{rq.ClientID}, map[string]any{
			"reason": overlapReason,
		})
	}
	s.notifier().Emit(ctx, events.BookingConfirmed, accepted.ID, []int64{accepted.ClientID, accepted.CompanionID}, nil)
}

// settleReleasedHold releases a displaced booking's hold and records
// the resulting payment status.
func (s BookingService) settleReleasedHold(ctx context.Context, b models.Booking, reason string) {
	status, err := s.Payments.RefundOrRelease(ctx, b, reason)
	if err != nil {
		utils.LogEvent("", "booking", "hold_release_failed",
			fmt.Sprintf("booking=%d err=%v", b.ID, err))
		return
	}
	_ = s.Bookings.Update(nil, b.ID, models.BookingUpdate{PaymentStatus: &status})
}

// Cancel handles pending → cancelled and confirmed → cancelled by
// either party. Confirmed cancellations are gated by the minimum
// notice window; the release is always a full one, no penalties.
//
// The payment settlement runs before the local transition commits so
// that a fatal refund failure can park the booking in failed instead
// of silently marking it cancelled.
func (s BookingService) Cancel(ctx context.Context, bookingID int64, actor domain.RequestContext, reason string) (models.Booking, error) {
	b, err := s.Bookings.GetByID(bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	role, ok := b.RoleOf(int64(actor.UserID))
	if !ok {
		return models.Booking{}, domain.ConflictError{Resource: "booking", Msg: "bukan peserta booking ini"}
	}

	now := s.now()
	switch b.Status {
	case models.BookingPending:
		// either party, any time before acceptance
	case models.BookingConfirmed:
		if b.StartAt.Sub(now) < s.CancelNotice {
			return models.Booking{}, domain.ConflictError{
				Resource: "booking",
				Msg:      fmt.Sprintf("pembatalan minimal %d jam sebelum mulai", int(s.CancelNotice.Hours())),
			}
		}
	default:
		return models.Booking{}, domain.ConflictError{Resource: "booking", Msg: fmt.Sprintf("status %s tidak bisa dibatalkan", b.Status)}
	}

	payStatus, err := s.Payments.RefundOrRelease(ctx, b, reason)
	if err != nil {
		if domain.IsPaymentFatal(err) {
			s.markFailed(ctx, b.ID, err)
		}
		return models.Booking{}, err
	}

	actorRole := string(role)
	err = intdb.WithTxRetry(ctx, s.db(), txAttempts, func(tx *sql.Tx) error {
		cur, err := s.Bookings.GetForUpdate(tx, bookingID)
		if err != nil {
			return err
		}
		if cur.Status != models.BookingPending && cur.Status != models.BookingConfirmed {
			return domain.ConflictError{Resource: "booking", Msg: fmt.Sprintf("status berubah menjadi %s", cur.Status)}
		}
		st := models.BookingCancelled
		at := now
		return s.Bookings.Update(tx, bookingID, models.BookingUpdate{
			Status:        &st,
			PaymentStatus: &payStatus,
			CancelledBy:   &actorRole,
			CancelReason:  &reason,
			CancelledAt:   &at,
		})
	})
	if err != nil {
		return models.Booking{}, err
	}

	b.Status = models.BookingCancelled
	b.PaymentStatus = payStatus
	s.notifier().Emit(ctx, events.BookingCancelled, b.ID, []int64{b.ClientID, b.CompanionID}, map[string]any{
		"by":     actorRole,
		"reason": reason,
	})
	utils.LogEvent("", "booking", "cancelled",
		fmt.Sprintf("booking=%d by=%s payment=%s", b.ID, actorRole, payStatus))
	return b, nil
}

// Complete is the explicit client action for meeting_started →
// completed. (The auto-complete job covers clients who never tap.)
func (s BookingService) Complete(ctx context.Context, bookingID int64, actor domain.RequestContext) (models.Booking, error) {
	var out models.Booking
	err := intdb.WithTxRetry(ctx, s.db(), txAttempts, func(tx *sql.Tx) error {
		b, err := s.Bookings.GetForUpdate(tx, bookingID)
		if err != nil {
			return err
		}
		if int64(actor.UserID) != b.ClientID {
			return domain.ConflictError{Resource: "booking", Msg: "hanya client yang bisa menyelesaikan"}
		}
		if b.Status != models.BookingMeetingStarted {
			return domain.ConflictError{Resource: "booking", Msg: fmt.Sprintf("status %s tidak bisa diselesaikan", b.Status)}
		}
		st := models.BookingCompleted
		if err := s.Bookings.Update(tx, b.ID, models.BookingUpdate{Status: &st}); err != nil {
			return err
		}
		b.Status = st
		out = b
		return nil
	})
	if err != nil {
		return models.Booking{}, err
	}

	s.notifier().Emit(ctx, events.BookingCompleted, out.ID, []int64{out.ClientID, out.CompanionID}, nil)
	return out, nil
}

// markFailed parks a booking whose structurally required payment
// operation could not complete. payment_status is left untouched; the
// row signals manual operator intervention.
func (s BookingService) markFailed(ctx context.Context, bookingID int64, cause error) {
	st := models.BookingFailed
	if err := s.Bookings.Update(nil, bookingID, models.BookingUpdate{Status: &st}); err != nil {
		utils.LogEvent("", "booking", "mark_failed_error",
			fmt.Sprintf("booking=%d err=%v", bookingID, err))
		return
	}
	utils.LogEvent("", "booking", "marked_failed",
		fmt.Sprintf("booking=%d cause=%v", bookingID, cause))
}

// Get returns a booking visible to the actor.
func (s BookingService) Get(bookingID int64, actor domain.RequestContext) (models.Booking, error) {
	b, err := s.Bookings.GetByID(bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if _, ok := b.RoleOf(int64(actor.UserID)); !ok {
		return models.Booking{}, domain.NotFoundError{Resource: "booking"}
	}
	return b, nil
}

// List pages through the actor's bookings.
func (s BookingService) List(actor domain.RequestContext, p domain.Pagination) ([]models.Booking, int, error) {
	role := models.RoleClient
	if actor.Role == string(models.RoleCompanion) {
		role = models.RoleCompanion
	}
	return s.Bookings.ListByUser(int64(actor.UserID), role, p)
}
