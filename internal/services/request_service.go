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

// RequestService handles custom booking requests: provisional,
// possibly unscheduled proposals funded by their own hold. Acceptance
// spawns a confirmed booking carrying the request's hold; rejection
// and expiry release it.
type RequestService struct {
	Requests repositories.RequestRepository
	Bookings repositories.BookingRepository
	Booking  BookingService
	Payments PaymentService
	Notify   events.Notifier
	DB       *sql.DB

	// Validity window for requests without a proposed time.
	DefaultValidity time.Duration

	Now func() time.Time
}

func (s RequestService) db() *sql.DB {
	if s.DB != nil {
		return s.DB
	}
	return intconfig.DB
}

func (s RequestService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return utils.NowUTC()
}

func (s RequestService) notifier() events.Notifier {
	if s.Notify != nil {
		return s.Notify
	}
	return events.NopNotifier{}
}

type CreateRequestInput struct {
	ClientID      int64
	CompanionID   int64
	Message       string
	ProposedStart *time.Time
	ProposedEnd   *time.Time
	TotalAmount   int64
	PaymentToken  string
}

// Create authorizes the request's hold first, then writes the row.
func (s RequestService) Create(ctx context.Context, in CreateRequestInput) (models.BookingRequest, error) {
	now := s.now()
	switch {
	case in.ClientID <= 0 || in.CompanionID <= 0 || in.ClientID == in.CompanionID:
		return models.BookingRequest{}, domain.ValidationError{Field: "user", Msg: "id tidak valid"}
	case in.TotalAmount <= 0:
		return models.BookingRequest{}, domain.ValidationError{Field: "total_amount", Msg: "jumlah tidak valid"}
	case (in.ProposedStart == nil) != (in.ProposedEnd == nil):
		return models.BookingRequest{}, domain.ValidationError{Field: "proposed_end", Msg: "interval tidak lengkap"}
	}
	if in.ProposedStart != nil {
		if !in.ProposedStart.Before(*in.ProposedEnd) {
			return models.BookingRequest{}, domain.ValidationError{Field: "proposed_end", Msg: "interval tidak valid"}
		}
		if in.ProposedStart.Before(now) {
			return models.BookingRequest{}, domain.ValidationError{Field: "proposed_start", Msg: "waktu sudah lewat"}
		}
	}

	holdRef, err := s.Payments.CreateHold(ctx, in.TotalAmount, in.PaymentToken, map[string]any{
		"client_id":    in.ClientID,
		"companion_id": in.CompanionID,
		"kind":         "booking_request",
	})
	if err != nil {
		return models.BookingRequest{}, err
	}

	validUntil := now.Add(s.DefaultValidity)
	if in.ProposedStart != nil && in.ProposedStart.Before(validUntil) {
		validUntil = *in.ProposedStart
	}

	req := models.BookingRequest{
		ClientID:       in.ClientID,
		CompanionID:    in.CompanionID,
		Message:        utils.NormalizeSpace(in.Message),
		ProposedStart:  in.ProposedStart,
		ProposedEnd:    in.ProposedEnd,
		TotalAmount:    in.TotalAmount,
		PaymentHoldRef: holdRef,
		ValidUntil:     validUntil,
	}
	id, err := s.Requests.Create(req)
	if err != nil {
		s.Payments.ReleaseOrphanHold(ctx, holdRef)
		return models.BookingRequest{}, domain.InternalError{Err: err}
	}
	req.ID = id
	req.Status = models.RequestPending
	return req, nil
}

// AcceptRequestInput supplies the schedule and meeting point when the
// request did not propose one.
type AcceptRequestInput struct {
	StartAt        time.Time
	EndAt          time.Time
	MeetingLat     float64
	MeetingLng     float64
	MeetingAddress string
}

// Accept turns a pending request into a confirmed booking. The
// request's hold funds the booking, so the hold-before-booking
// ordering holds here too. All acceptance-time guards of the state
// machine apply, including the overlap fan-out.
func (s RequestService) Accept(ctx context.Context, requestID int64, actor domain.RequestContext, in AcceptRequestInput) (models.Booking, error) {
	pre, err := s.Requests.GetByID(requestID)
	if err != nil {
		return models.Booking{}, err
	}
	if int64(actor.UserID) != pre.CompanionID {
		return models.Booking{}, domain.ConflictError{Resource: "request", Msg: "hanya companion yang bisa menerima"}
	}
	if pre.Status != models.RequestPending {
		return models.Booking{}, domain.ConflictError{Resource: "request", Msg: fmt.Sprintf("status %s tidak bisa diterima", pre.Status)}
	}
	if err := s.Payments.EnsureHoldValid(ctx, pre.PaymentHoldRef); err != nil {
		return models.Booking{}, err
	}

	start, end := in.StartAt, in.EndAt
	if pre.ProposedStart != nil {
		start, end = *pre.ProposedStart, *pre.ProposedEnd
	}
	now := s.now()
	if !start.Before(end) || start.Before(now) {
		return models.Booking{}, domain.ValidationError{Field: "start_at", Msg: "jadwal tidak valid"}
	}

	var (
		booking   models.Booking
		cancelled []models.Booking
		rejected  []models.BookingRequest
	)
	overlapReason := "jadwal bentrok dengan booking yang diterima"

	err = intdb.WithTxRetry(ctx, s.db(), txAttempts, func(tx *sql.Tx) error {
		rq, err := s.Requests.GetForUpdate(tx, requestID)
		if err != nil {
			return err
		}
		if rq.Status != models.RequestPending {
			return domain.ConflictError{Resource: "request", Msg: fmt.Sprintf("status %s tidak bisa diterima", rq.Status)}
		}
		if now.After(rq.ValidUntil) {
			return domain.ConflictError{Resource: "request", Msg: "request sudah kedaluwarsa"}
		}

		b := models.Booking{
			ClientID:             rq.ClientID,
			CompanionID:          rq.CompanionID,
			StartAt:              start.UTC(),
			EndAt:                end.UTC(),
			TotalAmount:          rq.TotalAmount,
			PaymentHoldRef:       rq.PaymentHoldRef,
			MeetingLat:           in.MeetingLat,
			MeetingLng:           in.MeetingLng,
			MeetingAddress:       utils.NormalizeSpace(in.MeetingAddress),
			VerificationRequired: true,
		}
		id, err := s.Bookings.Create(tx, b)
		if err != nil {
			return err
		}
		b.ID = id

		cancelled, rejected, err = s.Booking.confirmInTx(tx, b, overlapReason, rq.ID)
		if err != nil {
			return err
		}
		if err := s.Requests.SetStatus(tx, rq.ID, models.RequestAccepted); err != nil {
			return err
		}

		b.Status = models.BookingConfirmed
		b.PaymentStatus = models.PaymentAuthorized
		booking = b
		return nil
	})
	if err != nil {
		return models.Booking{}, err
	}

	s.Booking.settleConfirmFanout(ctx, booking, cancelled, rejected, overlapReason)
	utils.LogEvent("", "request", "accepted",
		fmt.Sprintf("request=%d booking=%d", requestID, booking.ID))
	return booking, nil
}

// Reject declines a pending request and releases its hold.
func (s RequestService) Reject(ctx context.Context, requestID int64, actor domain.RequestContext, reason string) error {
	rq, err := s.Requests.GetByID(requestID)
	if err != nil {
		return err
	}
	if int64(actor.UserID) != rq.CompanionID {
		return domain.ConflictError{Resource: "request", Msg: "hanya companion yang bisa menolak"}
	}
	if rq.Status != models.RequestPending {
		return domain.ConflictError{Resource: "request", Msg: fmt.Sprintf("status %s tidak bisa ditolak", rq.Status)}
	}

	if err := s.Payments.ReleaseRequestHold(ctx, rq.PaymentHoldRef, rq.TotalAmount, reason); err != nil {
		return err
	}

	err = intdb.WithTxRetry(ctx, s.db(), txAttempts, func(tx *sql.Tx) error {
		cur, err := s.Requests.GetForUpdate(tx, requestID)
		if err != nil {
			return err
		}
		if cur.Status != models.RequestPending {
			return domain.ConflictError{Resource: "request", Msg: fmt.Sprintf("status berubah menjadi %s", cur.Status)}
		}
		return s.Requests.SetStatus(tx, requestID, models.RequestRejected)
	})
	if err != nil {
		return err
	}

	s.notifier().EmitRequest(ctx, events.BookingCancelled, rq.ID, []int64{rq.ClientID}, map[string]any{
		"reason": reason,
	})
	return nil
}

// Get returns a request visible to the actor.
func (s RequestService) Get(requestID int64, actor domain.RequestContext) (models.BookingRequest, error) {
	rq, err := s.Requests.GetByID(requestID)
	if err != nil {
		return models.BookingRequest{}, err
	}
	uid := int64(actor.UserID)
	if uid != rq.ClientID && uid != rq.CompanionID {
		return models.BookingRequest{}, domain.NotFoundError{Resource: "booking request"}
	}
	return rq, nil
}
