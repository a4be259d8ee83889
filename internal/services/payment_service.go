package services

import (
	"context"
	"database/sql"
	"fmt"

	intconfig "temani/internal/config"
	"temani/internal/domain"
	"temani/internal/domain/models"
	"temani/internal/events"
	"temani/internal/payment"
	"temani/internal/repositories"
	"temani/internal/utils"
)

// PaymentService orchestrates hold/capture/transfer/refund against the
// gateway. Local payment_status is a mirror; before any irreversible
// action the service re-queries the gateway for the hold's actual
// state.
type PaymentService struct {
	Gateway    payment.Gateway
	Bookings   repositories.BookingRepository
	Users      repositories.UserRepository
	Transfers  repositories.TransferRepository
	Notify     events.Notifier
	Account    *payment.AccountCache
	FeePercent int64
	DB         *sql.DB
}

func (s PaymentService) db() *sql.DB {
	if s.DB != nil {
		return s.DB
	}
	return intconfig.DB
}

func (s PaymentService) notifier() events.Notifier {
	if s.Notify != nil {
		return s.Notify
	}
	return events.NopNotifier{}
}

// CreateHold authorizes funds before any booking row exists. The
// caller only creates the booking once this returns a hold reference.
func (s PaymentService) CreateHold(ctx context.Context, amount int64, payerToken string, metadata map[string]any) (string, error) {
	if amount <= 0 {
		return "", domain.ValidationError{Field: "total_amount", Msg: "jumlah tidak valid"}
	}
	if payerToken == "" {
		return "", domain.ValidationError{Field: "payment_token", Msg: "token pembayaran kosong"}
	}
	ref, err := s.Gateway.Authorize(ctx, amount, payerToken, metadata)
	if err != nil {
		return "", domain.PaymentError{Op: "authorize", Err: err}
	}
	return ref, nil
}

// EnsureHoldValid confirms the hold is still in a capturable state on
// the processor side. Used as an acceptance guard.
func (s PaymentService) EnsureHoldValid(ctx context.Context, holdRef string) error {
	remote, err := s.Gateway.RetrieveStatus(ctx, holdRef)
	if err != nil {
		return domain.PaymentError{Op: "retrieve_status", Ref: holdRef, Err: err}
	}
	if remote != payment.HoldAuthorized {
		return domain.ConflictError{Resource: "pembayaran", Msg: fmt.Sprintf("hold tidak lagi valid (%s)", remote)}
	}
	return nil
}

// ReleaseOrphanHold reverses a hold whose booking row failed to
// create. Best effort; a leftover hold expires on the processor side.
func (s PaymentService) ReleaseOrphanHold(ctx context.Context, holdRef string) {
	if holdRef == "" {
		return
	}
	if err := s.Gateway.ReleaseHold(ctx, holdRef); err != nil {
		utils.LogEvent("", "payment", "release_orphan", fmt.Sprintf("hold=%s err=%v", holdRef, err))
	}
}

// CaptureAndTransfer converts the hold into money and pays out the
// companion share. Called strictly after the verification transaction
// has committed: a failure here never un-verifies the meeting.
//
// Capture failure marks payment_status=failed and surfaces for manual
// follow-up. Transfer failure never fails the booking; the computed
// split is persisted for manual settlement instead.
func (s PaymentService) CaptureAndTransfer(ctx context.Context, bookingID int64) error {
	b, err := s.Bookings.GetByID(bookingID)
	if err != nil {
		return err
	}
	// Guarded to at most one capture per booking.
	if b.PaymentStatus != models.PaymentAuthorized {
		utils.LogEvent("", "payment", "capture_skip",
			fmt.Sprintf("booking=%d payment_status=%s", b.ID, b.PaymentStatus))
		return nil
	}
	if b.PaymentHoldRef == "" {
		return domain.InternalError{Msg: fmt.Sprintf("booking %d tanpa hold ref", b.ID)}
	}

	captured, err := s.Gateway.Capture(ctx, b.PaymentHoldRef)
	if err != nil {
		failed := models.PaymentFailed
		_ = s.Bookings.Update(nil, b.ID, models.BookingUpdate{PaymentStatus: &failed})
		utils.LogEvent("", "payment", "capture_failed",
			fmt.Sprintf("booking=%d hold=%s err=%v", b.ID, b.PaymentHoldRef, err))
		return domain.PaymentError{Op: "capture", Ref: b.PaymentHoldRef, Err: err}
	}

	paid := models.PaymentPaid
	if err := s.Bookings.Update(nil, b.ID, models.BookingUpdate{PaymentStatus: &paid}); err != nil {
		// Money moved but the mirror write failed; reconciliation will
		// repair from the gateway's status.
		utils.LogEvent("", "payment", "capture_mirror_failed",
			fmt.Sprintf("booking=%d err=%v", b.ID, err))
	}
	s.notifier().Emit(ctx, events.PaymentCaptured, b.ID, []int64{b.ClientID, b.CompanionID}, map[string]any{
		"amount":   captured,
		"platform": s.platformAccount(ctx),
	})

	return s.transferShare(ctx, b, captured)
}

func (s PaymentService) transferShare(ctx context.Context, b models.Booking, captured int64) error {
	fee, net := utils.SplitFee(captured, s.FeePercent)

	recipient, err := s.Users.PayoutRecipient(b.CompanionID)
	if err == nil && recipient != "" {
		ref, terr := s.Gateway.Transfer(ctx, recipient, net, map[string]any{"booking_id": b.ID})
		if terr == nil {
			utils.LogEvent("", "payment", "transfer_ok",
				fmt.Sprintf("booking=%d ref=%s net=%d fee=%d", b.ID, ref, net, fee))
			return nil
		}
		err = terr
	} else if err == nil {
		err = fmt.Errorf("companion %d belum punya tujuan payout", b.CompanionID)
	}

	// Transfer could not be made now. Persist the split and flag the
	// booking; completion proceeds regardless.
	reason := err.Error()
	if perr := s.Transfers.CreatePending(nil, models.PendingTransfer{
		BookingID:   b.ID,
		CompanionID: b.CompanionID,
		GrossAmount: captured,
		FeeAmount:   fee,
		NetAmount:   net,
		Reason:      reason,
	}); perr != nil {
		utils.LogEvent("", "payment", "pending_transfer_failed",
			fmt.Sprintf("booking=%d err=%v", b.ID, perr))
	}
	flag := true
	_ = s.Bookings.Update(nil, b.ID, models.BookingUpdate{TransferPending: &flag})
	s.notifier().Emit(ctx, events.PaymentTransferPending, b.ID, []int64{b.CompanionID}, map[string]any{
		"net_amount": net,
		"reason":     reason,
	})
	utils.LogEvent("", "payment", "transfer_pending",
		fmt.Sprintf("booking=%d net=%d reason=%s", b.ID, net, reason))
	return nil
}

// RefundOrRelease returns held or captured funds to the client. The
// gateway is always consulted first because the local mirror can lag:
//
//   - captured remotely: issue a real monetary refund
//   - still authorized:  reverse the hold, zero money moved
//   - already canceled:  no-op, just correct the mirror
//
// The returned status is what the caller should write to the booking
// row after its own transition commits. A refund failure on captured
// funds is fatal and must route the booking to failed, never to
// cancelled.
func (s PaymentService) RefundOrRelease(ctx context.Context, b models.Booking, reason string) (models.PaymentStatus, error) {
	if b.PaymentHoldRef == "" {
		return models.PaymentCancelled, nil
	}

	remote, err := s.Gateway.RetrieveStatus(ctx, b.PaymentHoldRef)
	if err != nil {
		return "", domain.PaymentError{Op: "retrieve_status", Ref: b.PaymentHoldRef, Err: err}
	}

	switch remote {
	case payment.HoldCaptured:
		ref, rerr := s.Gateway.Refund(ctx, b.PaymentHoldRef, b.TotalAmount, reason)
		if rerr != nil {
			utils.LogEvent("", "payment", "refund_failed",
				fmt.Sprintf("booking=%d hold=%s err=%v", b.ID, b.PaymentHoldRef, rerr))
			return "", domain.PaymentError{Op: "refund", Ref: b.PaymentHoldRef, Fatal: true, Err: rerr}
		}
		utils.LogEvent("", "payment", "refund_issued",
			fmt.Sprintf("booking=%d hold=%s refund=%s remote=captured", b.ID, b.PaymentHoldRef, ref))
		s.notifier().Emit(ctx, events.PaymentRefunded, b.ID, []int64{b.ClientID}, map[string]any{
			"amount": b.TotalAmount,
			"reason": reason,
		})
		return models.PaymentRefunded, nil

	case payment.HoldAuthorized:
		if rerr := s.Gateway.ReleaseHold(ctx, b.PaymentHoldRef); rerr != nil {
			return "", domain.PaymentError{Op: "release", Ref: b.PaymentHoldRef, Err: rerr}
		}
		utils.LogEvent("", "payment", "hold_released",
			fmt.Sprintf("booking=%d hold=%s remote=authorized", b.ID, b.PaymentHoldRef))
		return models.PaymentCancelled, nil

	default: // canceled remotely, mirror was stale
		utils.LogEvent("", "payment", "mirror_corrected",
			fmt.Sprintf("booking=%d hold=%s remote=canceled", b.ID, b.PaymentHoldRef))
		return models.PaymentCancelled, nil
	}
}

// ReleaseRequestHold settles the hold of a booking request that never
// became a booking. Same remote-first branch as RefundOrRelease but
// keyed by the bare hold reference.
func (s PaymentService) ReleaseRequestHold(ctx context.Context, holdRef string, amount int64, reason string) error {
	if holdRef == "" {
		return nil
	}
	remote, err := s.Gateway.RetrieveStatus(ctx, holdRef)
	if err != nil {
		return domain.PaymentError{Op: "retrieve_status", Ref: holdRef, Err: err}
	}
	switch remote {
	case payment.HoldCaptured:
		if _, rerr := s.Gateway.Refund(ctx, holdRef, amount, reason); rerr != nil {
			return domain.PaymentError{Op: "refund", Ref: holdRef, Fatal: true, Err: rerr}
		}
	case payment.HoldAuthorized:
		if rerr := s.Gateway.ReleaseHold(ctx, holdRef); rerr != nil {
			return domain.PaymentError{Op: "release", Ref: holdRef, Err: rerr}
		}
	}
	return nil
}

func (s PaymentService) platformAccount(ctx context.Context) string {
	if s.Account == nil {
		return ""
	}
	return s.Account.Get(ctx)
}
