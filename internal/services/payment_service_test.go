package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"temani/internal/domain"
	"temani/internal/domain/models"
	"temani/internal/payment"
	"temani/internal/repositories"

	"github.com/DATA-DOG/go-sqlmock"
)

// fakeGateway implements payment.Gateway with canned responses and
// call counters.
type fakeGateway struct {
	status payment.HoldStatus

	authorizeErr error
	captureErr   error
	capturedAmt  int64
	refundErr    error
	transferErr  error
	releaseErr   error

	authorizeCalls int
	captureCalls   int
	refundCalls    int
	transferCalls  int
	releaseCalls   int
}

func (g *fakeGateway) Authorize(ctx context.Context, amount int64, payerToken string, metadata map[string]any) (string, error) {
	g.authorizeCalls++
	if g.authorizeErr != nil {
		return "", g.authorizeErr
	}
	return "hold_test", nil
}

func (g *fakeGateway) Capture(ctx context.Context, holdRef string) (int64, error) {
	g.captureCalls++
	if g.captureErr != nil {
		return 0, g.captureErr
	}
	return g.capturedAmt, nil
}

func (g *fakeGateway) RetrieveStatus(ctx context.Context, holdRef string) (payment.HoldStatus, error) {
	return g.status, nil
}

func (g *fakeGateway) Transfer(ctx context.Context, recipient string, amount int64, metadata map[string]any) (string, error) {
	g.transferCalls++
	if g.transferErr != nil {
		return "", g.transferErr
	}
	return "trf_test", nil
}

func (g *fakeGateway) Refund(ctx context.Context, holdRef string, amount int64, reason string) (string, error) {
	g.refundCalls++
	if g.refundErr != nil {
		return "", g.refundErr
	}
	return "rfnd_test", nil
}

func (g *fakeGateway) ReleaseHold(ctx context.Context, holdRef string) error {
	g.releaseCalls++
	return g.releaseErr
}

// recordingNotifier captures emitted event keys for assertions.
type recordingNotifier struct {
	keys []string
}

func (n *recordingNotifier) Emit(ctx context.Context, key string, bookingID int64, recipients []int64, data map[string]any) {
	n.keys = append(n.keys, key)
}

func (n *recordingNotifier) EmitRequest(ctx context.Context, key string, requestID int64, recipients []int64, data map[string]any) {
	n.keys = append(n.keys, key)
}

var bookingCols = []string{
	"id", "client_id", "companion_id", "start_at", "end_at", "total_amount",
	"status", "payment_status", "payment_hold_ref",
	"meeting_lat", "meeting_lng", "meeting_address",
	"verification_required", "transfer_pending",
	"cancelled_by", "cancel_reason", "cancelled_at", "created_at",
}

func bookingRow(id int64, status models.BookingStatus, payStatus models.PaymentStatus, holdRef string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(bookingCols).AddRow(
		id, int64(10), int64(20), now.Add(time.Hour), now.Add(2*time.Hour), int64(100000),
		string(status), string(payStatus), holdRef,
		-6.2, 106.8, "Taman Menteng",
		true, false,
		"", "", nil, now,
	)
}

func testBooking(id int64, status models.BookingStatus, payStatus models.PaymentStatus, holdRef string) models.Booking {
	return models.Booking{
		ID:             id,
		ClientID:       10,
		CompanionID:    20,
		TotalAmount:    100000,
		Status:         status,
		PaymentStatus:  payStatus,
		PaymentHoldRef: holdRef,
	}
}

func TestRefundOrReleaseCapturedIssuesRefund(t *testing.T) {
	gw := &fakeGateway{status: payment.HoldCaptured}
	n := &recordingNotifier{}
	svc := PaymentService{Gateway: gw, Notify: n}

	st, err := svc.RefundOrRelease(context.Background(), testBooking(1, models.BookingConfirmed, models.PaymentPaid, "hold_1"), "batal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != models.PaymentRefunded {
		t.Fatalf("expected refunded, got %s", st)
	}
	if gw.refundCalls != 1 || gw.releaseCalls != 0 {
		t.Fatalf("expected one refund and no release, got %d/%d", gw.refundCalls, gw.releaseCalls)
	}
	if len(n.keys) != 1 || n.keys[0] != "payment.refunded" {
		t.Fatalf("expected payment.refunded event, got %v", n.keys)
	}
}

func TestRefundOrReleaseAuthorizedReleasesHold(t *testing.T) {
	gw := &fakeGateway{status: payment.HoldAuthorized}
	svc := PaymentService{Gateway: gw}

	st, err := svc.RefundOrRelease(context.Background(), testBooking(1, models.BookingPending, models.PaymentAuthorized, "hold_1"), "batal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != models.PaymentCancelled {
		t.Fatalf("expected cancelled, got %s", st)
	}
	if gw.releaseCalls != 1 || gw.refundCalls != 0 {
		t.Fatalf("release must run exactly once, refund never; got %d/%d", gw.releaseCalls, gw.refundCalls)
	}
}

func TestRefundOrReleaseCanceledRemotelyOnlyFixesMirror(t *testing.T) {
	gw := &fakeGateway{status: payment.HoldCanceled}
	svc := PaymentService{Gateway: gw}

	st, err := svc.RefundOrRelease(context.Background(), testBooking(1, models.BookingPending, models.PaymentAuthorized, "hold_1"), "batal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != models.PaymentCancelled {
		t.Fatalf("expected cancelled, got %s", st)
	}
	if gw.refundCalls != 0 || gw.releaseCalls != 0 {
		t.Fatalf("no gateway mutation expected for an already-canceled hold")
	}
}

func TestRefundFailureOnCapturedFundsIsFatal(t *testing.T) {
	gw := &fakeGateway{status: payment.HoldCaptured, refundErr: errors.New("processor down")}
	svc := PaymentService{Gateway: gw}

	_, err := svc.RefundOrRelease(context.Background(), testBooking(1, models.BookingConfirmed, models.PaymentPaid, "hold_1"), "batal")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsPaymentFatal(err) {
		t.Fatalf("refund failure on captured funds must be fatal: %v", err)
	}
}

func TestCaptureAndTransferSkipsWhenNotAuthorized(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id=(.+)").
		WillReturnRows(bookingRow(1, models.BookingMeetingStarted, models.PaymentPaid, "hold_1"))

	gw := &fakeGateway{}
	svc := PaymentService{Gateway: gw, Bookings: repositories.BookingRepository{DB: db}, DB: db}

	if err := svc.CaptureAndTransfer(context.Background(), 1); err != nil {
		t.Fatalf("second capture must be a no-op, got %v", err)
	}
	if gw.captureCalls != 0 {
		t.Fatalf("capture must not run twice")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCaptureFailureMarksPaymentFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id=(.+)").
		WillReturnRows(bookingRow(1, models.BookingMeetingStarted, models.PaymentAuthorized, "hold_1"))
	mock.ExpectExec("UPDATE bookings SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	gw := &fakeGateway{captureErr: errors.New("card expired")}
	svc := PaymentService{Gateway: gw, Bookings: repositories.BookingRepository{DB: db}, DB: db}

	err = svc.CaptureAndTransfer(context.Background(), 1)
	if err == nil {
		t.Fatalf("expected capture error")
	}
	if !domain.IsPayment(err) || domain.IsPaymentFatal(err) {
		t.Fatalf("capture failure should be a non-fatal payment error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCaptureWithoutPayoutDestinationQueuesTransfer(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id=(.+)").
		WillReturnRows(bookingRow(1, models.BookingMeetingStarted, models.PaymentAuthorized, "hold_1"))
	// mirror write to paid
	mock.ExpectExec("UPDATE bookings SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// companion never finished payout onboarding
	mock.ExpectQuery("SELECT COALESCE\\(payout_recipient").
		WillReturnRows(sqlmock.NewRows([]string{"payout_recipient"}).AddRow(""))
	mock.ExpectExec("INSERT INTO pending_transfers").
		WillReturnResult(sqlmock.NewResult(1, 1))
	// transfer_pending flag
	mock.ExpectExec("UPDATE bookings SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	gw := &fakeGateway{capturedAmt: 100000}
	n := &recordingNotifier{}
	svc := PaymentService{
		Gateway:    gw,
		Bookings:   repositories.BookingRepository{DB: db},
		Users:      repositories.UserRepository{DB: db},
		Transfers:  repositories.TransferRepository{DB: db},
		Notify:     n,
		FeePercent: 15,
		DB:         db,
	}

	if err := svc.CaptureAndTransfer(context.Background(), 1); err != nil {
		t.Fatalf("transfer problems must not fail completion: %v", err)
	}
	if gw.transferCalls != 0 {
		t.Fatalf("transfer must not be attempted without a recipient")
	}
	found := false
	for _, k := range n.keys {
		if k == "payment.transfer_pending" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected payment.transfer_pending event, got %v", n.keys)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
