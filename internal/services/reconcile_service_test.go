package services

import (
	"context"
	"testing"

	"temani/internal/domain/models"
	"temani/internal/payment"
	"temani/internal/repositories"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestExpirePendingReleasesHoldAndExpires(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM bookings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id=(.+)").
		WillReturnRows(bookingRow(1, models.BookingPending, models.PaymentAuthorized, "hold_1"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id=(.+) FOR UPDATE").
		WillReturnRows(bookingRow(1, models.BookingPending, models.PaymentAuthorized, "hold_1"))
	mock.ExpectExec("UPDATE bookings SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	gw := &fakeGateway{status: payment.HoldAuthorized}
	n := &recordingNotifier{}
	svc := ReconcileService{
		Bookings: repositories.BookingRepository{DB: db},
		Payments: PaymentService{Gateway: gw},
		Notify:   n,
		DB:       db,
	}

	if err := svc.ExpirePending(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.releaseCalls != 1 || gw.refundCalls != 0 {
		t.Fatalf("expired pending booking must release its hold; got release=%d refund=%d", gw.releaseCalls, gw.refundCalls)
	}
	found := false
	for _, k := range n.keys {
		if k == "booking.expired" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected booking.expired event, got %v", n.keys)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExpirePendingSkipsAlreadySettledRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	// candidate query raced: the row was accepted in the meantime
	mock.ExpectQuery("SELECT id FROM bookings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id=(.+)").
		WillReturnRows(bookingRow(1, models.BookingConfirmed, models.PaymentAuthorized, "hold_1"))

	gw := &fakeGateway{status: payment.HoldAuthorized}
	svc := ReconcileService{
		Bookings: repositories.BookingRepository{DB: db},
		Payments: PaymentService{Gateway: gw},
		DB:       db,
	}

	if err := svc.ExpirePending(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.releaseCalls != 0 {
		t.Fatalf("settled row must not be touched")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNoShowRefundsCapturedHold(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM bookings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id=(.+)").
		WillReturnRows(bookingRow(1, models.BookingConfirmed, models.PaymentAuthorized, "hold_1"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id=(.+) FOR UPDATE").
		WillReturnRows(bookingRow(1, models.BookingConfirmed, models.PaymentAuthorized, "hold_1"))
	mock.ExpectExec("UPDATE bookings SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// gateway says the hold was captured out-of-band: a real refund
	// must be issued, not a release
	gw := &fakeGateway{status: payment.HoldCaptured}
	n := &recordingNotifier{}
	svc := ReconcileService{
		Bookings: repositories.BookingRepository{DB: db},
		Payments: PaymentService{Gateway: gw, Notify: n},
		Notify:   n,
		DB:       db,
	}

	if err := svc.RefundNoShows(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.refundCalls != 1 || gw.releaseCalls != 0 {
		t.Fatalf("captured hold must be refunded; got refund=%d release=%d", gw.refundCalls, gw.releaseCalls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAutoCompleteFinishesPaidMeetings(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM bookings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id=(.+) FOR UPDATE").
		WillReturnRows(bookingRow(1, models.BookingMeetingStarted, models.PaymentPaid, "hold_1"))
	mock.ExpectExec("UPDATE bookings SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n := &recordingNotifier{}
	svc := ReconcileService{
		Bookings: repositories.BookingRepository{DB: db},
		Notify:   n,
		DB:       db,
	}

	if err := svc.AutoComplete(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.keys) != 1 || n.keys[0] != "booking.completed" {
		t.Fatalf("expected booking.completed event, got %v", n.keys)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRunRejectsUnknownJob(t *testing.T) {
	svc := ReconcileService{}
	if err := svc.Run(context.Background(), "tidy_up"); err == nil {
		t.Fatalf("unknown job must error")
	}
}

func TestJobNamesStable(t *testing.T) {
	want := []string{
		JobIssueCodes, JobExpirePending, JobRefundNoShows,
		JobAutoComplete, JobExpireVerifications, JobExpireRequests,
	}
	if len(JobNames) != len(want) {
		t.Fatalf("job list drifted: %v", JobNames)
	}
	for i, n := range want {
		if JobNames[i] != n {
			t.Fatalf("job order drifted at %d: %s", i, JobNames[i])
		}
	}
}
