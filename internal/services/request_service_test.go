package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"temani/internal/domain"
	"temani/internal/domain/models"
	"temani/internal/events"
	"temani/internal/payment"
	"temani/internal/repositories"

	"github.com/DATA-DOG/go-sqlmock"
)

func newRequestService(db *sql.DB, gw payment.Gateway, notify events.Notifier, now time.Time) RequestService {
	pay := PaymentService{Gateway: gw, Bookings: repositories.BookingRepository{DB: db}, DB: db}
	return RequestService{
		Requests: repositories.RequestRepository{DB: db},
		Bookings: repositories.BookingRepository{DB: db},
		Booking: BookingService{
			Bookings: repositories.BookingRepository{DB: db},
			Requests: repositories.RequestRepository{DB: db},
			Payments: pay,
			Notify:   notify,
			DB:       db,
			Now:      func() time.Time { return now },
		},
		Payments: pay,
		Notify:   notify,
		DB:       db,
		Now:      func() time.Time { return now },
	}
}

var requestCols = []string{
	"id", "client_id", "companion_id", "message",
	"proposed_start", "proposed_end", "total_amount",
	"payment_hold_ref", "status", "valid_until", "created_at",
}

func requestRow(status string, validUntil time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(requestCols).AddRow(
		5, 10, 20, "halo",
		nil, nil, int64(150000),
		"hold_req", status, validUntil, validUntil.Add(-time.Hour),
	)
}

func scheduledRequestRow(status string, start, end time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(requestCols).AddRow(
		5, 10, 20, "halo",
		start, end, int64(150000),
		"hold_req", status, start, start.Add(-24*time.Hour),
	)
}

func TestRequestAcceptKeepsOwnHold(t *testing.T) {
	// The accepted request overlaps its own proposed interval. The
	// fan-out must skip it: its hold funds the new booking.
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM booking_requests WHERE id=\\? LIMIT 1").
		WillReturnRows(scheduledRequestRow("pending", start, end))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM booking_requests WHERE id=\\? FOR UPDATE").
		WillReturnRows(scheduledRequestRow("pending", start, end))
	mock.ExpectExec("INSERT INTO bookings").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM bookings").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec("UPDATE bookings SET status=\\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM bookings\\s+WHERE companion_id=\\? AND id<>\\? AND status=\\?").
		WillReturnRows(sqlmock.NewRows(bookingCols))
	mock.ExpectQuery("SELECT (.+) FROM booking_requests\\s+WHERE companion_id=\\? AND status=\\? AND id<>\\?").
		WithArgs(int64(20), "pending", int64(5), end, start).
		WillReturnRows(sqlmock.NewRows(requestCols))
	mock.ExpectExec("UPDATE booking_requests SET status=\\?").
		WithArgs("accepted", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	gw := &fakeGateway{status: payment.HoldAuthorized}
	notify := &recordingNotifier{}
	svc := newRequestService(db, gw, notify, now)

	actor := domain.RequestContext{UserID: 20, Role: "companion"}
	booking, err := svc.Accept(context.Background(), 5, actor, AcceptRequestInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.ID != 42 || booking.Status != models.BookingConfirmed {
		t.Fatalf("expected confirmed booking 42, got id=%d status=%s", booking.ID, booking.Status)
	}
	if booking.PaymentHoldRef != "hold_req" {
		t.Fatalf("booking must carry the request's hold, got %q", booking.PaymentHoldRef)
	}
	if gw.releaseCalls != 0 || gw.refundCalls != 0 {
		t.Fatalf("acceptance must never touch the funding hold; got release=%d refund=%d", gw.releaseCalls, gw.refundCalls)
	}
	for _, k := range notify.keys {
		if k == "booking.cancelled" {
			t.Fatalf("no cancellation may be emitted for the accepted request")
		}
	}
	if len(notify.keys) == 0 || notify.keys[len(notify.keys)-1] != "booking.confirmed" {
		t.Fatalf("expected booking.confirmed, got %v", notify.keys)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRequestCreateValidation(t *testing.T) {
	gw := &fakeGateway{}
	svc := RequestService{
		Payments: PaymentService{Gateway: gw},
		Now:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   CreateRequestInput
	}{
		{"self request", CreateRequestInput{ClientID: 10, CompanionID: 10, TotalAmount: 1000, PaymentToken: "tok"}},
		{"zero amount", CreateRequestInput{ClientID: 10, CompanionID: 20, TotalAmount: 0, PaymentToken: "tok"}},
		{"half interval", CreateRequestInput{ClientID: 10, CompanionID: 20, TotalAmount: 1000, PaymentToken: "tok", ProposedStart: &start}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.in); !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if gw.authorizeCalls != 0 {
		t.Fatalf("no hold may be created for invalid input")
	}
}

func TestRequestRejectReleasesHold(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM booking_requests WHERE id=\\? LIMIT 1").
		WillReturnRows(requestRow("pending", now.Add(time.Hour)))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM booking_requests WHERE id=\\? FOR UPDATE").
		WillReturnRows(requestRow("pending", now.Add(time.Hour)))
	mock.ExpectExec("UPDATE booking_requests SET status=\\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	gw := &fakeGateway{status: payment.HoldAuthorized}
	notify := &recordingNotifier{}
	svc := newRequestService(db, gw, notify, now)

	actor := domain.RequestContext{UserID: 20, Role: "companion"}
	if err := svc.Reject(context.Background(), 5, actor, "jadwal penuh"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.releaseCalls != 1 || gw.refundCalls != 0 {
		t.Fatalf("expected one release and no refund, got release=%d refund=%d", gw.releaseCalls, gw.refundCalls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRequestRejectOnlyCompanion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM booking_requests WHERE id=\\? LIMIT 1").
		WillReturnRows(requestRow("pending", now.Add(time.Hour)))

	gw := &fakeGateway{status: payment.HoldAuthorized}
	svc := newRequestService(db, gw, &recordingNotifier{}, now)

	actor := domain.RequestContext{UserID: 10, Role: "client"}
	err = svc.Reject(context.Background(), 5, actor, "")
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if gw.releaseCalls != 0 {
		t.Fatalf("client must not release the hold")
	}
}

func TestRequestRejectRefundsCapturedHold(t *testing.T) {
	// A hold captured out of band still gets the money back.
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM booking_requests WHERE id=\\? LIMIT 1").
		WillReturnRows(requestRow("pending", now.Add(time.Hour)))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM booking_requests WHERE id=\\? FOR UPDATE").
		WillReturnRows(requestRow("pending", now.Add(time.Hour)))
	mock.ExpectExec("UPDATE booking_requests SET status=\\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	gw := &fakeGateway{status: payment.HoldCaptured}
	svc := newRequestService(db, gw, &recordingNotifier{}, now)

	actor := domain.RequestContext{UserID: 20, Role: "companion"}
	if err := svc.Reject(context.Background(), 5, actor, "batal"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.refundCalls != 1 || gw.releaseCalls != 0 {
		t.Fatalf("expected refund on captured hold, got refund=%d release=%d", gw.refundCalls, gw.releaseCalls)
	}
}

func TestRequestGetHidesFromStrangers(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM booking_requests WHERE id=\\? LIMIT 1").
		WillReturnRows(requestRow("pending", now.Add(time.Hour)))

	svc := newRequestService(db, &fakeGateway{}, &recordingNotifier{}, now)
	_, err = svc.Get(5, domain.RequestContext{UserID: 99, Role: "client"})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}
}
