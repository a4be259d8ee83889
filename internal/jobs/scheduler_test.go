package jobs

import (
	"context"
	"testing"
	"time"

	"temani/internal/repositories"
	"temani/internal/services"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRunAllIsQuietWhenNothingPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	empty := func() *sqlmock.Rows { return sqlmock.NewRows([]string{"id"}) }
	mock.ExpectQuery("SELECT b.id FROM bookings b").WillReturnRows(empty())
	mock.ExpectQuery("SELECT id FROM bookings").WillReturnRows(empty())
	mock.ExpectQuery("SELECT id FROM bookings").WillReturnRows(empty())
	mock.ExpectQuery("SELECT id FROM bookings").WillReturnRows(empty())
	mock.ExpectQuery("SELECT booking_id FROM verification_records").WillReturnRows(empty())
	mock.ExpectQuery("SELECT id FROM booking_requests").WillReturnRows(empty())

	s := &Scheduler{
		Reconcile: services.ReconcileService{
			Bookings:      repositories.BookingRepository{DB: db},
			Requests:      repositories.RequestRepository{DB: db},
			Verifications: repositories.VerificationRepository{DB: db},
			DB:            db,
		},
		Interval: time.Minute,
	}

	s.RunAll(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	s := &Scheduler{Interval: time.Hour}

	// Stop before Start is a no-op
	s.Stop()

	s.running = true // simulate a started scheduler without the loop
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("second start must fail")
	}
	s.running = false
}
