package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"temani/internal/domain"
	"temani/internal/repositories"
	"temani/internal/services"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

func TestSubmitOutsideRadiusResponseBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(8 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id=(.+) FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "client_id", "companion_id", "start_at", "end_at", "total_amount",
			"status", "payment_status", "payment_hold_ref",
			"meeting_lat", "meeting_lng", "meeting_address",
			"verification_required", "transfer_pending",
			"cancelled_by", "cancel_reason", "cancelled_at", "created_at",
		}).AddRow(
			int64(1), int64(10), int64(20), now.Add(time.Hour), now.Add(2*time.Hour), int64(100000),
			"confirmed", "authorized", "hold_1",
			-6.2, 106.8, "Taman Menteng",
			true, false,
			"", "", nil, now,
		))
	mock.ExpectQuery("SELECT (.+) FROM verification_records WHERE booking_id=(.+) FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "booking_id", "client_code", "companion_code",
			"client_verified_at", "client_lat", "client_lng",
			"companion_verified_at", "companion_lat", "companion_lng",
			"status", "deadline", "extension_used", "code_issued_at",
		}).AddRow(
			int64(7), int64(1), "111111", "222222",
			nil, nil, nil,
			nil, nil, nil,
			"pending", deadline, false, now,
		))
	mock.ExpectCommit()

	h := VerificationHandler{Verification: services.VerificationService{
		Bookings:      repositories.BookingRepository{DB: db},
		Verifications: repositories.VerificationRepository{DB: db},
		DB:            db,
		RadiusMeters:  500,
		Now:           func() time.Time { return now },
	}}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Set("actor", domain.RequestContext{UserID: 10, Role: "client"})
	// ~11km south of the meeting point, no override
	body := `{"code":"222222","latitude":-6.3,"longitude":106.8}`
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/bookings/1/verify", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Submit(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if got["confirmationRequired"] != true {
		t.Fatalf("expected confirmation prompt, got %v", got)
	}
	if d, ok := got["distance"].(float64); !ok || d < 10000 {
		t.Fatalf("distance missing or too small: %v", got["distance"])
	}
	if m, ok := got["minutesRemaining"].(float64); !ok || int(m) != 8 {
		t.Fatalf("minutesRemaining = %v, want 8", got["minutesRemaining"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
