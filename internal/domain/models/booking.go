package models

import "time"

// BookingStatus enumerates the booking lifecycle states.
type BookingStatus string

const (
	BookingPending        BookingStatus = "pending"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingMeetingStarted BookingStatus = "meeting_started"
	BookingCompleted      BookingStatus = "completed"
	BookingCancelled      BookingStatus = "cancelled"
	BookingNoShow         BookingStatus = "no_show"
	BookingExpired        BookingStatus = "expired"
	BookingFailed         BookingStatus = "failed"
)

// Terminal reports whether no further transition may leave s.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingCompleted, BookingCancelled, BookingNoShow, BookingExpired, BookingFailed:
		return true
	}
	return false
}

// PaymentStatus mirrors the processor-side hold state. Best effort
// only; reconciliation re-queries the gateway before acting on it.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentPaid       PaymentStatus = "paid"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentFailed     PaymentStatus = "failed"
)

// Role identifies which side of a booking an actor is on.
type Role string

const (
	RoleClient    Role = "client"
	RoleCompanion Role = "companion"
)

// Counterpart returns the opposite side.
func (r Role) Counterpart() Role {
	if r == RoleClient {
		return RoleCompanion
	}
	return RoleClient
}

// Booking is a reservation between a client and a companion for a
// UTC time interval, funded by a payment hold.
type Booking struct {
	ID                   int64         `json:"id"`
	ClientID             int64         `json:"client_id"`
	CompanionID          int64         `json:"companion_id"`
	StartAt              time.Time     `json:"start_at"`
	EndAt                time.Time     `json:"end_at"`
	TotalAmount          int64         `json:"total_amount"`
	Status               BookingStatus `json:"status"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	PaymentHoldRef       string        `json:"payment_hold_ref,omitempty"`
	MeetingLat           float64       `json:"meeting_lat"`
	MeetingLng           float64       `json:"meeting_lng"`
	MeetingAddress       string        `json:"meeting_address"`
	VerificationRequired bool          `json:"verification_required"`
	TransferPending      bool          `json:"transfer_pending"`
	CancelledBy          string        `json:"cancelled_by,omitempty"`
	CancelReason         string        `json:"cancel_reason,omitempty"`
	CancelledAt          *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
}

// RoleOf maps a user id onto its side of the booking.
func (b Booking) RoleOf(userID int64) (Role, bool) {
	switch userID {
	case b.ClientID:
		return RoleClient, true
	case b.CompanionID:
		return RoleCompanion, true
	}
	return "", false
}

// BookingUpdate supports PATCH-style updates via key presence.
type BookingUpdate struct {
	Status          *BookingStatus
	PaymentStatus   *PaymentStatus
	PaymentHoldRef  *string
	TransferPending *bool
	CancelledBy     *string
	CancelReason    *string
	CancelledAt     *time.Time
}
