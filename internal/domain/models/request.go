package models

import "time"

// RequestStatus enumerates custom booking request states.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

// BookingRequest is a provisional proposal awaiting companion action.
// Acceptance spawns a Booking against the request's hold; rejection or
// expiry releases the hold.
type BookingRequest struct {
	ID             int64         `json:"id"`
	ClientID       int64         `json:"client_id"`
	CompanionID    int64         `json:"companion_id"`
	Message        string        `json:"message"`
	ProposedStart  *time.Time    `json:"proposed_start,omitempty"`
	ProposedEnd    *time.Time    `json:"proposed_end,omitempty"`
	TotalAmount    int64         `json:"total_amount"`
	PaymentHoldRef string        `json:"payment_hold_ref,omitempty"`
	Status         RequestStatus `json:"status"`
	ValidUntil     time.Time     `json:"valid_until"`
	CreatedAt      time.Time     `json:"created_at"`
}
