package models

import "time"

// User is a marketplace account. Companions carry a payout recipient
// once their payout destination has been onboarded.
type User struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Role            Role      `json:"role"`
	Phone           string    `json:"phone"`
	PayoutRecipient string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// PendingTransfer records an earned payout that could not be sent at
// capture time and awaits manual settlement.
type PendingTransfer struct {
	ID          int64      `json:"id"`
	BookingID   int64      `json:"booking_id"`
	CompanionID int64      `json:"companion_id"`
	GrossAmount int64      `json:"gross_amount"`
	FeeAmount   int64      `json:"fee_amount"`
	NetAmount   int64      `json:"net_amount"`
	Reason      string     `json:"reason"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
	TransferRef string     `json:"transfer_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
