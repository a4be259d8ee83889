package models

import "time"

// VerificationStatus is the overall state of a meeting verification.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationExpired  VerificationStatus = "expired"
)

// VerificationRecord is the per-booking dual-party challenge state.
// Overall status is verified iff both verified-at fields are set.
type VerificationRecord struct {
	ID                  int64              `json:"id"`
	BookingID           int64              `json:"booking_id"`
	ClientCode          string             `json:"-"`
	CompanionCode       string             `json:"-"`
	ClientVerifiedAt    *time.Time         `json:"client_verified_at,omitempty"`
	ClientLat           *float64           `json:"client_lat,omitempty"`
	ClientLng           *float64           `json:"client_lng,omitempty"`
	CompanionVerifiedAt *time.Time         `json:"companion_verified_at,omitempty"`
	CompanionLat        *float64           `json:"companion_lat,omitempty"`
	CompanionLng        *float64           `json:"companion_lng,omitempty"`
	Status              VerificationStatus `json:"status"`
	Deadline            time.Time          `json:"deadline"`
	ExtensionUsed       bool               `json:"extension_used"`
	CodeIssuedAt        time.Time          `json:"code_issued_at"`
}

// CodeFor returns the code the given role's counterpart must present.
// A client submits the companion's code and vice versa, so the value a
// submitter types is indexed by the submitter's own role.
func (v VerificationRecord) CodeFor(r Role) string {
	if r == RoleClient {
		return v.CompanionCode
	}
	return v.ClientCode
}

// VerifiedAtFor returns the submitter side's verified-at pointer.
func (v VerificationRecord) VerifiedAtFor(r Role) *time.Time {
	if r == RoleClient {
		return v.ClientVerifiedAt
	}
	return v.CompanionVerifiedAt
}

// BothVerified reports dual success.
func (v VerificationRecord) BothVerified() bool {
	return v.ClientVerifiedAt != nil && v.CompanionVerifiedAt != nil
}

// VerificationAttempt is one append-only audit row per submission.
// Rows are never mutated; disputes replay them.
type VerificationAttempt struct {
	ID                 int64     `json:"id"`
	BookingID          int64     `json:"booking_id"`
	Role               Role      `json:"role"`
	CodeGiven          string    `json:"code_given"`
	Success            bool      `json:"success"`
	DistanceM          float64   `json:"distance_m"`
	LocationOverridden bool      `json:"location_overridden"`
	Reason             string    `json:"reason"`
	CreatedAt          time.Time `json:"created_at"`
}
