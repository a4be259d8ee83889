package payment

import "context"

// HoldStatus is the processor-side state of a payment hold. This is
// the ground truth; local payment_status only mirrors it.
type HoldStatus string

const (
	HoldAuthorized HoldStatus = "authorized"
	HoldCaptured   HoldStatus = "captured"
	HoldCanceled   HoldStatus = "canceled"
)

// Gateway is the external payment processor surface the orchestrator
// depends on. Authorize reserves funds without moving them; Capture
// converts the hold into a real charge; Transfer pays the companion
// share out of captured funds; Refund returns captured money;
// ReleaseHold reverses an uncaptured hold (no money ever moved).
//
// RetrieveStatus is safe to call freely. Capture, Refund, Transfer and
// ReleaseHold are invoked at most once per successful local
// transition, guarded by status checks in the services.
type Gateway interface {
	Authorize(ctx context.Context, amount int64, payerToken string, metadata map[string]any) (holdRef string, err error)
	Capture(ctx context.Context, holdRef string) (capturedAmount int64, err error)
	RetrieveStatus(ctx context.Context, holdRef string) (HoldStatus, error)
	Transfer(ctx context.Context, recipient string, amount int64, metadata map[string]any) (transferRef string, err error)
	Refund(ctx context.Context, holdRef string, amount int64, reason string) (refundRef string, err error)
	ReleaseHold(ctx context.Context, holdRef string) error
}
