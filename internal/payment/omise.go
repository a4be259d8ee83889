package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

const omiseAPIBase = "https://api.omise.co"

// OmiseGateway implements Gateway on the Omise charge API. Holds are
// charges created with dont_capture; release is a charge reversal.
type OmiseGateway struct {
	client    *omise.Client
	secretKey string
	currency  string
	httpc     *http.Client
}

// NewOmiseGateway builds the adapter. secretKey is also used for the
// REST fallback (charge reversal is not covered by the SDK surface we
// pin).
func NewOmiseGateway(pub, sec string) (*OmiseGateway, error) {
	c, err := omise.NewClient(pub, sec)
	if err != nil {
		return nil, err
	}
	c.SetDebug(false)
	return &OmiseGateway{
		client:    c,
		secretKey: sec,
		currency:  "idr",
		httpc:     &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *OmiseGateway) Authorize(ctx context.Context, amount int64, payerToken string, metadata map[string]any) (string, error) {
	if amount <= 0 || payerToken == "" {
		return "", fmt.Errorf("invalid authorize params")
	}
	ch := &omise.Charge{}
	req := &operations.CreateCharge{
		Amount:      amount,
		Currency:    g.currency,
		Card:        payerToken,
		DontCapture: true,
		Metadata:    metadata,
	}
	if err := g.client.Do(ch, req); err != nil {
		return "", err
	}
	if string(ch.Status) == "failed" {
		msg := "authorization declined"
		if ch.FailureMessage != nil {
			msg = *ch.FailureMessage
		}
		return "", fmt.Errorf("omise authorize: %s", msg)
	}
	return ch.ID, nil
}

func (g *OmiseGateway) Capture(ctx context.Context, holdRef string) (int64, error) {
	if holdRef == "" {
		return 0, fmt.Errorf("missing hold ref")
	}
	ch := &omise.Charge{}
	if err := g.client.Do(ch, &operations.CaptureCharge{ChargeID: holdRef}); err != nil {
		return 0, err
	}
	if !ch.Paid {
		return 0, fmt.Errorf("omise capture: charge %s not paid after capture (status=%s)", holdRef, ch.Status)
	}
	return ch.Amount, nil
}

func (g *OmiseGateway) RetrieveStatus(ctx context.Context, holdRef string) (HoldStatus, error) {
	if holdRef == "" {
		return "", fmt.Errorf("missing hold ref")
	}
	ch := &omise.Charge{}
	if err := g.client.Do(ch, &operations.RetrieveCharge{ChargeID: holdRef}); err != nil {
		return "", err
	}
	switch {
	case ch.Reversed:
		return HoldCanceled, nil
	case ch.Paid:
		return HoldCaptured, nil
	case string(ch.Status) == "failed" || string(ch.Status) == "expired":
		return HoldCanceled, nil
	default:
		return HoldAuthorized, nil
	}
}

func (g *OmiseGateway) Transfer(ctx context.Context, recipient string, amount int64, metadata map[string]any) (string, error) {
	if recipient == "" || amount <= 0 {
		return "", fmt.Errorf("invalid transfer params")
	}
	tr := &omise.Transfer{}
	req := &operations.CreateTransfer{
		Amount:    amount,
		Recipient: recipient,
	}
	if err := g.client.Do(tr, req); err != nil {
		return "", err
	}
	return tr.ID, nil
}

func (g *OmiseGateway) Refund(ctx context.Context, holdRef string, amount int64, reason string) (string, error) {
	if holdRef == "" || amount <= 0 {
		return "", fmt.Errorf("invalid refund params")
	}
	rf := &omise.Refund{}
	req := &operations.CreateRefund{
		ChargeID: holdRef,
		Amount:   amount,
	}
	if err := g.client.Do(rf, req); err != nil {
		return "", err
	}
	return rf.ID, nil
}

// ReleaseHold reverses an authorized, uncaptured charge via the REST
// endpoint (Basic Auth with the secret key, empty password).
func (g *OmiseGateway) ReleaseHold(ctx context.Context, holdRef string) error {
	if holdRef == "" {
		return fmt.Errorf("missing hold ref")
	}
	url := fmt.Sprintf("%s/charges/%s/reverse", omiseAPIBase, holdRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(""))
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.secretKey, "")

	res, err := g.httpc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("omise reverse failed: %s (%d)", string(body), res.StatusCode)
	}

	var ch omise.Charge
	if err := json.Unmarshal(body, &ch); err != nil {
		return fmt.Errorf("parse reverse response: %w", err)
	}
	if !ch.Reversed {
		return fmt.Errorf("omise reverse: charge %s not reversed", holdRef)
	}
	return nil
}

// PlatformAccount fetches the platform's own account id. Used through
// an AccountCache; not on any hot path.
func (g *OmiseGateway) PlatformAccount(ctx context.Context) (string, error) {
	acc := &omise.Account{}
	if err := g.client.Do(acc, &operations.RetrieveAccount{}); err != nil {
		return "", err
	}
	return acc.ID, nil
}
