package settlement

import (
	"net/http"
	"time"

	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/paymentgateway"
)

// Verifier authenticates inbound gateway webhooks before the reconciler sees them.
type Verifier interface {
	Verify(header http.Header, body []byte) error
}

// HMACVerifier checks the gateway signature header. With no secret configured
// every payload is accepted.
type HMACVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewHMACVerifier(secret string, tolerance time.Duration) *HMACVerifier {
	return &HMACVerifier{secret: secret, tolerance: tolerance, now: time.Now}
}

func (v *HMACVerifier) Verify(header http.Header, body []byte) error {
	if v.secret == "" {
		return nil
	}
	if err := paymentgateway.Verify(v.secret, body, header.Get(paymentgateway.SignatureHeader), v.now(), v.tolerance); err != nil {
		return errors.ErrInvalidSignature.WithCause(err)
	}
	return nil
}
