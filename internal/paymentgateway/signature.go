package paymentgateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" over "<t>.<body>".
const SignatureHeader = "Gateway-Signature"

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrBadSignature     = errors.New("signature mismatch")
	ErrStaleSignature   = errors.New("signature timestamp outside tolerance")
)

// Sign returns the header value for payload signed at ts.
func Sign(secret string, payload []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", t, computeMAC(secret, t, payload))
}

// Verify checks header against payload. A zero tolerance disables the timestamp check.
func Verify(secret string, payload []byte, header string, now time.Time, tolerance time.Duration) error {
	if header == "" {
		return ErrMissingSignature
	}

	var t string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			t = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if t == "" || len(sigs) == 0 {
		return ErrBadSignature
	}

	if tolerance > 0 {
		unix, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return ErrBadSignature
		}
		age := now.Sub(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return ErrStaleSignature
		}
	}

	expected := computeMAC(secret, t, payload)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrBadSignature
}

func computeMAC(secret, t string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(t))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
