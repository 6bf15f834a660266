package paymentrequest

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// DefaultShortCodeBytes yields 12 URL-safe characters.
const DefaultShortCodeBytes = 9

// ShortCodeGenerator returns a fresh public token for a payment link.
type ShortCodeGenerator func() (string, error)

// RandomShortCode draws n bytes from crypto/rand and encodes them URL-safe without padding.
func RandomShortCode(n int) ShortCodeGenerator {
	if n <= 0 {
		n = DefaultShortCodeBytes
	}
	return func() (string, error) {
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		return base64.RawURLEncoding.EncodeToString(buf), nil
	}
}
