package secret

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// linkTokenBytes is the raw entropy of a magic-link token. 32 bytes gives
// 256 bits, well above the 128-bit floor for a secret that travels in a URL.
const linkTokenBytes = 32

var codeRange = big.NewInt(1000000)

// LinkToken generates a cryptographically random, URL-safe magic-link token.
func LinkToken() (string, error) {
	b := make([]byte, linkTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate link token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NumericCode generates a zero-padded 6-digit code drawn uniformly from
// 000000–999999. rand.Int is exclusive of the bound, so the range must be
// 1000000, not 999999: the smaller bound would silently drop "999999" and
// skew the distribution.
func NumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", fmt.Errorf("generate numeric code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
