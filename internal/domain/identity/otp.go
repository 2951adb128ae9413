package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateOTPCode returns a 6-digit numeric code from crypto/rand.
func GenerateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
