package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const codeDigits = 6

// GenerateMeetingCode returns a 6-digit one-time code with leading
// zeros preserved. crypto/rand so codes are not guessable from issue
// order.
func GenerateMeetingCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate kode: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
