package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewNumericCode returns a zero-padded random numeric code of the given length.
func NewNumericCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
