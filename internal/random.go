package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// NewMagicCode returns a uniformly random numeric code of the given length,
// the form users paste back into the conversation after signing in.
func NewMagicCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid magic code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
