package rand

import (
	"crypto/rand"
	"math/big"
)

// NewPassword generates a cryptographically secure random password of letters and
// digits. A length <= 0 yields the default of 16.
func NewPassword(length ...int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	n := 16
	if len(length) > 0 && length[0] > 0 {
		n = length[0]
	}

	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b[i] = charset[num.Int64()]
	}
	return string(b)
}
