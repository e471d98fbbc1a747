package util

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// RandomBase36 returns n random lowercase base36 characters.
func RandomBase36(n int) string {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(base36)))
	for i := range out {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			out[i] = base36[i%len(base36)]
			continue
		}
		out[i] = base36[v.Int64()]
	}
	return string(out)
}
