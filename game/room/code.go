package room

import (
	"crypto/rand"
	"math/big"
)

const (
	// CodeLength is the number of characters in a room code
	CodeLength = 4

	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// CodeGenerator produces room codes
type CodeGenerator func() string

// GenerateCode returns a random 4-character uppercase base-36 code
func GenerateCode() string {
	limit := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, CodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}
