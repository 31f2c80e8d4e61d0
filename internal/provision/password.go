package provision

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	passwordLength = 16

	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars = "0123456789"
	punctChars = "!#$%&*+-=?@_"
)

var passwordAlphabet = lowerChars + upperChars + digitChars + punctChars

// GeneratePassword returns a random password guaranteed to contain at least
// one lowercase letter, one uppercase letter, one digit and one punctuation
// character. It draws from crypto/rand; rejection keeps the distribution
// uniform over conforming passwords.
func GeneratePassword() (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	buf := make([]byte, passwordLength)

	for {
		for i := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("generate password: %w", err)
			}
			buf[i] = passwordAlphabet[n.Int64()]
		}
		pw := string(buf)
		if strings.ContainsAny(pw, lowerChars) &&
			strings.ContainsAny(pw, upperChars) &&
			strings.ContainsAny(pw, digitChars) &&
			strings.ContainsAny(pw, punctChars) {
			return pw, nil
		}
	}
}
