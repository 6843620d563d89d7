package area

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// AccessTokenLength is the fixed length of external access tokens. Lookups
// reject shorter tokens before touching the database.
const AccessTokenLength = 50

// PasswordLength is the fixed length of external access passwords.
const PasswordLength = 6

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// passwordAlphabet leaves out characters that are easy to misread when the
// password is relayed over the phone (0/O, 1/l/I).
const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// GenerateAccessToken returns a new high-entropy external access token.
func GenerateAccessToken() (string, error) {
	return randomString(AccessTokenLength, tokenAlphabet)
}

// GeneratePassword returns a new human-typable external password.
func GeneratePassword() (string, error) {
	return randomString(PasswordLength, passwordAlphabet)
}

func randomString(length int, alphabet string) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate random string: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
