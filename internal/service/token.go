package service

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// randomToken generates a random hexadecimal string of n bytes (2*n
// characters).  crypto/rand ensures tokens are unguessable, which
// matters for lock holder tokens: a guessed token could release a
// lock held by someone else.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// orderCode generates a short upper-case order code for human-facing
// references.  Uniqueness is enforced by the database constraint, not
// here; a collision simply fails the insert.
func orderCode() (string, error) {
	t, err := randomToken(5)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(t), nil
}
