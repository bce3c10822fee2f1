package pairing

import (
	"crypto/rand"
	"fmt"
)

const (
	codePrefix   = "CP"
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// newInviteCode generates an invite code such as "CPAB12CD". Uniqueness
// among active couples is enforced by the backend; the engine retries on
// collision.
func newInviteCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return codePrefix + string(buf), nil
}
