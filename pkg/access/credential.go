package access

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier hashes new credentials and checks presented ones against stored values.
type CredentialVerifier interface {
	Hash(plain string) (string, error)
	Verify(stored, presented string) bool
}

// BcryptVerifier stores bcrypt hashes. Stored values that are not bcrypt hashes are legacy
// plaintext and are compared in constant time.
type BcryptVerifier struct {
	Cost int
}

func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{Cost: bcrypt.DefaultCost}
}

func (v *BcryptVerifier) Hash(plain string) (string, error) {
	cost := v.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (v *BcryptVerifier) Verify(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	if IsHashed(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// IsHashed reports whether a stored credential is a bcrypt hash.
func IsHashed(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}
