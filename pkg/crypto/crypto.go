package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// GenerateToken returns a URL-safe random token of the requested byte length.
// Referral tokens handed to team members are minted through this helper.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("crypto: token length must be positive")
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
