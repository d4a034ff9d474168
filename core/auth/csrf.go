package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// GenerateCSRF derives a token bound to sessionID.
func GenerateCSRF(key, sessionID string) (string, error) {
	if strings.TrimSpace(key) == "" || sessionID == "" {
		return "", errors.New("csrf key and session id required")
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func ValidCSRF(header, cookie, expected string) bool {
	if header == "" || expected == "" {
		return false
	}
	return hmac.Equal([]byte(header), []byte(cookie)) && hmac.Equal([]byte(header), []byte(expected))
}
