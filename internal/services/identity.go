package services

import (
	"net/mail"
	"strings"
)

const maxEmailLen = 320

// NormalizeEmail trims and lower-cases an owner identity. Credit accounts
// are keyed by the result, so every entry point must go through it.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ownerIdentity normalizes and validates an owner email. An empty value is
// ErrNoOwner; a malformed one is ErrInvalidEmail.
func ownerIdentity(raw string) (string, error) {
	email := NormalizeEmail(raw)
	if email == "" {
		return "", ErrNoOwner
	}
	if len(email) > maxEmailLen {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
