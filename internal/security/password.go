// Package security holds the credential rules for API users: roles, the
// password policy, and session tokens.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Roles. Viewers read runs and findings; admins also scan and manage waivers.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordLength = 72

	sessionTokenBytes = 32
)

var ErrWeakPassword = errors.New("weak password")

// ParseRole normalises a role name, rejecting anything but admin and viewer.
func ParseRole(s string) (string, error) {
	switch r := strings.ToLower(strings.TrimSpace(s)); r {
	case RoleAdmin, RoleViewer:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q (%s|%s)", s, RoleAdmin, RoleViewer)
}

func ValidatePassword(pw string) error {
	switch {
	case len(pw) < MinPasswordLength:
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, MinPasswordLength)
	case len(pw) > MaxPasswordLength:
		return fmt.Errorf("%w: at most %d bytes", ErrWeakPassword, MaxPasswordLength)
	case strings.TrimSpace(pw) == "":
		return fmt.Errorf("%w: blank", ErrWeakPassword)
	}
	return nil
}

// HashPassword validates pw and returns its bcrypt hash.
func HashPassword(pw string) (string, error) {
	if err := ValidatePassword(pw); err != nil {
		return "", err
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// SessionToken returns a fresh 32-byte token, base64url encoded without
// padding, for the API session cookie.
func SessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
