package auth

import (
	"fmt"
	"math/rand"
	"regexp"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// VerificationCode returns a random 6-digit code.
func VerificationCode() string {
	return fmt.Sprintf("%06d", rand.Intn(1000000))
}
