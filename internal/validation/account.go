// Package validation checks user-supplied account fields before they reach
// the auth service.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// Route segments and handles that would be confusing as profile names.
var reservedUsernames = map[string]struct{}{
	"admin":   {},
	"api":     {},
	"auth":    {},
	"feed":    {},
	"posts":   {},
	"users":   {},
	"swagger": {},
	"metrics": {},
	"health":  {},
	"login":   {},
	"signup":  {},
}

// ValidateUsername checks handle format and reserved names.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return errors.New("username must be 3-30 characters of lowercase letters, numbers, and underscores")
	}
	if _, exists := reservedUsernames[username]; exists {
		return fmt.Errorf("username %q is reserved", username)
	}
	return nil
}

// ValidatePassword requires a length between MinPasswordLength and
// MaxPasswordLength runes with at least one letter and one digit.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}

	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return errors.New("password must contain at least one letter and one digit")
	}
	return nil
}
