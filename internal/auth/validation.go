package auth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/parth-sh/backend-api/internal/config"
)

// MaxPasswordBytes is the most bcrypt will hash.
const MaxPasswordBytes = config.MaxPasswordBytes

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks if an email is valid
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email) && len(email) < 255
}

// PasswordPolicy holds the password rules and hashing cost.
type PasswordPolicy struct {
	MinLength  int
	BcryptCost int
}

func validateEmail(email string, v *ValidationError) {
	switch {
	case strings.TrimSpace(email) == "":
		v.add("Email can't be blank")
	case !ValidateEmail(email):
		v.add("Email is invalid")
	}
}

func (p PasswordPolicy) validate(password, confirmation string, v *ValidationError) {
	switch {
	case password == "":
		v.add("Password can't be blank")
	case len([]rune(password)) < p.MinLength:
		v.add(fmt.Sprintf("Password is too short (minimum is %d characters)", p.MinLength))
	case len(password) > MaxPasswordBytes:
		v.add(fmt.Sprintf("Password is too long (maximum is %d bytes)", MaxPasswordBytes))
	}

	if password != confirmation {
		v.add("Password confirmation doesn't match Password")
	}
}
