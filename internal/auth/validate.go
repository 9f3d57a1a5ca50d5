package auth

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/nbutton23/zxcvbn-go"

	"github.com/dayfit/florae/pkg/domain"
)

const (
	minSignInPassword   = 6
	minRegisterPassword = 8
	minPasswordScore    = 3
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
)

// IdentifierKind tells how a sign-in identifier will be sent.
type IdentifierKind int

const (
	IdentifierInvalid IdentifierKind = iota
	IdentifierEmail
	IdentifierUsername
)

func (k IdentifierKind) String() string {
	switch k {
	case IdentifierEmail:
		return "email"
	case IdentifierUsername:
		return "username"
	default:
		return "invalid"
	}
}

// Classify decides whether identifier is an email address or a username.
func Classify(identifier string) IdentifierKind {
	switch {
	case emailPattern.MatchString(identifier):
		return IdentifierEmail
	case usernamePattern.MatchString(identifier):
		return IdentifierUsername
	default:
		return IdentifierInvalid
	}
}

// ValidateSignIn checks the sign-in form. It returns nil when valid.
func ValidateSignIn(identifier, password string) domain.FieldErrors {
	errs := domain.FieldErrors{}
	switch {
	case strings.TrimSpace(identifier) == "":
		errs["identifier"] = "Email or username is required"
	case Classify(identifier) == IdentifierInvalid:
		errs["identifier"] = "Enter a valid email or a username of 3-20 letters, digits or underscores"
	}
	switch {
	case password == "":
		errs["password"] = "Password is required"
	case len(password) < minSignInPassword:
		errs["password"] = fmt.Sprintf("Password must be at least %d characters", minSignInPassword)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateRegistration checks every registration field and reports all
// problems together.
func ValidateRegistration(email, username, password string) domain.FieldErrors {
	errs := domain.FieldErrors{}
	if !emailPattern.MatchString(email) {
		errs["email"] = "Enter a valid email address"
	}
	if !usernamePattern.MatchString(username) {
		errs["username"] = "Username must be 3-20 letters, digits or underscores"
	}
	if msg := passwordProblem(password, email, username); msg != "" {
		errs["password"] = msg
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func passwordProblem(password string, userInputs ...string) string {
	if len(password) < minRegisterPassword {
		return fmt.Sprintf("Password must be at least %d characters", minRegisterPassword)
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return "Password needs an uppercase letter, a lowercase letter, a digit and a symbol"
	}
	if zxcvbn.PasswordStrength(password, userInputs).Score < minPasswordScore {
		return "Password is too easy to guess"
	}
	return ""
}
