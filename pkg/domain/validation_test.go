package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestFieldErrors(t *testing.T) {
	err := FieldErrors{"password": "too short", "email": "bad"}
	if got, want := err.Error(), "invalid input: email: bad; password: too short"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	var target FieldErrors
	if !errors.As(fmt.Errorf("wrapped: %w", err), &target) || target["email"] != "bad" {
		t.Errorf("errors.As() = %v, want the wrapped field errors", target)
	}
}
