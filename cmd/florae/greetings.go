package main

import (
	"errors"
	"math/rand/v2"

	"github.com/charmbracelet/lipgloss"

	"github.com/dayfit/florae/internal/auth"
	"github.com/dayfit/florae/pkg/domain"
)

var plantGreetings = [...]string{
	"Your ferns have been talking about you. Mostly about the watering.",
	"The monstera grew a new leaf while you were away. It wants credit.",
	"Somewhere a succulent is thriving on neglect. Yours deserve better.",
	"Soil moisture is a number. Sign in and find out which one.",
	"The pothos is trailing toward the door. It misses you.",
	"Light levels are up. Your basil would like you to notice.",
	"A FloraLink without a plant is just a very patient rock.",
	"Your calathea folded its leaves for the night. It left a note: sign in.",
	"Overwatering is the leading cause of plant regret. Data helps.",
	"The snake plant does not need you. The snake plant would still like a reading.",
}

// greeting returns a random sign-in nudge, styled for the terminal.
func greeting() string {
	msg := plantGreetings[rand.IntN(len(plantGreetings))]

	quote := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Italic(true).
		Render(msg)

	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7bd88f")).
		Render("To sign in: florae login")

	return "\n" + quote + "\n\n" + hint + "\n"
}

// describeAuthError turns sign-in and registration failures into the
// messages the form shows.
func describeAuthError(err error) error {
	var fe domain.FieldErrors
	switch {
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, auth.ErrTokenUnavailable):
		return errors.New("security token unavailable; check your connection and try again")
	case errors.Is(err, auth.ErrRegistrationFailed):
		return errors.New("registration failed; the username or email may already be taken")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return errors.New("invalid credentials")
	default:
		return err
	}
}
