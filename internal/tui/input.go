package tui

import (
	"strings"
	"unicode/utf8"
)

// maxInputLen is the maximum number of runes allowed in form inputs.
const maxInputLen = 256

// editRune processes a keystroke for inline text editing.
// Handles backspace (rune-aware) and single printable characters.
// Returns the text unchanged for non-printable keys (enter, esc, etc.).
// Input is clamped to maxInputLen runes.
func editRune(text string, key string) string {
	switch key {
	case "backspace":
		if len(text) > 0 {
			runes := []rune(text)
			return string(runes[:len(runes)-1])
		}
		return text
	default:
		if utf8.RuneCountInString(key) == 1 {
			return appendRune(text, key)
		}
		return text
	}
}

func appendRune(text, key string) string {
	if utf8.RuneCountInString(text) >= maxInputLen {
		return text
	}
	return text + key
}

// truncateToHeight limits output to maxLines newline-delimited lines.
// Returns the original string if it fits or maxLines is <= 0.
func truncateToHeight(s string, maxLines int) string {
	if maxLines <= 0 {
		return s
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
			if n >= maxLines {
				return s[:i+1]
			}
		}
	}
	return s
}

// textField is one editable form line.
type textField struct {
	key         string
	label       string
	placeholder string
	value       string
	masked      bool
}

// render draws the field with its inline error, if any.
func (f textField) render(focused bool, errMsg string) string {
	var b strings.Builder
	label := dimStyle.Render(f.label)
	if focused {
		label = selectedStyle.Render(f.label)
	}
	b.WriteString("  " + label + "\n")

	shown := f.value
	if f.masked {
		shown = mask(f.value)
	}
	prompt := "    "
	if focused {
		prompt = "  " + inputPromptStyle.Render("> ")
	}
	switch {
	case shown == "" && !focused:
		b.WriteString(prompt + inputPlaceholderStyle.Render(f.placeholder))
	case focused:
		b.WriteString(prompt + normalStyle.Render(shown) + accentStyle.Render("█"))
	default:
		b.WriteString(prompt + normalStyle.Render(shown))
	}
	b.WriteString("\n")
	if errMsg != "" {
		b.WriteString("    " + errorStyle.Render(errMsg) + "\n")
	}
	return b.String()
}
