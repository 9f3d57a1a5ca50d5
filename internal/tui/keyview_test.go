package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dayfit/florae/internal/apikey"
	"github.com/dayfit/florae/internal/csrf"
)

// virtualClock is advanced by hand so reveal ticks can be fast-forwarded.
type virtualClock struct{ t time.Time }

func (c *virtualClock) now() time.Time { return c.t }

func revealKey(t *testing.T, keys KeyGenerator, clock *virtualClock) keyModel {
	t.Helper()
	m := newKeyModel(keys, testPlants, 0, DefaultKeyTTL, clock.now)
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected generate command")
	}
	m, tick := m.Update(cmd())
	if tick == nil {
		t.Fatal("expected reveal tick after the key arrived")
	}
	return m
}

func TestKeyRevealWipedAfterTTL(t *testing.T) {
	clock := &virtualClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	start := clock.t
	m := revealKey(t, &fakeKeys{key: "flk_reveal_me"}, clock)

	if !strings.Contains(m.View(), "flk_reveal_me") {
		t.Fatalf("key not shown after generation:\n%s", m.View())
	}

	clock.t = start.Add(899 * time.Second)
	m, cmd := m.Update(revealTickMsg(clock.t))
	if m.key != "flk_reveal_me" {
		t.Fatal("key wiped before the TTL")
	}
	if cmd == nil {
		t.Error("countdown stopped before the TTL")
	}
	if !strings.Contains(m.View(), "0:01") {
		t.Errorf("countdown missing 0:01:\n%s", m.View())
	}

	clock.t = start.Add(900 * time.Second)
	m, cmd = m.Update(revealTickMsg(clock.t))
	if m.key != "" || !m.revealedAt.IsZero() {
		t.Errorf("key still held at the TTL: key=%q revealedAt=%v", m.key, m.revealedAt)
	}
	if cmd != nil {
		t.Error("ticks should stop once the key is wiped")
	}
	if strings.Contains(m.View(), "flk_reveal_me") {
		t.Error("wiped key still rendered")
	}
}

func TestKeyRevealTickWithoutKeyIsNoop(t *testing.T) {
	clock := &virtualClock{t: time.Now()}
	m := newKeyModel(&fakeKeys{}, testPlants, 0, 0, clock.now)
	if m.ttl != DefaultKeyTTL {
		t.Errorf("ttl = %v, want default %v", m.ttl, DefaultKeyTTL)
	}
	if _, cmd := m.Update(revealTickMsg(clock.t)); cmd != nil {
		t.Error("tick without a key should not reschedule")
	}
}

func TestKeyRegenerateRestartsCountdown(t *testing.T) {
	clock := &virtualClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	keys := &fakeKeys{key: "flk_first"}
	m := revealKey(t, keys, clock)

	clock.t = clock.t.Add(600 * time.Second)
	keys.key = "flk_second"
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.key != "" {
		t.Error("old key kept while regenerating")
	}
	m, _ = m.Update(cmd())
	if m.key != "flk_second" || !m.revealedAt.Equal(clock.t) {
		t.Errorf("key=%q revealedAt=%v, want flk_second at %v", m.key, m.revealedAt, clock.t)
	}
	if keys.calls != 2 {
		t.Errorf("GenerateKey calls = %d, want 2", keys.calls)
	}
}

func TestKeyPlantPicker(t *testing.T) {
	m := newKeyModel(&fakeKeys{}, testPlants, 0, DefaultKeyTTL, time.Now)
	m, _ = m.Update(keyRunes("l"))
	m, _ = m.Update(keyRunes("l"))
	if m.plantIdx != 1 {
		t.Errorf("plantIdx = %d, want clamped to 1", m.plantIdx)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	if m.plantIdx != 0 {
		t.Errorf("plantIdx = %d after left, want 0", m.plantIdx)
	}
}

func TestKeyCopy(t *testing.T) {
	m := newKeyModel(&fakeKeys{}, testPlants, 0, DefaultKeyTTL, time.Now)
	if _, cmd := m.Update(keyRunes("c")); cmd != nil {
		t.Error("copy without a key should do nothing")
	}

	m.key = "flk_copy"
	m.revealedAt = time.Now()
	if _, cmd := m.Update(keyRunes("c")); cmd == nil {
		t.Error("expected copy command")
	}

	m, _ = m.Update(copyResultMsg{})
	if m.status != "copied!" {
		t.Errorf("status = %q, want copied!", m.status)
	}
	m, _ = m.Update(copyResultMsg{err: errors.New("no xclip")})
	if !strings.Contains(m.err, "no xclip") {
		t.Errorf("err = %q, want clipboard failure", m.err)
	}
}

func TestKeyErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no plant", apikey.ErrNoPlant, "Select a plant first."},
		{"token", errors.Join(csrf.ErrUnavailable, errors.New("dial")), "Security token unavailable"},
		{"generate", &apikey.KeyIssuanceError{Stage: apikey.StageGenerate, Err: errors.New("500")}, "Key generate failed"},
		{"wrapped stage", fmt.Errorf("tui: %w", &apikey.KeyIssuanceError{Stage: apikey.StageActivate}), "Key activate failed"},
		{"other", errors.New("boom"), "Could not generate a key"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := keyErrorMessage(tc.err); !strings.Contains(got, tc.want) {
				t.Errorf("keyErrorMessage() = %q, want %q", got, tc.want)
			}
		})
	}
}
