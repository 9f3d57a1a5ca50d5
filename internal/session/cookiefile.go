package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
)

// savedCookie is the on-disk form of one session cookie. A cookie jar only
// hands back name and value, so nothing else is kept.
type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SaveCookies writes the session cookies to path (mode 0600), replacing any
// previous file. An empty list removes the file.
func SaveCookies(path string, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return RemoveCookies(path)
	}
	saved := make([]savedCookie, 0, len(cookies))
	for _, c := range cookies {
		saved = append(saved, savedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("session.SaveCookies: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("session.SaveCookies: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*")
	if err != nil {
		return fmt.Errorf("session.SaveCookies: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("session.SaveCookies: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("session.SaveCookies: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session.SaveCookies: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("session.SaveCookies: %w", err)
	}
	return nil
}

// LoadCookies reads cookies saved by SaveCookies. A missing file is not an
// error.
func LoadCookies(path string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session.LoadCookies: %w", err)
	}
	var saved []savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("session.LoadCookies: %w", err)
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, s := range saved {
		if s.Name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: s.Name, Value: s.Value, Path: "/"})
	}
	return cookies, nil
}

// RemoveCookies deletes the cookie file if it exists.
func RemoveCookies(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session.RemoveCookies: %w", err)
	}
	return nil
}
