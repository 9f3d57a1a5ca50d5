package provision

import (
	"strings"
	"unicode"

	"github.com/dayfit/florae/pkg/domain"
)

// Form field names reported in domain.FieldErrors.
const (
	FieldSSID     = "wifiSsid"
	FieldPassword = "wifiPassword"
	FieldPlant    = "selectedPlant"
)

const (
	maxSSIDBytes       = 32
	minWiFiPasswordLen = 8
	maxWiFiPasswordLen = 63
)

// Validate checks a provisioning request and reports every failing field.
func Validate(req Request) domain.FieldErrors {
	errs := domain.FieldErrors{}

	switch {
	case req.SSID == "":
		errs[FieldSSID] = "WiFi network name is required"
	case len(req.SSID) > maxSSIDBytes:
		errs[FieldSSID] = "WiFi network name must be at most 32 bytes"
	case strings.IndexFunc(req.SSID, unicode.IsControl) >= 0:
		errs[FieldSSID] = "WiFi network name contains invalid characters"
	}

	switch {
	case req.Password == "":
		errs[FieldPassword] = "WiFi password is required"
	case len(req.Password) < minWiFiPasswordLen:
		errs[FieldPassword] = "WiFi password too short (at least 8 characters)"
	case len(req.Password) > maxWiFiPasswordLen:
		errs[FieldPassword] = "WiFi password too long (at most 63 characters)"
	case !printableASCII(req.Password):
		errs[FieldPassword] = "WiFi password may only contain printable ASCII characters"
	}

	if strings.TrimSpace(req.PlantID) == "" {
		errs[FieldPlant] = "Select a plant"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
