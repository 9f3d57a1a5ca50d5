package domain

// Credentials is the payload written to a FloraLink during provisioning.
// It lives only for one provisioning attempt and must never be logged:
// String and GoString redact every field.
type Credentials struct {
	WiFiSSID     string `json:"wifi_ssid"`
	WiFiPassword string `json:"wifi_password"`
	APIKey       string `json:"api_key"`
}

const redacted = "[redacted]"

func (c Credentials) String() string {
	return "Credentials{wifi_ssid:" + redacted + " wifi_password:" + redacted + " api_key:" + redacted + "}"
}

func (c Credentials) GoString() string {
	return c.String()
}
