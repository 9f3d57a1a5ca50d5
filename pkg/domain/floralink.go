package domain

import "time"

// FloraLink is a provisioned sensor device.
type FloraLink struct {
	ID   int    `json:"floraLinkId"`
	Name string `json:"name"`
}

// Sensor types reported by FloraLink firmware.
const (
	SensorHumidity     = "ENV_HUMIDITY"
	SensorTemperature  = "ENV_TEMPERATURE"
	SensorSoilMoisture = "SOIL_MOISTURE"
	SensorLightLux     = "LIGHT_LUX"
)

// SensorTypes lists every sensor type in display order.
var SensorTypes = []string{
	SensorSoilMoisture,
	SensorTemperature,
	SensorHumidity,
	SensorLightLux,
}

// Reading is one sensor value pushed over the fanout stream.
type Reading struct {
	FloraLinkID int       `json:"floraLinkId"`
	Type        string    `json:"type"`
	Value       float64   `json:"value"`
	Timestamp   time.Time `json:"timestamp"`
}

// Unit returns the display unit for a sensor type.
func Unit(sensorType string) string {
	switch sensorType {
	case SensorHumidity, SensorSoilMoisture:
		return "%"
	case SensorTemperature:
		return "°C"
	case SensorLightLux:
		return "lx"
	default:
		return ""
	}
}
