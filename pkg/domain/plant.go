package domain

import "strconv"

// Plant is a plant record owned by the user. Only the fields the client
// needs to pick a plant and label it are decoded.
type Plant struct {
	ID              int        `json:"id"`
	Owner           string     `json:"owner,omitempty"`
	Name            string     `json:"name"`
	Volume          float64    `json:"volume,omitempty"`
	SpeciesName     string     `json:"speciesName,omitempty"`
	LinkedFloraLink *FloraLink `json:"linkedFloraLink,omitempty"`
	PrimaryPhoto    string     `json:"primaryPhoto,omitempty"`
}

// PlantID returns the identifier sent as plantId when issuing API keys.
func (p Plant) PlantID() string {
	return strconv.Itoa(p.ID)
}

// Label is the name shown in pickers, falling back to the species.
func (p Plant) Label() string {
	if p.Name != "" {
		return p.Name
	}
	if p.SpeciesName != "" {
		return p.SpeciesName
	}
	return "plant #" + p.PlantID()
}
