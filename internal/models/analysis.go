package models

import "github.com/outreachloop/followup/internal/enum"

// EmailAnalysis is the classifier verdict for one reply body. Phone numbers
// are E.164, already re-validated by the analyzer service.
type EmailAnalysis struct {
	Intent       enum.Intent `json:"intent"`
	PhoneNumbers []string    `json:"phone_numbers"`
	HasAddress   bool        `json:"has_address"`
	AddressText  string      `json:"address_text"`
}

func (a *EmailAnalysis) HasPhone() bool {
	return len(a.PhoneNumbers) > 0
}

// HasContact reports whether the creator shared any usable contact detail.
func (a *EmailAnalysis) HasContact() bool {
	return a.HasPhone() || a.HasAddress
}
