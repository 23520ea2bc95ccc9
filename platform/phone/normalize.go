// Package phone normalizes lead phone numbers with libphonenumber rules.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country prefix.
const DefaultRegion = "US"

func parse(input, region string) (*phonenumbers.PhoneNumber, bool) {
	if region == "" {
		region = DefaultRegion
	}
	number, err := phonenumbers.Parse(input, region)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return nil, false
	}
	return number, true
}

// NormalizeE164 formats a phone number to E.164, reading numbers without a
// country prefix in region. Invalid input comes back trimmed.
func NormalizeE164(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	number, ok := parse(trimmed, region)
	if !ok {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

// Display renders a stored number in international notation, for example
// +1 650-253-0000. Invalid input comes back unchanged.
func Display(number string) string {
	parsed, ok := parse(number, DefaultRegion)
	if !ok {
		return number
	}
	return phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL)
}
