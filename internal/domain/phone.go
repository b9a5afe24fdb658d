package domain

import (
	"net/url"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse numbers written without a country code.
const DefaultPhoneRegion = "US"

// NormalizePhone formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizePhone(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// TelLink returns a tel: URI for the number.
func TelLink(number string) string {
	if number == "" {
		return ""
	}
	return "tel:" + url.PathEscape(number)
}
