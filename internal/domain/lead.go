package domain

import (
	"errors"
	"fmt"
	"time"
)

// IncomeTier is a coarse bucket of ZIP-level median household income.
type IncomeTier string

const (
	TierHigh    IncomeTier = "High"
	TierMedium  IncomeTier = "Medium"
	TierLow     IncomeTier = "Low"
	TierUnknown IncomeTier = "Unknown"
)

// Lead is a scored sales lead built from a RawPOI. It is not mutated after the
// pipeline returns it; call outcomes are stored separately, keyed by ID.
type Lead struct {
	ID            string     `json:"osm_id"`
	Name          string     `json:"name"`
	Industry      string     `json:"industry"`
	Address       string     `json:"address"`
	Phone         string     `json:"phone"`
	PhoneE164     string     `json:"phone_e164,omitempty"`
	TelLink       string     `json:"tel_link,omitempty"`
	EmailOrSocial string     `json:"email_or_social"`
	OpenedOn      time.Time  `json:"opened_on"`
	NewnessDays   int        `json:"newness_days"`
	Postcode      string     `json:"postcode,omitempty"`
	IncomeTier    IncomeTier `json:"income_tier"`
	LeadScore     int        `json:"lead_score"`
	DemoLink      string     `json:"demo_link"`
	Lat           float64    `json:"lat,omitempty"`
	Lon           float64    `json:"lon,omitempty"`
}

// Outcome is the result of a sales call.
type Outcome string

const (
	OutcomeUncalled  Outcome = "Uncalled"
	OutcomeConnected Outcome = "Connected"
	OutcomeVoicemail Outcome = "Voicemail"
	OutcomeNoAnswer  Outcome = "No Answer"
)

// ErrInvalidOutcome is returned for outcomes outside the recordable set.
var ErrInvalidOutcome = errors.New("invalid call outcome")

// ParseOutcome validates a call outcome label. Uncalled is accepted but is a
// sentinel meaning "do not record"; see [Outcome.Recordable].
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeUncalled, OutcomeConnected, OutcomeVoicemail, OutcomeNoAnswer:
		return o, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
}

// Recordable reports whether the outcome should be written to call history.
func (o Outcome) Recordable() bool {
	return o == OutcomeConnected || o == OutcomeVoicemail || o == OutcomeNoAnswer
}

// CallRecord is one entry of the append-only call history.
type CallRecord struct {
	ID       string    `json:"id"`
	LeadID   string    `json:"osm_id"`
	Outcome  Outcome   `json:"outcome"`
	CalledAt time.Time `json:"called_at"`
}

// SMSTemplate is the text-message pitch sent with a lead's demo link.
const SMSTemplate = "Hi, check out our demo: %s"

// SMS renders the text-message pitch for the lead.
func (l Lead) SMS() string {
	return fmt.Sprintf(SMSTemplate, l.DemoLink)
}
