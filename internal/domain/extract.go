package domain

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Rejection reasons. The pipeline counts them but never surfaces them to the caller.
var (
	ErrAlreadyWebPresent = errors.New("poi already has a website")
	ErrMissingContact    = errors.New("poi has no phone")
	ErrMissingDate       = errors.New("poi has no opening or start date")
	ErrUnparseableDate   = errors.New("poi opening date is not an ISO-8601 calendar date")
)

// DefaultDemoBaseURL is the origin that demo links are built on.
const DefaultDemoBaseURL = "https://yourdomain.com"

var (
	// dateRe requires a full calendar date prefix; partial dates like "2024-05"
	// are common in OSM and are rejected.
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

	zipPlus4Re = regexp.MustCompile(`^(\d{5})-\d{4}$`)
	digitsRe   = regexp.MustCompile(`^\d{1,5}$`)
)

// dateLayouts are tried in order after the calendar-date prefix check.
var dateLayouts = []string{
	time.DateOnly,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Extractor turns raw POIs into unscored leads.
type Extractor struct {
	verticals   []Vertical
	demoBaseURL string
	phoneRegion string
}

// NewExtractor creates an Extractor. Empty arguments fall back to the defaults.
func NewExtractor(verticals []Vertical, demoBaseURL, phoneRegion string) *Extractor {
	if len(verticals) == 0 {
		verticals = DefaultVerticals()
	}
	if demoBaseURL == "" {
		demoBaseURL = DefaultDemoBaseURL
	}
	if phoneRegion == "" {
		phoneRegion = DefaultPhoneRegion
	}
	return &Extractor{
		verticals:   verticals,
		demoBaseURL: strings.TrimRight(demoBaseURL, "/"),
		phoneRegion: phoneRegion,
	}
}

// Verticals returns the vertical table used for classification.
func (e *Extractor) Verticals() []Vertical {
	return e.verticals
}

// Extract validates a POI and builds its lead. Rejections are reported as one of
// the Err* sentinels, checked in order: website, phone, date presence, date format.
// IncomeTier is left Unknown and LeadScore zero; the pipeline fills both.
func (e *Extractor) Extract(raw RawPOI) (Lead, error) {
	tags := raw.Tags
	if tags.Has("website") {
		return Lead{}, ErrAlreadyWebPresent
	}
	phone, ok := tags.First(PhoneKeys...)
	if !ok {
		return Lead{}, ErrMissingContact
	}
	opening, ok := tags.First(OpeningDateKeys...)
	if !ok {
		return Lead{}, ErrMissingDate
	}
	openedOn, err := ParseOpeningDate(opening)
	if err != nil {
		return Lead{}, err
	}

	name := tags.Get("name", "Unknown")
	emailOrSocial, _ := tags.First(EmailOrSocialKeys...)
	e164 := NormalizePhone(phone, e.phoneRegion)

	return Lead{
		ID:            raw.ID,
		Name:          name,
		Industry:      Classify(e.verticals, tags),
		Address:       AssembleAddress(tags),
		Phone:         phone,
		PhoneE164:     e164,
		TelLink:       TelLink(e164),
		EmailOrSocial: emailOrSocial,
		OpenedOn:      openedOn,
		NewnessDays:   NewnessDays(openedOn, Now()),
		Postcode:      NormalizeZIP(tags["addr:postcode"]),
		IncomeTier:    TierUnknown,
		DemoLink:      DemoLink(e.demoBaseURL, name),
		Lat:           raw.Lat,
		Lon:           raw.Lon,
	}, nil
}

// ParseOpeningDate parses an ISO-8601 calendar date with an optional time part.
// Only the extended form is accepted: basic dates (20240601) and offsets
// without a colon (+0200) are rejected.
func ParseOpeningDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !dateRe.MatchString(s) {
		return time.Time{}, ErrUnparseableDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrUnparseableDate
}

// NewnessDays returns the whole days elapsed from opened to now, rounded down.
// Future dates yield negative values.
func NewnessDays(opened, now time.Time) int {
	return int(math.Floor(now.Sub(opened).Hours() / 24))
}

// AssembleAddress prefers addr:full, otherwise joins house number, street,
// city, and state with single spaces, skipping absent parts.
func AssembleAddress(tags Tags) string {
	if full, ok := tags.First("addr:full"); ok {
		return full
	}
	parts := make([]string, 0, len(AddressPartKeys))
	for _, k := range AddressPartKeys {
		if v, ok := tags.First(k); ok {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// NormalizeZIP trims a postal code, reduces ZIP+4 to its five-digit prefix, and
// zero-pads short numeric codes. Anything else is returned trimmed.
func NormalizeZIP(s string) string {
	s = strings.TrimSpace(s)
	if m := zipPlus4Re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if digitsRe.MatchString(s) {
		return strings.Repeat("0", 5-len(s)) + s
	}
	return s
}

// Slugify lower-cases s, replaces every non-alphanumeric rune with a hyphen, and
// trims leading and trailing hyphens. Runs of hyphens are kept.
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('-')
	}
	return strings.Trim(b.String(), "-")
}

// DemoLink builds the per-lead marketing URL.
func DemoLink(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + "/demo/" + Slugify(name)
}
