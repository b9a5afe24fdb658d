package export_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/lead-finder/internal/domain"
	"github.com/couchcryptid/lead-finder/internal/export"
)

func sampleLeads() []domain.Lead {
	return []domain.Lead{
		{
			ID:          "node/1",
			Name:        "Joe's Plumbing",
			Industry:    "Plumbing",
			Address:     "12 Main St New York NY",
			Phone:       "212-555-0102",
			PhoneE164:   "+12125550102",
			NewnessDays: 5,
			IncomeTier:  domain.TierHigh,
			LeadScore:   45,
			DemoLink:    "https://example.com/demo/joe-s-plumbing",
		},
		{
			ID:            "way/2",
			Name:          "Bean There",
			Industry:      "Cafe",
			Phone:         "555-2222",
			EmailOrSocial: "hi@bean.example",
			NewnessDays:   20,
			IncomeTier:    domain.TierUnknown,
			LeadScore:     25,
			DemoLink:      "https://example.com/demo/bean-there",
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, sampleLeads()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t,
		"osm_id,name,industry,address,phone,email/social,newness_days,income_tier,demo_link,lead_score",
		strings.ToLower(lines[0]))
	assert.True(t, strings.HasPrefix(lines[1], "node/1,Joe's Plumbing,Plumbing,"), lines[1])
	assert.True(t, strings.HasSuffix(lines[1], ",5,High,https://example.com/demo/joe-s-plumbing,45"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "way/2,Bean There,Cafe,"), lines[2])
	assert.Contains(t, lines[2], "hi@bean.example")
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1, "header only")
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	export.WriteTable(&buf, sampleLeads())

	out := buf.String()
	assert.Contains(t, out, "Joe's Plumbing")
	assert.Contains(t, out, "+12125550102", "normalized phone preferred")
	assert.Contains(t, out, "555-2222", "raw phone when not normalized")
	assert.Less(t, strings.Index(out, "Joe's Plumbing"), strings.Index(out, "Bean There"))
}

func TestWriteCalls(t *testing.T) {
	var buf bytes.Buffer
	export.WriteCalls(&buf, []domain.CallRecord{{
		ID:       "c1",
		LeadID:   "node/1",
		Outcome:  domain.OutcomeVoicemail,
		CalledAt: time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC),
	}})

	assert.Contains(t, buf.String(), "2024-06-15 09:30:00")
	assert.Contains(t, buf.String(), "Voicemail")
}
