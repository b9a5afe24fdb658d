// Package export renders ranked leads for operators: CSV for spreadsheets and
// an aligned table for the terminal.
package export

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/couchcryptid/lead-finder/internal/domain"
)

// CSVHeader is the column order of exported lead files.
var CSVHeader = table.Row{
	"osm_id", "name", "industry", "address", "phone", "email/social",
	"newness_days", "income_tier", "demo_link", "lead_score",
}

// WriteCSV writes the leads as CSV, header first, in the order given.
func WriteCSV(w io.Writer, leads []domain.Lead) error {
	t := table.NewWriter()
	t.AppendHeader(CSVHeader)
	for _, l := range leads {
		t.AppendRow(table.Row{
			l.ID, l.Name, l.Industry, l.Address, l.Phone, l.EmailOrSocial,
			l.NewnessDays, string(l.IncomeTier), l.DemoLink, l.LeadScore,
		})
	}
	if _, err := io.WriteString(w, t.RenderCSV()+"\n"); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteTable renders the leads as a numbered table with a score footer.
func WriteTable(w io.Writer, leads []domain.Lead) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Score", "Name", "Industry", "Phone", "Income", "Days", "Address"})
	for i, l := range leads {
		phone := l.Phone
		if l.PhoneE164 != "" {
			phone = l.PhoneE164
		}
		t.AppendRow(table.Row{i + 1, l.LeadScore, l.Name, l.Industry, phone, string(l.IncomeTier), l.NewnessDays, l.Address})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(leads)})
	t.Render()
}

// WriteCalls renders a lead's call history.
func WriteCalls(w io.Writer, calls []domain.CallRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Called At", "Outcome", "Call ID"})
	for _, c := range calls {
		t.AppendRow(table.Row{c.CalledAt.Format("2006-01-02 15:04:05"), string(c.Outcome), c.ID})
	}
	t.Render()
}
