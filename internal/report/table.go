package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
)

// WriteTable prints the live hosts as a table, or the no-live-hosts message
// when there are none. Colour is only applied when w is a terminal.
func WriteTable(w io.Writer, r Report) error {
	doc := r.Document()
	if len(doc.Hosts) == 0 {
		_, err := fmt.Fprintln(w, NoLiveHostsMessage)
		return err
	}

	renderer := lipgloss.NewRenderer(w)
	online := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))

	table := tablewriter.NewWriter(w)
	if r.Enriched() {
		table.Header("IP ADDRESS", "STATUS", "METHOD", "NAME", "MAC", "VENDOR")
	} else {
		table.Header("IP ADDRESS", "STATUS", "METHOD")
	}

	for _, rec := range doc.Hosts {
		row := []string{rec.Address, online.Render(rec.Status), rec.MethodList()}
		if r.Enriched() {
			row = append(row, dash(rec.DeviceName), dash(rec.MacAddress), dash(rec.Manufacturer))
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("append row %s: %w", rec.Address, err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}

	_, err := fmt.Fprintf(w, "%d live of %d scanned", doc.LiveCount, doc.Scanned)
	if err == nil && doc.Subnet != "" {
		_, err = fmt.Fprintf(w, " in %s", doc.Subnet)
	}
	if err == nil {
		_, err = fmt.Fprintln(w)
	}
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
