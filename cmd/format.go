package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/sells-group/dvf-flood/internal/dvf"
	"github.com/sells-group/dvf-flood/internal/pipeline"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
)

// formatFilterStats writes the ingest counts by drop reason.
func formatFilterStats(out io.Writer, s dvf.FilterStats, kept int) {
	_, _ = fmt.Fprintln(out, titleStyle.Render("Ingest"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Sales aggregated:\t%d\n", s.In)
	_, _ = fmt.Fprintf(w, "  Not a sale:\t%d\n", s.NotSale)
	_, _ = fmt.Fprintf(w, "  No value:\t%d\n", s.NoValue)
	_, _ = fmt.Fprintf(w, "  Overseas:\t%d\n", s.Overseas)
	_, _ = fmt.Fprintf(w, "  Not residential:\t%d\n", s.NotResidence)
	_, _ = fmt.Fprintf(w, "  Nature culture:\t%d\n", s.NatureCulture)
	_, _ = fmt.Fprintf(w, "After filters:\t%d\n", s.Out)
	_, _ = fmt.Fprintf(w, "Kept:\t%d\n", kept)
	_ = w.Flush()
}

// formatEnrichStats writes the coordinate and flood outcome counts.
func formatEnrichStats(out io.Writer, s pipeline.EnrichStats) {
	_, _ = fmt.Fprintln(out, titleStyle.Render("Enrich"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Geocoded:\t%d\n", s.Geocoded)
	_, _ = fmt.Fprintf(w, "Not geocoded:\t%d\n", s.GeocodeMissed)
	_, _ = fmt.Fprintf(w, "Commune fallback:\t%d\n", s.Fallback)
	_, _ = fmt.Fprintf(w, "No coordinate:\t%d\n", s.NoCoordinate)
	_, _ = fmt.Fprintf(w, "In flood zone:\t%d\n", s.InZone)
	_, _ = fmt.Fprintf(w, "Outside:\t%d\n", s.NoZone)
	_, _ = fmt.Fprintf(w, "Ambiguous:\t%d\n", s.Ambiguous)
	_, _ = fmt.Fprintf(w, "Lookup failed:\t%d\n", s.Failed)
	_ = w.Flush()
}

// formatReport writes a property type's result table.
func formatReport(out io.Writer, r pipeline.PropertyReport) {
	_, _ = fmt.Fprintf(out, "%s (%d models, %s)\n", titleStyle.Render(r.Label), r.Fitted, r.Path)
	if r.Table == nil || len(r.Table.Columns) == 0 {
		_, _ = fmt.Fprintln(out, "No model fitted.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := make([]string, 0, len(r.Table.Columns)+1)
	header = append(header, headerStyle.Render("Variable"))
	for _, c := range r.Table.Columns {
		header = append(header, headerStyle.Render(c))
	}
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, row := range r.Table.Rows {
		_, _ = fmt.Fprintln(w, row.Variable+"\t"+strings.Join(row.Cells, "\t"))
	}
	_ = w.Flush()
}

// formatCommuneStats writes the commune comparison table.
func formatCommuneStats(out io.Writer, stats []pipeline.CommuneStat) {
	_, _ = fmt.Fprintln(out, titleStyle.Render("Communes"))
	if len(stats) == 0 {
		_, _ = fmt.Fprintln(out, "No commune with classified sales.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("Commune"),
		headerStyle.Render("Population"),
		headerStyle.Render("€/m² outside"),
		headerStyle.Render("€/m² inside"),
		headerStyle.Render("Gap"),
		headerStyle.Render("Sales"),
		headerStyle.Render("In zone"))
	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.0f\t%.0f\t%+.1f%%\t%d\t%.1f%%\n",
			s.Commune, s.Population, s.MeanOutside, s.MeanInside, s.Gap, s.Transactions, s.FloodShare)
	}
	_ = w.Flush()
}
