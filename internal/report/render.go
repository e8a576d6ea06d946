package report

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/sensorstats/internal/engine"
	"github.com/Sumatoshi-tech/sensorstats/pkg/safeconv"
)

// RenderRanking prints a ranked group table to w with the given title.
func RenderRanking(w io.Writer, title string, groups []engine.GroupStats) {
	color.New(color.FgCyan, color.Bold).Fprintf(w, "%s\n", title)

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"#", "Site", "Device", "Metric", "Count", "Mean", "Min", "Max", "Std"})

	for i, g := range groups {
		tbl.AppendRow(table.Row{
			i + 1,
			g.Key.Site,
			g.Key.Device,
			g.Key.Metric,
			humanize.Comma(safeconv.MustUint64ToInt64(g.Count)),
			fmt.Sprintf("%.4f", g.Mean),
			formatFloat(g.Min),
			formatFloat(g.Max),
			fmt.Sprintf("%.4f", g.Std),
		})
	}

	tbl.Render()
}

// Summary holds the run counters shown after a completed run.
type Summary struct {
	RowsRead     uint64
	RowsFiltered uint64
	RowsInvalid  uint64
	Groups       int
	Outliers     int
	OutlierPass  bool
}

// RenderSummary prints the run counters to w.
func RenderSummary(w io.Writer, s Summary) {
	color.New(color.FgGreen, color.Bold).Fprintf(w, "Run complete\n")

	fmt.Fprintf(w, "  rows read:     %s\n", humanize.Comma(safeconv.MustUint64ToInt64(s.RowsRead)))
	fmt.Fprintf(w, "  rows filtered: %s\n", humanize.Comma(safeconv.MustUint64ToInt64(s.RowsFiltered)))
	fmt.Fprintf(w, "  rows invalid:  %s\n", humanize.Comma(safeconv.MustUint64ToInt64(s.RowsInvalid)))
	fmt.Fprintf(w, "  groups:        %s\n", humanize.Comma(int64(s.Groups)))

	if s.OutlierPass {
		fmt.Fprintf(w, "  outliers:      %s\n", humanize.Comma(int64(s.Outliers)))
	}
}
