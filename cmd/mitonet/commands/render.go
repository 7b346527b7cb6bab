package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"mitonet/internal/core"
	"mitonet/internal/ingest"
	"mitonet/internal/stats"
	"mitonet/pkg/domain"
)

const maxErrorWidth = 60

func newTable(w io.Writer, title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	if title != "" {
		tbl.SetTitle(title)
	}
	return tbl
}

func count(n int64) string { return humanize.Comma(n) }

func renderSourceFiles(w io.Writer, driver string, files []core.SourceFile) {
	fmt.Fprintf(w, "store ready (%s)\n", driver)
	tbl := newTable(w, "Source files")
	tbl.AppendHeader(table.Row{"Source", "Path", "Size", "Modified"})
	present := 0
	for _, f := range files {
		size, modified := color.YellowString("missing"), ""
		if f.Present {
			present++
			size = humanize.Bytes(uint64(max(f.Size, 0)))
			modified = humanize.Time(f.Updated)
		}
		tbl.AppendRow(table.Row{f.Name, f.Path, size, modified})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%d of %d present", present, len(files))})
	tbl.Render()
}

func renderReports(w io.Writer, reports []ingest.Report) {
	tbl := newTable(w, "Update")
	tbl.AppendHeader(table.Row{"Source", "Version", "Outcome", "Processed", "Applied", "Skipped", "Unresolved", "Conflicts", "Duration"})
	var total domain.Counters
	for _, r := range reports {
		outcome := outcomeColor(r.Outcome)
		if r.Resumed {
			outcome += fmt.Sprintf(" (resumed at %s)", count(r.ResumedFrom))
		}
		c := r.Counters
		total = total.Add(c)
		tbl.AppendRow(table.Row{
			r.Source, r.Version, outcome,
			count(c.Processed), count(c.Applied), count(c.Skipped), count(c.Unresolved), count(c.Conflicts),
			r.Duration.Round(time.Millisecond),
		})
	}
	tbl.AppendFooter(table.Row{"Total", "", "",
		count(total.Processed), count(total.Applied), count(total.Skipped), count(total.Unresolved), count(total.Conflicts), ""})
	tbl.Render()
}

func outcomeColor(o ingest.Outcome) string {
	switch o {
	case ingest.OutcomeCompleted:
		return color.GreenString(string(o))
	case ingest.OutcomeFailed:
		return color.RedString(string(o))
	case ingest.OutcomeMissing:
		return color.YellowString(string(o))
	default:
		return string(o)
	}
}

func renderAdded(w io.Writer, res core.AddResult) {
	if len(res.Added) > 0 {
		color.New(color.FgGreen).Fprintf(w, "added %d: %s\n", len(res.Added), strings.Join(res.Added, ", "))
	}
	if len(res.Existing) > 0 {
		fmt.Fprintf(w, "already present %d: %s\n", len(res.Existing), strings.Join(res.Existing, ", "))
	}
}

func renderSummary(w io.Writer, s stats.Summary) {
	tbl := newTable(w, "Store")
	tbl.AppendRows([]table.Row{
		{"Proteins", count(s.Proteins)},
		{"Mitochondrial", count(s.Mitochondrial)},
		{"Muscle expressed", count(s.MuscleExpressed)},
		{"Mitochondrial and muscle", count(s.MitoAndMuscle)},
		{"Interactions", count(s.Interactions)},
		{"Aliases", count(s.Aliases)},
		{"Data sources", count(s.Sources)},
	})
	tbl.Render()

	if len(s.EdgesBySource) > 0 {
		edges := newTable(w, "Interactions by source")
		edges.AppendHeader(table.Row{"Source", "Version", "Edges"})
		for _, e := range s.EdgesBySource {
			edges.AppendRow(table.Row{e.Name, e.Version, count(e.Edges)})
		}
		edges.Render()
	}

	bands := newTable(w, "Confidence")
	bands.AppendHeader(table.Row{"Band", "Range", "Interactions"})
	for i, b := range s.Confidence {
		closing := ")"
		if i == len(s.Confidence)-1 {
			closing = "]"
		}
		bands.AppendRow(table.Row{b.Label, fmt.Sprintf("[%.1f, %.1f%s", b.Lo, b.Hi, closing), count(b.Count)})
	}
	bands.Render()
}

func renderCheckpoints(w io.Writer, cps []domain.ProcessingCheckpoint) {
	if len(cps) == 0 {
		fmt.Fprintln(w, "no checkpoints")
		return
	}
	tbl := newTable(w, "Checkpoints")
	tbl.AppendHeader(table.Row{"Name", "Phase", "Status", "Started", "Offset", "Chunks", "Error"})
	for _, cp := range cps {
		tbl.AppendRow(table.Row{
			cp.Name, cp.Phase, statusColor(cp.Status), humanize.Time(cp.CreatedAt),
			count(cp.Data.Offset), cp.Data.Chunks, truncate(cp.ErrorMessage, maxErrorWidth),
		})
	}
	tbl.Render()
}

func statusColor(s domain.CheckpointStatus) string {
	switch s {
	case domain.CheckpointCompleted:
		return color.GreenString(string(s))
	case domain.CheckpointFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
