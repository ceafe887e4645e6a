package cli

// ---------------------------------------------------------------------------
// Terminal rendering for analysis results and run history.
//
// Reports are written as one block per termination event: an event line with
// icon, pod, status, and check results, then one line per tracked metric with
// its deviation and both significance tiers. Styling is skipped entirely when
// the writer is not a terminal or NO_COLOR is set, so piped output stays
// clean and the full detail still lives in the CSV/JSON reports.
// ---------------------------------------------------------------------------

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/resilitics/resilitics/internal/engine"
	"github.com/resilitics/resilitics/internal/impact"
	"github.com/resilitics/resilitics/internal/stats"
	"github.com/resilitics/resilitics/internal/store"
)

const renderFallbackWidth = 80

// Report palette.
var (
	colorAccent   = lipgloss.Color("#5FA8D3")
	colorOk       = lipgloss.Color("#4CAF78")
	colorMarginal = lipgloss.Color("#F4D03F")
	colorStrong   = lipgloss.Color("#F39C12")
	colorSevere   = lipgloss.Color("#E74C3C")
	colorMuted    = lipgloss.Color("#6B7A86")
)

var styles = struct {
	Title    lipgloss.Style
	Accent   lipgloss.Style
	Muted    lipgloss.Style
	Ok       lipgloss.Style
	Marginal lipgloss.Style
	Strong   lipgloss.Style
	Severe   lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true),
	Accent:   lipgloss.NewStyle().Foreground(colorAccent),
	Muted:    lipgloss.NewStyle().Foreground(colorMuted),
	Ok:       lipgloss.NewStyle().Foreground(colorOk),
	Marginal: lipgloss.NewStyle().Foreground(colorMarginal),
	Strong:   lipgloss.NewStyle().Foreground(colorStrong),
	Severe:   lipgloss.NewStyle().Foreground(colorSevere).Bold(true),
}

const (
	iconClean  = "✓"
	iconImpact = "✗"
	iconWarn   = "⚠"
	iconDryRun = "○"
)

// renderer writes report text to one destination with a fixed color policy.
type renderer struct {
	w     io.Writer
	color bool
	width int
	na    string
}

func newRenderer(w io.Writer, na string) *renderer {
	return &renderer{w: w, color: colorEnabled(w), width: terminalWidth(w), na: na}
}

// paint applies st only when color output is enabled. Cells are padded
// before painting so ANSI escapes never shift column starts.
func (r *renderer) paint(st lipgloss.Style, s string) string {
	if !r.color {
		return s
	}
	return st.Render(s)
}

// colorEnabled reports whether w is a real terminal and color has not been
// disabled via NO_COLOR.
func colorEnabled(w io.Writer) bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the column count of w when it is a terminal, else
// the conventional 80.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return renderFallbackWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return renderFallbackWidth
	}
	return width
}

// renderAnalysis prints a freshly computed analysis.
func renderAnalysis(w io.Writer, a *engine.Analysis, na string) {
	r := newRenderer(w, na)
	fmt.Fprintf(r.w, "%s %s  %s\n\n",
		r.paint(styles.Title, "Impact analysis"),
		a.RunID,
		r.paint(styles.Muted, fmt.Sprintf("(%s baseline, %s, %s)",
			a.Strategy, plural(len(a.Results), "event"), a.Duration.Round(time.Millisecond))),
	)
	r.results(a.Results)
	r.verdict(a.Results)
}

// renderRunList prints stored runs, newest first, one per line.
func renderRunList(w io.Writer, recs []*store.RunRecord) {
	r := newRenderer(w, "")
	if len(recs) == 0 {
		fmt.Fprintln(r.w, r.paint(styles.Muted, "no stored runs"))
		return
	}
	fmt.Fprintln(r.w, r.paint(styles.Muted,
		fmt.Sprintf("%-36s  %-19s  %-9s  %6s  %s", "ID", "CREATED", "STRATEGY", "EVENTS", "STATUS")))
	for _, rec := range recs {
		fmt.Fprintf(r.w, "%-36s  %-19s  %-9s  %6d  %s\n",
			rec.ID,
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Strategy,
			rec.EventCount,
			r.paint(statusStyle(rec.Status), rec.Status),
		)
	}
}

// renderRunRecord prints a stored run in the same shape as a fresh analysis.
func renderRunRecord(w io.Writer, rec *store.RunRecord, na string) {
	r := newRenderer(w, na)
	fmt.Fprintf(r.w, "%s %s  %s\n",
		r.paint(styles.Title, "Run"),
		rec.ID,
		r.paint(statusStyle(rec.Status), rec.Status),
	)
	fmt.Fprintf(r.w, "  %s %s\n", r.paint(styles.Muted, "strategy"), rec.Strategy)
	fmt.Fprintf(r.w, "  %s %s\n", r.paint(styles.Muted, "results "), rec.ResultsPath)
	fmt.Fprintf(r.w, "  %s %s\n", r.paint(styles.Muted, "events  "), rec.EventsPath)
	if rec.BaselinePath != "" {
		fmt.Fprintf(r.w, "  %s %s\n", r.paint(styles.Muted, "baseline"), rec.BaselinePath)
	}
	fmt.Fprintf(r.w, "  %s %s\n", r.paint(styles.Muted, "created "),
		rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if rec.Error != "" {
		fmt.Fprintf(r.w, "  %s %s\n", r.paint(styles.Severe, "error   "), rec.Error)
	}
	fmt.Fprintln(r.w)

	results := resultsFromRecord(rec)
	r.results(results)
	r.verdict(results)
}

// renderEventSummary prints the tally of a finished chaos run.
func renderEventSummary(w io.Writer, events []impact.Event, logPath string) {
	r := newRenderer(w, "")
	if len(events) == 0 {
		fmt.Fprintln(r.w, r.paint(styles.Muted, "no terminations recorded"))
		return
	}
	var deleted, dryRun, failed int
	for _, ev := range events {
		switch ev.Outcome {
		case impact.OutcomeDeleted:
			deleted++
		case impact.OutcomeDryRun:
			dryRun++
		default:
			failed++
		}
	}
	parts := make([]string, 0, 3)
	if deleted > 0 {
		parts = append(parts, r.paint(styles.Severe, fmt.Sprintf("%d deleted", deleted)))
	}
	if dryRun > 0 {
		parts = append(parts, r.paint(styles.Muted, fmt.Sprintf("%d dry-run", dryRun)))
	}
	if failed > 0 {
		parts = append(parts, r.paint(styles.Marginal, plural(failed, "delete error")))
	}
	dest := "kept in memory only"
	if logPath != "" {
		dest = "written to " + logPath
	}
	fmt.Fprintf(r.w, "%s %s: %s\n", plural(len(events), "event"), dest, strings.Join(parts, ", "))
}

// results prints one block per event.
func (r *renderer) results(results []impact.Result) {
	if len(results) == 0 {
		fmt.Fprintln(r.w, r.paint(styles.Muted, "no termination events in input"))
		return
	}
	nameWidth := r.metricNameWidth(results)
	for i := range results {
		r.eventBlock(&results[i], nameWidth)
	}
}

// eventBlock prints the event line followed by one line per metric.
func (r *renderer) eventBlock(res *impact.Result, nameWidth int) {
	icon, iconStyle := eventBadge(res)
	line := fmt.Sprintf("%s %s  %s  %s",
		r.paint(iconStyle, icon),
		r.paint(styles.Title, res.Event.Pod),
		r.paint(outcomeStyle(res.Event.Outcome), string(res.Event.Outcome)),
		time.UnixMilli(res.Event.Time).Local().Format("15:04:05"),
	)
	if res.ChecksSeen > 0 {
		checks := fmt.Sprintf("checks %.1f%% over %d samples", res.SuccessRate, res.ChecksSeen)
		if res.HasFailures {
			checks += ", failures seen"
		}
		line += "  " + r.paint(styles.Muted, checks)
	}
	fmt.Fprintln(r.w, line)

	for _, ma := range res.Metrics {
		r.metricLine(ma, nameWidth)
	}
	fmt.Fprintln(r.w)
}

// metricLine prints one metric's deviation, or its unavailable marker with
// the window counts that explain why.
func (r *renderer) metricLine(ma impact.MetricAssessment, nameWidth int) {
	name := fmt.Sprintf("%-*s", nameWidth, truncate(ma.Column, nameWidth))
	if !ma.Available {
		fmt.Fprintf(r.w, "    %s  %s %s\n",
			name,
			r.na,
			r.paint(styles.Muted, fmt.Sprintf("(before %d, after %d, baseline %d samples)",
				ma.Before.Count, ma.After.Count, ma.Baseline.Count)),
		)
		return
	}
	pct := fmt.Sprintf("%+7.1f%%", ma.PercentChange)
	z := fmt.Sprintf("%+6.2f", ma.ZScore)
	fmt.Fprintf(r.w, "    %s  Δ %s %s  z %s %s\n",
		name,
		r.paint(significanceStyle(ma.PctLabel), pct),
		r.paint(significanceStyle(ma.PctLabel), fmt.Sprintf("(%-18s)", ma.PctLabel)),
		r.paint(significanceStyle(ma.ZLabel), z),
		r.paint(significanceStyle(ma.ZLabel), fmt.Sprintf("(%-18s)", ma.ZLabel)),
	)
}

// verdict prints the one-line summary that closes a report.
func (r *renderer) verdict(results []impact.Result) {
	if len(results) == 0 {
		return
	}
	significant, marginal := 0, 0
	for i := range results {
		for _, ma := range results[i].Metrics {
			if !ma.Available {
				continue
			}
			switch worstRank(ma) {
			case 0:
			case 1:
				marginal++
			default:
				significant++
			}
		}
	}
	events := plural(len(results), "event")
	switch {
	case significant > 0 && marginal > 0:
		fmt.Fprintln(r.w, r.paint(styles.Severe,
			fmt.Sprintf("%d significant and %d marginal deviations across %s", significant, marginal, events)))
	case significant > 0:
		fmt.Fprintln(r.w, r.paint(styles.Severe,
			fmt.Sprintf("%s across %s", plural(significant, "significant deviation"), events)))
	case marginal > 0:
		fmt.Fprintln(r.w, r.paint(styles.Marginal,
			fmt.Sprintf("%s across %s", plural(marginal, "marginal deviation"), events)))
	default:
		fmt.Fprintln(r.w, r.paint(styles.Ok,
			fmt.Sprintf("no significant deviations across %s", events)))
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// metricNameWidth sizes the name column so the stats still fit on the line.
func (r *renderer) metricNameWidth(results []impact.Result) int {
	width := 0
	for i := range results {
		for _, ma := range results[i].Metrics {
			if n := len([]rune(ma.Column)); n > width {
				width = n
			}
		}
	}
	limit := r.width - 56
	if limit < 12 {
		limit = 12
	}
	if width > limit {
		width = limit
	}
	if width < 4 {
		width = 4
	}
	return width
}

// eventBadge picks the icon that leads an event block.
func eventBadge(res *impact.Result) (string, lipgloss.Style) {
	switch res.Event.Outcome {
	case impact.OutcomeDryRun:
		return iconDryRun, styles.Muted
	case impact.OutcomeDeleteError:
		return iconWarn, styles.Marginal
	}
	for _, ma := range res.Metrics {
		if ma.Available && worstRank(ma) >= stats.Significant.Rank() {
			return iconImpact, styles.Severe
		}
	}
	return iconClean, styles.Ok
}

// worstRank is the severity of an assessment on either scale.
func worstRank(ma impact.MetricAssessment) int {
	rank := ma.ZLabel.Rank()
	if p := ma.PctLabel.Rank(); p > rank {
		rank = p
	}
	return rank
}

func significanceStyle(s stats.Significance) lipgloss.Style {
	switch s {
	case stats.HighlySignificant:
		return styles.Severe
	case stats.Significant:
		return styles.Strong
	case stats.Marginal:
		return styles.Marginal
	default:
		return styles.Muted
	}
}

func outcomeStyle(o impact.Outcome) lipgloss.Style {
	switch o {
	case impact.OutcomeDeleted:
		return styles.Accent
	case impact.OutcomeDeleteError:
		return styles.Marginal
	default:
		return styles.Muted
	}
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case store.RunStatusCompleted:
		return styles.Ok
	case store.RunStatusFailed:
		return styles.Severe
	default:
		return styles.Marginal
	}
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}
