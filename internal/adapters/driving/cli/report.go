package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driving"
)

// maxSampleErrors is the number of item errors printed after a run.
const maxSampleErrors = 5

// styles holds the output styles. Without a terminal every style is plain.
type styles struct {
	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	dim   lipgloss.Style
	color bool
}

func newStyles(w io.Writer) styles {
	if !isTerminal(w) {
		plain := lipgloss.NewStyle()
		return styles{title: plain, ok: plain, warn: plain, fail: plain, dim: plain}
	}
	return styles{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		fail:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		dim:   lipgloss.NewStyle().Faint(true),
		color: true,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printRunResult prints the summary of a sync run.
func printRunResult(w io.Writer, res *driving.RunResult) {
	st := newStyles(w)

	fmt.Fprintln(w, st.title.Render(fmt.Sprintf("Sync → %s", res.Target)))
	fmt.Fprintf(w, "  Notebooks checked: %d\n", res.Owners)
	fmt.Fprintf(w, "  New: %d  Changed: %d  Unchanged: %d  Backlog: %d\n",
		len(res.Changes.New), len(res.Changes.Changed), len(res.Changes.Unchanged), res.Backlog)
	if n := len(res.Changes.Deferred); n > 0 {
		fmt.Fprintf(w, "  Waiting for retry backoff: %d\n", n)
	}
	if n := len(res.Changes.Exhausted); n > 0 {
		fmt.Fprintln(w, st.warn.Render(fmt.Sprintf("  Retries exhausted: %d (rmsync retry --reset)", n)))
	}
	printDispatch(w, st, res.Queued, res.Report)
}

// printBackfillResult prints the summary of a backfill.
func printBackfillResult(w io.Writer, res *driving.BackfillResult, dryRun bool) {
	st := newStyles(w)

	title := fmt.Sprintf("Backfill → %s", res.Target)
	if dryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(w, st.title.Render(title))

	for _, g := range res.Gaps {
		if len(g.Missing) == 0 {
			continue
		}
		pages := make([]string, len(g.Missing))
		for i, u := range g.Missing {
			pages[i] = fmt.Sprintf("%d", u.Sequence)
		}
		fmt.Fprintf(w, "  %s: %d of %d pages missing (%s)\n", g.OwnerID, len(g.Missing), g.Local, strings.Join(pages, ", "))
	}
	fmt.Fprintf(w, "  Missing: %d  Listing calls: %d\n", res.MissingCount(), res.ListCalls)
	if res.Skipped > 0 {
		fmt.Fprintln(w, st.warn.Render(fmt.Sprintf("  Notebooks skipped (budget spent): %d", res.Skipped)))
	}
	for _, e := range res.ListErrors {
		fmt.Fprintln(w, st.fail.Render(fmt.Sprintf("  List failed for %s: %s", e.ItemID, e.Message)))
	}
	if dryRun {
		return
	}
	printDispatch(w, st, res.Queued, res.Report)
}

func printDispatch(w io.Writer, st styles, queued int, report domain.DispatchReport) {
	if queued == 0 {
		fmt.Fprintln(w, st.dim.Render("  Nothing to sync."))
		return
	}

	line := fmt.Sprintf("  Queued: %d  Synced: %d  Failed: %d", queued, report.Synced, report.Failed)
	switch {
	case report.Failed == 0:
		fmt.Fprintln(w, st.ok.Render(line))
	case report.Synced == 0:
		fmt.Fprintln(w, st.fail.Render(line))
	default:
		fmt.Fprintln(w, st.warn.Render(line))
	}

	for i, e := range report.Errors {
		if i == maxSampleErrors {
			fmt.Fprintf(w, "    … and %d more\n", len(report.Errors)-maxSampleErrors)
			break
		}
		fmt.Fprintln(w, st.fail.Render(fmt.Sprintf("    %s: %s", e.ItemID, e.Message)))
	}
}

// printStats prints ledger totals and the targets in use.
func printStats(w io.Writer, stats *domain.LedgerStats, targets []string) {
	st := newStyles(w)

	fmt.Fprintln(w, st.title.Render("Sync ledger"))
	if len(targets) == 0 {
		fmt.Fprintln(w, st.warn.Render("  No targets configured."))
	} else {
		fmt.Fprintf(w, "  Targets: %s\n", strings.Join(targets, ", "))
	}
	fmt.Fprintf(w, "  Records: %d  Synced in last 24h: %d\n", stats.Total, stats.SyncedLast24)
	fmt.Fprintf(w, "  Success: %s  Pending: %d  Error: %s\n",
		st.ok.Render(fmt.Sprint(stats.ByStatus[domain.SyncStatusSuccess])),
		stats.ByStatus[domain.SyncStatusPending],
		st.fail.Render(fmt.Sprint(stats.ByStatus[domain.SyncStatusError])))

	if len(stats.ByTarget) > 0 {
		fmt.Fprintf(w, "  By target: %s\n", joinCounts(stats.ByTarget))
	}
	if len(stats.ByItemType) > 0 {
		byType := make(map[string]int, len(stats.ByItemType))
		for k, v := range stats.ByItemType {
			byType[string(k)] = v
		}
		fmt.Fprintf(w, "  By type: %s\n", joinCounts(byType))
	}
}

// printRuns prints recent run history as a table.
func printRuns(w io.Writer, runs []domain.RunRecord) {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render("Recent runs"))
	if len(runs) == 0 {
		fmt.Fprintln(w, st.dim.Render("  No runs yet."))
		return
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.TargetName,
			string(r.Kind),
			fmt.Sprint(r.Queued),
			fmt.Sprint(r.Synced),
			fmt.Sprint(r.Failed),
			r.EndedAt.Sub(r.StartedAt).Round(time.Second).String(),
		}
	}
	fmt.Fprintln(w, renderTable(st, []string{"Started", "Target", "Kind", "Queued", "Synced", "Failed", "Took"}, rows))
}

// printRecords prints ledger rows as a table.
func printRecords(w io.Writer, records []domain.SyncRecord) {
	st := newStyles(w)
	if len(records) == 0 {
		fmt.Fprintln(w, "No records found.")
		return
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			r.TargetName,
			string(r.ItemType),
			r.OwnerID,
			fmt.Sprint(r.Sequence),
			string(r.Status),
			fmt.Sprint(r.RetryCount),
			truncateText(r.ErrorMessage, 48),
		}
	}
	fmt.Fprintln(w, renderTable(st, []string{"Target", "Type", "Notebook", "Page", "Status", "Retries", "Error"}, rows))
}

func renderTable(st styles, headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	if st.color {
		t = t.StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	return t.String()
}

func joinCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}

func truncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
