package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"orgsync/pkg/apply"
	"orgsync/pkg/diff"
	"orgsync/pkg/engine"
	"orgsync/pkg/validate"
)

const maxValueWidth = 60

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}

// formatValue renders a field value for a table cell
func formatValue(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		return "(none)"
	case string:
		if val == "" {
			return `""`
		}
		s = val
	case []string:
		s = "[" + strings.Join(val, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + formatValue(val[k])
		}
		s = "{" + strings.Join(parts, ", ") + "}"
	default:
		s = fmt.Sprintf("%v", val)
	}

	if len(s) > maxValueWidth {
		return s[:maxValueWidth-3] + "..."
	}
	return s
}

// formatEdits renders an ordered list edit script
func formatEdits(edits []diff.Edit) string {
	parts := make([]string, 0, len(edits))
	for _, e := range edits {
		switch e.Op {
		case diff.EditInsert:
			parts = append(parts, fmt.Sprintf("+%s @%d", formatValue(e.New), e.NewIndex))
		case diff.EditDelete:
			parts = append(parts, fmt.Sprintf("-%s @%d", formatValue(e.Old), e.OldIndex))
		case diff.EditReplace:
			parts = append(parts, fmt.Sprintf("%s → %s @%d", formatValue(e.Old), formatValue(e.New), e.NewIndex))
		case diff.EditMove:
			parts = append(parts, fmt.Sprintf("%s moved %d → %d", formatValue(e.Old), e.OldIndex, e.NewIndex))
		}
	}
	return strings.Join(parts, ", ")
}

func actionMarker(p diff.Patch) string {
	switch p.Action {
	case diff.ActionAdd:
		return "+"
	case diff.ActionRemove:
		return "⚠️  -"
	default:
		if c, ok := p.Change("archived"); ok && c.New == true {
			return "⚠️  ~"
		}
		return "~"
	}
}

// renderPlan prints the patches of one organization
func renderPlan(w io.Writer, res *engine.Result, isDryRun bool) {
	if isDryRun {
		fmt.Fprintf(w, "\n🔍 Dry-run mode: Showing planned changes for %s\n", res.Org)
	} else {
		fmt.Fprintf(w, "\n📋 Planned changes for %s:\n", res.Org)
	}

	if !res.Changed() {
		fmt.Fprintf(w, "✅ No changes needed - organization is up to date\n")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"", "Resource", "Field", "Current", "Desired"})
	for _, p := range res.Patches {
		marker := actionMarker(p)
		key := p.ResourceKey()

		if p.Action == diff.ActionRemove {
			t.AppendRow(table.Row{marker, key, "", "(exists)", "(removed)"})
			continue
		}
		for _, c := range p.Changes {
			field := c.Field
			if c.ReadOnly {
				field += " (read-only)"
			}
			desired := formatValue(c.New)
			if len(c.Edits) > 0 {
				desired = formatEdits(c.Edits)
			}
			current := formatValue(c.Old)
			if p.Action == diff.ActionAdd {
				current = ""
			}
			t.AppendRow(table.Row{marker, key, field, current, desired})
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 2, AutoMerge: true},
	})
	t.Render()

	s := res.Summary()
	fmt.Fprintf(w, "\n📊 Total changes: %d (%d to add, %d to modify, %d to remove, %d potentially destructive)\n",
		len(res.Patches), s.Add, s.Modify, s.Remove, s.Destructive)
	if s.Destructive > 0 {
		fmt.Fprintf(w, "⚠️  WARNING: %d potentially destructive change(s) detected!\n", s.Destructive)
	}
}

// renderFindings prints validation findings, most severe first
func renderFindings(w io.Writer, findings validate.Findings) {
	if len(findings) == 0 {
		return
	}
	sorted := append(validate.Findings{}, findings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity > sorted[j].Severity
	})

	for _, f := range sorted {
		icon := "ℹ️ "
		switch f.Severity {
		case validate.SeverityError:
			icon = "❌"
		case validate.SeverityWarning:
			icon = "⚠️ "
		}
		fmt.Fprintf(w, "  %s %s: %s\n", icon, f.ResourceKey, f.Message)
	}
}

// renderWarnings prints the live state sections that could not be read
func renderWarnings(w io.Writer, res *engine.Result) {
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  ⚠️  %s\n", warning.String())
	}
}

// renderOutcomes prints what apply did with every patch
func renderOutcomes(w io.Writer, res *engine.Result) {
	if len(res.Outcomes) == 0 {
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Status", "Patch", "Detail"})
	for _, o := range res.Outcomes {
		detail := o.Reason
		switch o.Status {
		case apply.StatusFailed:
			if o.Err != nil {
				detail = o.Err.Error()
			}
		case apply.StatusApplied:
			detail = strings.Join(o.Calls, ", ")
		case apply.StatusSkipped:
			if len(o.Calls) > 0 {
				detail = fmt.Sprintf("%s: %s", o.Reason, strings.Join(o.Calls, ", "))
			}
		}
		t.AppendRow(table.Row{statusIcon(o.Status) + " " + string(o.Status), o.Patch.String(), detail})
	}
	t.Render()
}

func statusIcon(s apply.Status) string {
	switch s {
	case apply.StatusApplied:
		return "✓"
	case apply.StatusFailed:
		return "❌"
	default:
		return "-"
	}
}

func orgIcon(s engine.Status) string {
	switch s {
	case engine.StatusOK:
		return "✅"
	case engine.StatusInvalid:
		return "⚠️ "
	default:
		return "❌"
	}
}

// renderSummary prints one line per organization of the batch
func renderSummary(w io.Writer, report *engine.Report, withOutcomes bool) {
	fmt.Fprintf(w, "\n📊 Summary:\n")

	t := newTable(w)
	header := table.Row{"Organization", "Status", "Add", "Modify", "Remove"}
	if withOutcomes {
		header = append(header, "Applied", "Skipped", "Failed")
	}
	t.AppendHeader(header)
	for _, res := range report.Results {
		s := res.Summary()
		row := table.Row{res.Org, orgIcon(res.Status) + " " + string(res.Status), s.Add, s.Modify, s.Remove}
		if withOutcomes {
			row = append(row, s.Applied, s.Skipped, s.Failed)
		}
		t.AppendRow(row)
	}
	t.Render()

	fmt.Fprintf(w, "  Total: %d organization(s), %d ok, %d failed, %d incomplete, %d invalid\n",
		len(report.Results),
		report.Count(engine.StatusOK),
		report.Count(engine.StatusFailed),
		report.Count(engine.StatusIncomplete),
		report.Count(engine.StatusInvalid))
}

// renderErrors prints the error of every organization that did not succeed
func renderErrors(w io.Writer, report *engine.Report) {
	for _, res := range report.Results {
		if res.Status == engine.StatusOK || res.Err == nil {
			continue
		}
		fmt.Fprintf(w, "\n❌ %s (%s):\n", res.Org, res.Status)
		for _, line := range strings.Split(res.Err.Error(), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}
