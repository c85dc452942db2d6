package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// printSummary writes the results table followed by the overall tally.
func printSummary(w io.Writer, result *RunResult, color bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("API Test Results %s (%s)", result.RunID, formatDuration(result.Duration)))
	t.AppendHeader(table.Row{"Check", "Duration", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Check", WidthMax: 40},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80},
	})

	for _, res := range result.Results {
		t.AppendRow(table.Row{
			res.ID,
			formatDuration(res.Duration),
			statusString(res.Passed, color),
			res.Error,
		})
	}
	t.AppendFooter(table.Row{
		"TOTAL",
		formatDuration(result.Duration),
		fmt.Sprintf("%d/%d", result.Stats.Passed, result.Stats.Total),
		"",
	})

	switch {
	case !color:
		t.SetStyle(table.StyleLight)
	case result.Passed():
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	fmt.Fprintln(w)
	t.Render()

	fmt.Fprintf(w, "\nOverall: %d/%d tests passed\n", result.Stats.Passed, result.Stats.Total)
	if result.Passed() {
		fmt.Fprintln(w, "🎉 All tests passed!")
	} else {
		fmt.Fprintf(w, "⚠️  %d tests failed\n", result.Stats.Failed)
	}
}

func statusString(passed bool, color bool) string {
	status, c := "✗ fail", text.FgRed
	if passed {
		status, c = "✓ pass", text.FgGreen
	}
	if !color {
		return status
	}
	return c.Sprint(status)
}
