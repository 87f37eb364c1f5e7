package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mrsinham/dicomvol/internal/convert"
	"github.com/mrsinham/dicomvol/internal/resultsheet"
)

var (
	summaryPanelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(1, 2)

	summaryTitleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("63")).
		Bold(true).
		MarginBottom(1)

	summaryLabelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244")).
		Width(18)

	summaryValueStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("252")).
		Bold(true)

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("203"))
)

func summaryLine(label string, value any) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		summaryLabelStyle.Render(label),
		summaryValueStyle.Render(fmt.Sprint(value)))
}

// renderReport formats the outcome of a conversion run.
func renderReport(r *convert.Report) string {
	lines := []string{
		summaryTitleStyle.Render("Conversion summary"),
		summaryLine("Output", r.OutputDir),
		summaryLine("Series", len(r.Series)),
		summaryLine("Converted", r.Converted()),
		summaryLine("Packed", r.Packed()),
		summaryLine("Rejected", r.Rejected()),
		summaryLine("Failed", r.Failed()),
		summaryLine("Skipped slices", r.SkippedSlices()),
		summaryLine("Written", humanize.Bytes(uint64(r.BytesWritten))),
	}

	mods := make([]string, 0, len(r.Counts))
	for m := range r.Counts {
		mods = append(mods, m)
	}
	sort.Strings(mods)
	var per []string
	for _, m := range mods {
		per = append(per, fmt.Sprintf("%s=%d", m, r.Counts[m]))
	}
	if len(per) > 0 {
		lines = append(lines, summaryLine("Per modality", strings.Join(per, " ")))
	}

	for _, s := range r.Series {
		if s.Err != nil {
			lines = append(lines, failedStyle.Render(fmt.Sprintf("✗ %s: %v", s.Result.Name, s.Err)))
		}
	}
	return summaryPanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// renderSheets formats the per-directory means of result sheets.
func renderSheets(sheets []*resultsheet.Sheet) string {
	lines := []string{summaryTitleStyle.Render("Result sheets")}
	for _, s := range sheets {
		sum := s.Summary()
		lines = append(lines,
			summaryLine("Sheet", s.Path()),
			summaryLine("Volumes", fmt.Sprintf("%d (%d skipped)", sum.Volumes, len(s.Skipped))),
			summaryLine("Mean BPP", fmt.Sprintf("%.4f", sum.MeanBPP)),
			summaryLine("Mean enc. rate", fmt.Sprintf("%.3f Mvox/s", sum.MeanEncodingRate)),
			summaryLine("Mean dec. rate", fmt.Sprintf("%.3f Mvox/s", sum.MeanDecodingRate)),
		)
	}
	return summaryPanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
