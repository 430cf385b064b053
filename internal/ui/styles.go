package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nickcecere/fpstore/internal/fingerprint"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("39")  // Cyan
	ColorSecondary = lipgloss.Color("212") // Pink
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("245") // Gray
	ColorHighlight = lipgloss.Color("226") // Yellow
)

// Styles for various UI elements
var (
	// Text styles
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = lipgloss.NewStyle().Foreground(ColorMuted)
	Highlight = lipgloss.NewStyle().Foreground(ColorHighlight)
	Header    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	// Status styles
	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Error   = lipgloss.NewStyle().Foreground(ColorError)

	// Record styles
	FilePath  = lipgloss.NewStyle().Foreground(ColorPrimary)
	LineNum   = lipgloss.NewStyle().Foreground(ColorMuted)
	UpperSide = lipgloss.NewStyle().Foreground(ColorPrimary)
	LowerSide = lipgloss.NewStyle().Foreground(ColorSecondary)

	// Result styles
	ResultScore = lipgloss.NewStyle().
			Foreground(ColorSuccess)
	ResultContent = lipgloss.NewStyle().
			Foreground(ColorMuted).
			PaddingLeft(2)

	// Section styles
	SectionTitle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true).
			MarginTop(1)
	Divider = lipgloss.NewStyle().
		Foreground(ColorMuted)
)

// HorizontalRule returns a styled horizontal divider.
func HorizontalRule(width int) string {
	return Divider.Render(strings.Repeat("─", max(width, 0)))
}

// FormatSource formats a source path with line numbers.
func FormatSource(path string, startLine, endLine int) string {
	return FilePath.Render(path) + LineNum.Render(fmt.Sprintf(":%d-%d", startLine, endLine))
}

// FormatScore formats a similarity score as a percentage.
func FormatScore(score float64) string {
	return ResultScore.Render(fmt.Sprintf("(%.1f%% match)", score*100))
}

// FormatPair formats a fingerprint pair with both sides colored.
func FormatPair(p fingerprint.Pair, places int) string {
	return UpperSide.Render(fingerprint.FormatString(p.Upper, places)) +
		Dim.Render(" / ") +
		LowerSide.Render(fingerprint.FormatString(p.Lower, places))
}

// FormatSide renders a value in the color of its tree.
func FormatSide(side fingerprint.Side, value float64, places int) string {
	style := UpperSide
	if side == fingerprint.SideLower {
		style = LowerSide
	}
	return style.Render(fmt.Sprintf("%s %s", side, fingerprint.FormatString(value, places)))
}
