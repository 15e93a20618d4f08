// Package ui provides terminal styling for obl CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/obligolabs/obligo/internal/types"
)

// Ayu theme color palette
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

// Status styles, consistent across all commands
var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
)

// CategoryStyle for section headers
var CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

// Status icons
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
	IconInfo = "ℹ"
)

// Tree characters for dependency chain display
const (
	TreeChild  = "⎿ "
	TreeLast   = "└─ "
	TreeIndent = "  "
)

// SeparatorLight divides sections in show output.
const SeparatorLight = "──────────────────────────────────────────"

// DisableColor forces plain output, for --no-color and piped output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// RenderMuted renders text with muted (gray) styling.
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// RenderAccent renders text with accent (blue) styling.
func RenderAccent(s string) string {
	return AccentStyle.Render(s)
}

// RenderCategory renders a section header in uppercase with accent color.
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color.
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// RenderStatus renders a status label in its semantic color.
func RenderStatus(s types.Status) string {
	switch s {
	case types.StatusVerified:
		return PassStyle.Render(string(s))
	case types.StatusSubmitted:
		return AccentStyle.Render(string(s))
	case types.StatusBlocked:
		return WarnStyle.Render(string(s))
	case types.StatusFailed:
		return FailStyle.Render(string(s))
	default:
		return string(s)
	}
}

// RenderSeverity renders a severity label in its semantic color.
func RenderSeverity(s types.Severity) string {
	switch s {
	case types.SeverityFailed, types.SeverityCritical:
		return FailStyle.Render(string(s))
	case types.SeverityHigh, types.SeverityElevated:
		return WarnStyle.Render(string(s))
	default:
		return MutedStyle.Render(string(s))
	}
}

// RenderEscalation renders an escalation label in its semantic color.
func RenderEscalation(e types.Escalation) string {
	switch e {
	case types.EscalationFailure, types.EscalationCritical:
		return FailStyle.Render(string(e))
	case types.EscalationUrgent:
		return WarnStyle.Render(string(e))
	default:
		return MutedStyle.Render(string(e))
	}
}

// RenderStuckIcon renders the warning icon for a stuck obligation.
func RenderStuckIcon() string {
	return WarnStyle.Render(IconWarn)
}

// RenderPassIcon renders the pass icon with styling.
func RenderPassIcon() string {
	return PassStyle.Render(IconPass)
}

// RenderFailIcon renders the fail icon with styling.
func RenderFailIcon() string {
	return FailStyle.Render(IconFail)
}
