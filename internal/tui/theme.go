package tui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	colorPrimary   = lipgloss.Color("#2563EB") // Blue
	colorSecondary = lipgloss.Color("#93C5FD") // Light blue
	colorSuccess   = lipgloss.Color("#10B981") // Green
	colorDanger    = lipgloss.Color("#EF4444") // Red
	colorMuted     = lipgloss.Color("#6B7280") // Gray
	colorBorder    = lipgloss.Color("#374151") // Dark gray
	colorWarning   = lipgloss.Color("#F59E0B") // Amber
)

// providerColors tints reply headers per provider; unknown names use
// colorSecondary.
var providerColors = map[string]lipgloss.Color{
	"codex":  lipgloss.Color("#60A5FA"),
	"gemini": lipgloss.Color("#34D399"),
}

func providerColor(name string) lipgloss.Color {
	if c, ok := providerColors[name]; ok {
		return c
	}
	return colorSecondary
}

// Shared styles.
var (
	// Header bar: "ccb monitor  ~/code/my-app"
	logoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorPrimary).
			Padding(0, 1)

	headerPathStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F3F4F6")).
			Padding(0, 1)

	headerHintStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	// Wizard panel.
	contentStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2)

	// NOTE: No MarginBottom; views add explicit \n for predictable height.
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorMuted)

	selectedItemStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorPrimary)

	normalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D1D5DB"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	installedStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorDanger)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	sectionRuleStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	// Reply timestamp in the monitor.
	timestampStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	// Status bar right zone.
	statusTaskStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	// Confirmation dialog.
	dialogBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(1, 2)

	dialogButtonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFF7DB")).
				Background(colorMuted).
				Padding(0, 2)

	dialogActiveButtonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFF7DB")).
				Background(colorPrimary).
				Padding(0, 2).
				Bold(true)

	// Wizard step indicator.
	wizardContentStyle       = lipgloss.NewStyle().PaddingLeft(1)
	wizardStepActiveStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	wizardStepInactiveStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	wizardStepSeparatorStyle = lipgloss.NewStyle().Foreground(colorBorder)
)

// renderSectionHeader renders a label with short rules on both sides:
// "  ── CODEX ──"
func renderSectionHeader(label string, color lipgloss.Color) string {
	rule := sectionRuleStyle.Render("──")
	text := sectionHeaderStyle.Foreground(color).Render(" " + label + " ")
	return "  " + rule + text + rule
}

// newChoiceDelegate styles the single-choice lists of the init wizard:
// vertical bar for the selection, title and description on two lines.
func newChoiceDelegate() list.DefaultDelegate {
	d := list.NewDefaultDelegate()

	d.Styles.NormalTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#F3F4F6")).
		Padding(0, 0, 0, 2)

	d.Styles.NormalDesc = lipgloss.NewStyle().
		Foreground(colorMuted).
		Padding(0, 0, 0, 2)

	d.Styles.SelectedTitle = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(colorPrimary).
		Foreground(colorSecondary).
		Bold(true).
		Padding(0, 0, 0, 1)

	d.Styles.SelectedDesc = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(colorPrimary).
		Foreground(colorMuted).
		Padding(0, 0, 0, 1)

	d.SetSpacing(0)
	return d
}
