package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title   lipgloss.Style
	body    lipgloss.Style
	dim     lipgloss.Style
	success lipgloss.Style
	error   lipgloss.Style
	accent  lipgloss.Style
	online  lipgloss.Style
	offline lipgloss.Style
	box     lipgloss.Style
	input   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	brand := lipgloss.Color("#3B82F6")
	body := lipgloss.AdaptiveColor{Dark: "#E2E8F0", Light: "#1E293B"}
	dim := lipgloss.AdaptiveColor{Dark: "#64748B", Light: "#94A3B8"}
	border := lipgloss.AdaptiveColor{Dark: "#2D3748", Light: "#CBD5E0"}

	return styles{
		title:   r.NewStyle().Bold(true).Foreground(brand),
		body:    r.NewStyle().Foreground(body),
		dim:     r.NewStyle().Foreground(dim),
		success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#22C55E")),
		error:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444")),
		accent:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B")),
		online:  r.NewStyle().Foreground(lipgloss.Color("#22C55E")),
		offline: r.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 2),
		input: r.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(brand).
			Width(32),
	}
}
