// Package ui holds the terminal styles shared by the duetrack CLI.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	pass   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warn   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	fail   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	faint  = lipgloss.NewStyle().Faint(true)
)

// RenderAccent renders headings and key identifiers.
func RenderAccent(s string) string { return accent.Render(s) }

// RenderPass renders success markers.
func RenderPass(s string) string { return pass.Render(s) }

// RenderWarn renders degraded-but-working markers (offline, queued work).
func RenderWarn(s string) string { return warn.Render(s) }

// RenderErr renders error markers.
func RenderErr(s string) string { return fail.Render(s) }

// RenderFaint renders secondary detail.
func RenderFaint(s string) string { return faint.Render(s) }

// RenderStatus maps a sync status to its styled form.
func RenderStatus(status string) string {
	switch status {
	case "synced":
		return RenderPass(status)
	case "offline":
		return RenderWarn(status)
	case "error":
		return RenderErr(status)
	default:
		return RenderAccent(status)
	}
}
