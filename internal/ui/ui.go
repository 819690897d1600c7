// Package ui renders styled terminal output for the attend CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"github.com/attendsync/attendsync/internal/reconcile"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB000"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4672")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Init selects the colour profile for w. NO_COLOR, a non-terminal w or
// noColor disable colours.
func Init(w io.Writer, noColor bool) {
	profile := termenv.NewOutput(w).EnvColorProfile()
	if noColor {
		profile = termenv.Ascii
	}
	lipgloss.SetColorProfile(profile)
}

func init() {
	Init(os.Stdout, false)
}

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

// SyncIndicator is the one-line sync state shown next to every view.
func SyncIndicator(s reconcile.Status) string {
	switch {
	case s.Suspended:
		return RenderFail("✗ remote document not found, reconfigure sync")
	case !s.SyncEnabled:
		return RenderMuted("○ sync off")
	case s.State == reconcile.Pushing || s.State == reconcile.Loading:
		return RenderAccent("↻ syncing")
	case s.Pending > 0:
		return RenderWarn(fmt.Sprintf("↻ %d change(s) waiting", s.Pending))
	case s.LastPush != nil && s.LastPush.Error != "":
		return RenderWarn("⚠ last push failed: " + s.LastPush.Error)
	case s.LastError != "":
		return RenderWarn("⚠ " + s.LastError)
	default:
		return RenderPass("● synced") + RenderMuted(" "+lastSync(s))
	}
}

func lastSync(s reconcile.Status) string {
	var at time.Time
	if s.LastPush != nil && s.LastPush.At.After(at) {
		at = s.LastPush.At
	}
	if s.LastPull != nil && s.LastPull.At.After(at) {
		at = s.LastPull.At
	}
	if at.IsZero() {
		return ""
	}
	return "(" + at.Local().Format("2006-01-02 15:04:05") + ")"
}
