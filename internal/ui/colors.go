package ui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

const (
	accent    = lipgloss.Color("#1DB954")
	accentDim = lipgloss.Color("#168D40")
	danger    = lipgloss.Color("#FF0000")
	caution   = lipgloss.Color("#FFA500")
	muted     = lipgloss.Color("#626262")
)

var styles = newPalette()

// palette holds the named [lipgloss.Style] values used by the picker views.
type palette struct {
	title lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	value lipgloss.Style
}

func newPalette() *palette {
	return &palette{
		title: lipgloss.NewStyle().Foreground(accent).Bold(true).MarginBottom(1),
		err:   lipgloss.NewStyle().Foreground(danger).Bold(true),
		warn:  lipgloss.NewStyle().Foreground(caution),
		help:  lipgloss.NewStyle().Foreground(muted).Italic(true),
		value: lipgloss.NewStyle().Bold(true),
	}
}

// genreDelegate renders list rows with the accent color on the selected genre.
func genreDelegate() list.DefaultDelegate {
	d := list.NewDefaultDelegate()
	d.Styles.SelectedTitle = d.Styles.SelectedTitle.Foreground(accent).BorderLeftForeground(accent)
	d.Styles.SelectedDesc = d.Styles.SelectedDesc.Foreground(accentDim).BorderLeftForeground(accent)
	return d
}
