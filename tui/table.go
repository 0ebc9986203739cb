// Package tui renders command output for terminals and pipes.
package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

var tableBorderColor = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#AAAAAA"}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Table writes headers and rows to w. Terminals get a bordered table; other
// writers get space separated columns with one line per row.
func Table(w io.Writer, headers []string, rows [][]string) error {
	renderer := lipgloss.NewRenderer(w)
	t := table.New().
		Headers(headers...).
		Rows(rows...)
	if isTerminal(w) {
		t = t.Border(lipgloss.NormalBorder()).
			BorderStyle(renderer.NewStyle().Foreground(tableBorderColor))
	} else {
		cell := renderer.NewStyle().PaddingRight(2)
		t = t.Border(lipgloss.HiddenBorder()).
			BorderTop(false).
			BorderBottom(false).
			BorderLeft(false).
			BorderRight(false).
			BorderHeader(false).
			BorderColumn(false).
			StyleFunc(func(row, col int) lipgloss.Style { return cell })
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
