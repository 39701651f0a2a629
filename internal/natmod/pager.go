package natmod

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/ulikunitz/xz"
	"golang.org/x/term"
)

// readBuildLog decompresses an xz build log into lines.
func readBuildLog(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader for %s: %w", path, err)
	}

	var lines []string
	scanner := bufio.NewScanner(xr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// logLineTag picks a tview color for a compiler or make diagnostic.
func logLineTag(line string) string {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error"):
		return "red"
	case strings.Contains(lower, "warning"):
		return "yellow"
	case strings.HasPrefix(line, "make"):
		return "gray"
	}
	return ""
}

// formatLogLines numbers each line and colors diagnostics for the pager.
func formatLogLines(lines []string) string {
	width := len(fmt.Sprint(len(lines)))
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "[gray]%*d[-] ", width, i+1)
		text := tview.Escape(line)
		if tag := logLineTag(line); tag != "" {
			text = "[" + tag + "]" + text + "[-]"
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}

// ShowBuildLog pages through the build log. Without a terminal, or when the
// log fits on screen, it is written to w as plain text.
func ShowBuildLog(w io.Writer, title string, lines []string) error {
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		if _, rows, err := term.GetSize(fd); err != nil || len(lines) > rows-2 {
			return runLogViewer(title, lines)
		}
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}

func runLogViewer(title string, lines []string) error {
	app := tview.NewApplication()

	view := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false).
		SetText(formatLogLines(lines))
	view.SetBorder(true).SetTitle(fmt.Sprintf(" %s (%d lines) ", title, len(lines)))

	help := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]↑/↓ PgUp/PgDn scroll, g/G first/last line, e next error, q quit[-]")

	errorRows := make([]int, 0)
	for i, line := range lines {
		if logLineTag(line) == "red" {
			errorRows = append(errorRows, i)
		}
	}

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(view, 0, 1, true).
		AddItem(help, 1, 0, false)

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEsc {
			app.Stop()
			return nil
		}
		if ev.Key() != tcell.KeyRune {
			return ev
		}
		switch ev.Rune() {
		case 'q':
			app.Stop()
		case 'g':
			view.ScrollToBeginning()
		case 'G':
			view.ScrollToEnd()
		case 'e':
			row, _ := view.GetScrollOffset()
			if next := nextErrorRow(errorRows, row); next >= 0 {
				view.ScrollTo(next, 0)
			}
		default:
			return ev
		}
		return nil
	})

	if err := app.SetRoot(layout, true).SetFocus(view).Run(); err != nil {
		return fmt.Errorf("log viewer failed: %w", err)
	}
	return nil
}

// nextErrorRow returns the first error row below row, wrapping to the top,
// or -1 when there are none.
func nextErrorRow(rows []int, row int) int {
	if len(rows) == 0 {
		return -1
	}
	for _, r := range rows {
		if r > row {
			return r
		}
	}
	return rows[0]
}
