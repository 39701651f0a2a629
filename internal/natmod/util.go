package natmod

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// color-compatible printer interface (works with *color.Theme and *color.Style)
type colorPrinter interface {
	Printf(format string, a ...any)
}

// cPrintf prints with a colored style or falls back to fmt.Printf when nil
func cPrintf(p colorPrinter, format string, a ...any) {
	if p == nil {
		fmt.Printf(format, a...)
		return
	}
	p.Printf(format, a...)
}

// printBlock prints a stage header such as "========== Installing GCC ==========".
func printBlock(title string) {
	fmt.Println()
	colBlock.Println(blockTitle(title))
}

func blockTitle(title string) string {
	bar := strings.Repeat("=", 10)
	return bar + " " + title + " " + bar
}

func infof(format string, a ...any) {
	colArrow.Print("-> ")
	colSuccess.Printf(format+"\n", a...)
}

func warnf(format string, a ...any) {
	colArrow.Print("-> ")
	colWarn.Printf(format+"\n", a...)
}

func errorf(format string, a ...any) {
	colArrow.Print("-> ")
	colError.Printf(format+"\n", a...)
}

// lineWriter hands every complete line written to it to fn. A trailing partial
// line is delivered by Flush.
type lineWriter struct {
	fn  func(string)
	buf []byte
}

func newLineWriter(fn func(string)) *lineWriter {
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.fn(strings.TrimRight(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.fn(strings.TrimRight(string(w.buf), "\r"))
		w.buf = nil
	}
}

var _ io.Writer = (*lineWriter)(nil)
