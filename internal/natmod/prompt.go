package natmod

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// interactiveMu ensures only one prompt reads stdin at a time.
var interactiveMu sync.Mutex

// Prompter asks the operator questions. When Interactive is false every
// question resolves to its default without reading input.
type Prompter struct {
	Interactive bool
	AssumeYes   bool          // answer for Confirm when not interactive
	Timeout     time.Duration // 0 waits forever; expiry takes the default

	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan lineResult
}

type lineResult struct {
	text string
	err  error
}

func NewPrompter(in io.Reader, out io.Writer, interactive bool) *Prompter {
	return &Prompter{
		Interactive: interactive,
		in:          bufio.NewReader(in),
		out:         out,
	}
}

// stdinIsTerminal reports whether prompts can reach a human.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readLine returns the next input line. With a timeout the read happens on a
// single long-lived goroutine so an abandoned read is handed to the next
// prompt instead of being lost.
func (p *Prompter) readLine() (string, bool) {
	if p.Timeout <= 0 {
		s, err := p.in.ReadString('\n')
		if err != nil && s == "" {
			return "", false
		}
		return strings.TrimSpace(s), true
	}

	p.once.Do(func() {
		p.lines = make(chan lineResult)
		go func() {
			for {
				s, err := p.in.ReadString('\n')
				p.lines <- lineResult{s, err}
				if err != nil {
					return
				}
			}
		}()
	})

	select {
	case r := <-p.lines:
		if r.err != nil && r.text == "" {
			return "", false
		}
		return strings.TrimSpace(r.text), true
	case <-time.After(p.Timeout):
		fmt.Fprintln(p.out)
		debugf("prompt timed out after %s", p.Timeout)
		return "", false
	}
}

// AskWithDefault prints msg with def and returns the operator's answer, or
// def on an empty answer, EOF or timeout.
func (p *Prompter) AskWithDefault(msg, def string) string {
	if !p.Interactive {
		debugf("%s: using default %q", msg, def)
		return def
	}
	interactiveMu.Lock()
	defer interactiveMu.Unlock()

	fmt.Fprint(p.out, colArrow.Sprint("-> "))
	fmt.Fprintf(p.out, "%s [%s] (press Enter to accept default): ", msg, def)
	answer, ok := p.readLine()
	if !ok || answer == "" {
		return def
	}
	return answer
}

// Confirm asks a Y/N question. Only "y" (any case) counts as yes.
func (p *Prompter) Confirm(msg string) bool {
	if !p.Interactive {
		debugf("%s: answering %v (non-interactive)", msg, p.AssumeYes)
		return p.AssumeYes
	}
	interactiveMu.Lock()
	defer interactiveMu.Unlock()

	fmt.Fprint(p.out, colArrow.Sprint("-> "))
	fmt.Fprintf(p.out, "%s (Y/N): ", msg)
	answer, ok := p.readLine()
	return ok && strings.EqualFold(answer, "y")
}

// Select lists items and returns the 0-based index of the operator's choice.
// Invalid input is asked again; EOF or timeout is an error.
func (p *Prompter) Select(title string, items []string) (int, error) {
	if !p.Interactive {
		return -1, fmt.Errorf("%s: cannot choose without a terminal", title)
	}
	interactiveMu.Lock()
	defer interactiveMu.Unlock()

	fmt.Fprint(p.out, colArrow.Sprint("-> "))
	fmt.Fprintln(p.out, colNote.Sprint(title))
	for i, item := range items {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, item)
	}
	for {
		fmt.Fprintf(p.out, "Choice [1-%d]: ", len(items))
		answer, ok := p.readLine()
		if !ok {
			return -1, fmt.Errorf("%s: no selection made", title)
		}
		idx, err := parseSelection(answer, len(items))
		if err != nil {
			fmt.Fprintln(p.out, colWarn.Sprintf("Error: %v", err))
			continue
		}
		return idx, nil
	}
}

// parseSelection turns a 1-based answer into a 0-based index.
func parseSelection(input string, max int) (int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return -1, fmt.Errorf("no number entered")
	}
	n, err := strconv.Atoi(input)
	if err != nil {
		return -1, fmt.Errorf("invalid number: %s", input)
	}
	if n <= 0 || n > max {
		return -1, fmt.Errorf("number out of range (1-%d): %d", max, n)
	}
	return n - 1, nil
}

// modelSelector adapts Select to StageModelFiles, or returns nil when
// ambiguity has to be fatal.
func (p *Prompter) modelSelector() ModelSelector {
	if !p.Interactive {
		return nil
	}
	return func(candidates []string) (int, error) {
		return p.Select("Several model directories were found, pick one:", candidates)
	}
}
