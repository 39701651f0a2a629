package natmod

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// The function test is a heuristic, not a parser: "static" followed anywhere
// later by "(" is treated as a function, so an initializer such as
// `static int x = f(1);` is left alone.
var (
	staticCallRe  = regexp.MustCompile(`\bstatic\s+.*\(`)
	staticTokenRe = regexp.MustCompile(`\bstatic\s+`)
)

// PatchLine strips the first "static" qualifier from a declaration line that
// does not look like a function. line must not include its terminator.
func PatchLine(line string) string {
	if !strings.HasPrefix(strings.TrimSpace(line), "static") || staticCallRe.MatchString(line) {
		return line
	}
	loc := staticTokenRe.FindStringIndex(line)
	if loc == nil {
		return line
	}
	return line[:loc[0]] + line[loc[1]:]
}

// PatchStaticDecls rewrites path in place so its static data declarations get
// external linkage. It returns the number of lines changed.
func PatchStaticDecls(path string) (int, error) {
	printBlock("Getting files ready to convert to MPY model")

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			errorf("%s not found.", path)
			return 0, fmt.Errorf("%s: %w", path, ErrSourceMissing)
		}
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var b strings.Builder
	b.Grow(len(data))
	changed := 0
	rest := string(data)
	for rest != "" {
		line, term := rest, ""
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			line, term = rest[:i], "\n"
			rest = rest[i+1:]
		} else {
			rest = ""
		}
		if strings.HasSuffix(line, "\r") {
			line, term = line[:len(line)-1], "\r"+term
		}

		patched := PatchLine(line)
		if patched != line {
			changed++
		}
		b.WriteString(patched)
		b.WriteString(term)
	}

	if err := os.WriteFile(path, []byte(b.String()), info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	debugf("patched %d line(s) in %s", changed, path)
	infof("Completed successfully.")
	return changed, nil
}
