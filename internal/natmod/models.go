package natmod

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

const (
	modelSource = "model.c"
	modelHeader = "model.h"
	genDirName  = "Gen"
)

// ModelSelector chooses one of several candidate directories and returns its
// index. A nil selector makes ambiguity an error.
type ModelSelector func(candidates []string) (int, error)

// StageResult reports where the staged pair came from.
type StageResult struct {
	From   string
	Copied bool
}

// hasModelPair reports whether dir holds both model.c and model.h.
func hasModelPair(dir string) bool {
	return fileExists(filepath.Join(dir, modelSource)) && fileExists(filepath.Join(dir, modelHeader))
}

// findGenDirs lists every directory named Gen below source, in lexical order.
// Hidden directories are not descended into.
func findGenDirs(source string) []string {
	var dirs []string
	_ = filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == source {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if d.Name() == genDirName {
			dirs = append(dirs, path)
		}
		return nil
	})
	sort.Strings(dirs)
	return dirs
}

// StageModelFiles copies model.c and model.h into buildDir, taking them from
// source directly or from a Gen directory beneath it. Finding nothing is not
// an error; the returned result has Copied set to false.
func StageModelFiles(source, buildDir string, pick ModelSelector) (StageResult, error) {
	printBlock("Copying Model Files")

	if !dirExists(buildDir) {
		return StageResult{}, fmt.Errorf("%s: %w", buildDir, ErrBuildDirMissing)
	}

	if hasModelPair(source) {
		if err := copyModelPair(source, buildDir); err != nil {
			return StageResult{}, err
		}
		infof("Copied model files from %s", source)
		return StageResult{From: source, Copied: true}, nil
	}

	genDirs := findGenDirs(source)
	if len(genDirs) == 0 {
		warnf("No '%s' directories found in %s.", genDirName, source)
		return StageResult{}, nil
	}

	var candidates []string
	for _, dir := range genDirs {
		if hasModelPair(dir) {
			candidates = append(candidates, dir)
		} else {
			warnf("Missing model files in %s", dir)
		}
	}

	var chosen string
	switch len(candidates) {
	case 0:
		warnf("No complete model file pair found under %s.", source)
		return StageResult{}, nil
	case 1:
		chosen = candidates[0]
	default:
		if pick == nil {
			return StageResult{}, fmt.Errorf("%w under %s:\n  %s", ErrAmbiguousModel, source, strings.Join(candidates, "\n  "))
		}
		idx, err := pick(candidates)
		if err != nil {
			return StageResult{}, err
		}
		if idx < 0 || idx >= len(candidates) {
			return StageResult{}, fmt.Errorf("model selection %d out of range", idx+1)
		}
		chosen = candidates[idx]
	}

	if err := copyModelPair(chosen, buildDir); err != nil {
		return StageResult{}, err
	}
	infof("Copied model files from %s", chosen)
	return StageResult{From: chosen, Copied: true}, nil
}

func copyModelPair(from, buildDir string) error {
	for _, name := range []string{modelSource, modelHeader} {
		if err := copyFile(filepath.Join(from, name), filepath.Join(buildDir, name)); err != nil {
			return fmt.Errorf("failed to copy %s: %w", name, err)
		}
	}
	return nil
}
