// Package rules implements incremental rule-file injection: every agent
// read of a repository file is augmented with the rule files found in the
// path's ancestor directories, each injected at most once per run.
package rules

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Loader collects rule files for one run. It is not safe for concurrent
// use; a run drives one agent interaction at a time, so it never needs
// to be.
type Loader struct {
	root     string // absolute repository root
	filename string // rule file name, e.g. "AGENTS.md"
	seen     map[string]struct{}
	cache    *Cache
}

// NewLoader creates a Loader rooted at the repository root. The seen set
// starts empty and is discarded with the Loader at run end. cache may be
// nil.
func NewLoader(root, filename string, cache *Cache) *Loader {
	return &Loader{
		root:     root,
		filename: filename,
		seen:     make(map[string]struct{}),
		cache:    cache,
	}
}

// Seen reports whether the rule file at the given repo-relative path has
// already been injected this run.
func (l *Loader) Seen(rulePath string) bool {
	_, ok := l.seen[rulePath]
	return ok
}

// Inject returns content prefixed with any not-yet-seen rule files found
// walking from relPath's directory up to the repository root, closest
// ancestor first. Rule files read here are marked seen; injection has no
// effect on authorization.
func (l *Loader) Inject(relPath, content string) (string, error) {
	var blocks []string

	dir := path.Dir(strings.ReplaceAll(relPath, string(filepath.Separator), "/"))
	if dir == "." {
		dir = ""
	}

	for {
		ruleRel := l.filename
		if dir != "" {
			ruleRel = dir + "/" + l.filename
		}
		block, found, err := l.load(ruleRel)
		if err != nil {
			return "", err
		}
		if found && !l.Seen(ruleRel) {
			l.seen[ruleRel] = struct{}{}
			blocks = append(blocks, fmt.Sprintf("<rules source=%q>\n%s\n</rules>", ruleRel, strings.TrimRight(block, "\n")))
		}
		if dir == "" {
			break
		}
		parent := path.Dir(dir)
		if parent == "." || parent == dir {
			dir = ""
		} else {
			dir = parent
		}
	}

	if len(blocks) == 0 {
		return content, nil
	}
	return strings.Join(blocks, "\n\n") + "\n\n" + content, nil
}

// load reads a rule file by repo-relative path, consulting the shared
// content cache first. Absence is not an error.
func (l *Loader) load(ruleRel string) (string, bool, error) {
	abs := filepath.Join(l.root, filepath.FromSlash(ruleRel))

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("rules: stat %s: %w", ruleRel, err)
	}
	if info.IsDir() {
		return "", false, nil
	}

	key := fmt.Sprintf("%s|%d", abs, info.ModTime().UnixNano())
	if content, ok := l.cache.get(key); ok {
		return content, true, nil
	}

	data, err := os.ReadFile(abs) //nolint:gosec // G304: path is under the repo root
	if err != nil {
		return "", false, fmt.Errorf("rules: read %s: %w", ruleRel, err)
	}
	content := string(data)
	l.cache.set(key, content)
	return content, true, nil
}
