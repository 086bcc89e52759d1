package controller

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/wardenworks/warden/internal/domain/run"
	"github.com/wardenworks/warden/internal/git"
	"github.com/wardenworks/warden/internal/tools"
)

// CommandLog collects every git and shell invocation of a run, tagged
// with the protocol step that issued it. It is built before the
// controller so the git runner's observer can point at it.
type CommandLog struct {
	mu      sync.Mutex
	step    run.Step
	entries []run.CommandEntry
}

// NewCommandLog creates an empty log.
func NewCommandLog() *CommandLog {
	return &CommandLog{}
}

// SetStep tags subsequent entries with the given step.
func (l *CommandLog) SetStep(s run.Step) {
	l.mu.Lock()
	l.step = s
	l.mu.Unlock()
}

func (l *CommandLog) add(e run.CommandEntry) {
	l.mu.Lock()
	e.Step = int(l.step)
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// GitObserver adapts the log to the git runner's observer hook.
func (l *CommandLog) GitObserver() git.Observer {
	return func(args []string, dir string, res git.Result) {
		l.add(run.CommandEntry{
			Command:    strings.Join(args, " "),
			Dir:        dir,
			ExitCode:   res.ExitCode,
			DurationMS: res.Duration.Milliseconds(),
		})
	}
}

// ShellObserver adapts the log to the toolset's observer hook. Shell
// output is kept; it is what the agent acted on.
func (l *CommandLog) ShellObserver() tools.Observer {
	return func(res tools.ShellResult) {
		l.add(run.CommandEntry{
			Command:    res.Command,
			Dir:        res.Dir,
			ExitCode:   res.ExitCode,
			DurationMS: res.Duration.Milliseconds(),
			Output:     res.Output,
		})
	}
}

// Entries returns a copy of the collected entries.
func (l *CommandLog) Entries() []run.CommandEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]run.CommandEntry(nil), l.entries...)
}

// WriteFile writes the log as NDJSON.
func (l *CommandLog) WriteFile(path string) error {
	var b strings.Builder
	for _, e := range l.Entries() {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("commandlog: marshal: %w", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil { //nolint:gosec // G306: artifacts are world-readable
		return fmt.Errorf("commandlog: write: %w", err)
	}
	return nil
}
