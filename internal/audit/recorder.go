// Package audit provides the append-only audit trail for a run: one NDJSON
// record per tool call or authorization decision.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Record is a single audit trail entry.
type Record struct {
	Timestamp       time.Time `json:"timestamp"`
	RunID           string    `json:"run_id"`
	ActorRole       string    `json:"actor_role"`
	Operation       string    `json:"operation"`
	ArgumentsDigest string    `json:"arguments_digest"`
	ResultSummary   string    `json:"result_summary"`
	DurationMS      int64     `json:"duration_ms"`
}

// Recorder appends records to a file through a buffered channel and a
// single writer goroutine. A full channel drops records and counts them
// rather than blocking the protocol.
type Recorder struct {
	ch      chan Record
	done    chan struct{}
	f       *os.File
	w       *bufio.Writer
	dropped atomic.Int64
}

// NewRecorder opens (creating parent directories) the audit log at path.
func NewRecorder(path string, chanSize int) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // G304: path is owned by the run
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	r := &Recorder{
		ch:   make(chan Record, chanSize),
		done: make(chan struct{}),
		f:    f,
		w:    bufio.NewWriter(f),
	}
	go r.drain()
	return r, nil
}

func (r *Recorder) drain() {
	defer close(r.done)
	for rec := range r.ch {
		line, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		_, _ = r.w.Write(line)
		_ = r.w.WriteByte('\n')
	}
}

// Record enqueues a record. Drops if the channel is full.
func (r *Recorder) Record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	select {
	case r.ch <- rec:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of records lost to backpressure.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains pending records, flushes and closes the file.
func (r *Recorder) Close() error {
	close(r.ch)
	<-r.done
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		return fmt.Errorf("audit: flush: %w", err)
	}
	return r.f.Close()
}

// Digest hashes tool-call arguments so file content and shell commands
// never land in the trail verbatim.
func Digest(args ...string) string {
	h := sha256.New()
	for _, a := range args {
		h.Write([]byte(a))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
