package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecorder_AppendsNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "audit.log")
	r, err := NewRecorder(path, 16)
	if err != nil {
		t.Fatal(err)
	}

	r.Record(Record{
		RunID:           "run-1",
		ActorRole:       "executor",
		Operation:       "write_file",
		ArgumentsDigest: Digest("src/a.go"),
		ResultSummary:   "wrote 10 chars",
		DurationMS:      3,
	})
	r.Record(Record{
		RunID:     "run-1",
		ActorRole: "executor",
		Operation: "authorize",
	})
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Operation != "write_file" {
		t.Errorf("first record operation = %q", records[0].Operation)
	}
	if records[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in")
	}
	if records[1].Operation != "authorize" {
		t.Errorf("second record operation = %q", records[1].Operation)
	}
}

func TestRecorder_OrderPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	r, err := NewRecorder(path, 64)
	if err != nil {
		t.Fatal(err)
	}
	base := time.Now().UTC()
	for i := range 20 {
		r.Record(Record{
			RunID:     "run-1",
			Operation: "op",
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		})
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var prev time.Time
	for line := range splitLines(data) {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			t.Fatal(err)
		}
		if rec.Timestamp.Before(prev) {
			t.Fatal("records out of order")
		}
		prev = rec.Timestamp
	}
}

func splitLines(data []byte) func(func([]byte) bool) {
	return func(yield func([]byte) bool) {
		start := 0
		for i, b := range data {
			if b == '\n' {
				if i > start {
					if !yield(data[start:i]) {
						return
					}
				}
				start = i + 1
			}
		}
	}
}

func TestDigest_StableAndShort(t *testing.T) {
	a := Digest("src/a.go", "content")
	b := Digest("src/a.go", "content")
	c := Digest("src/b.go", "content")
	if a != b {
		t.Error("digest not stable")
	}
	if a == c {
		t.Error("digest collision for different args")
	}
	if len(a) != 16 {
		t.Errorf("digest length = %d, want 16", len(a))
	}
}
