package shellverifier

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wardenworks/warden/internal/port/verifier"
)

func TestLint_PassAndFail(t *testing.T) {
	v := New(t.TempDir(), "true", "", "true", time.Minute, nil)
	rep, err := v.Lint(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Passed || rep.Kind != verifier.KindLint {
		t.Errorf("report = %+v", rep)
	}

	v = New(t.TempDir(), "echo broken; exit 1", "", "true", time.Minute, nil)
	rep, err = v.Lint(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Passed {
		t.Error("failing lint should not pass")
	}
	if !strings.Contains(rep.Output, "broken") {
		t.Errorf("Output = %q", rep.Output)
	}
}

func TestFixLint_RunsFixThenRelints(t *testing.T) {
	dir := t.TempDir()
	// the fix command drops a marker; lint passes only once it exists
	v := New(dir, "test -f fixed", "touch fixed", "true", time.Minute, nil)

	rep, err := v.Lint(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Passed {
		t.Fatal("lint should fail before the fix")
	}

	rep, err = v.FixLint(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Passed {
		t.Errorf("lint should pass after the fix: %+v", rep)
	}
}

func TestFixLint_NoFixCommandJustRelints(t *testing.T) {
	v := New(t.TempDir(), "exit 1", "", "true", time.Minute, nil)
	rep, err := v.FixLint(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Passed {
		t.Error("without a fix command the lint state is unchanged")
	}
}

func TestTest_ReportsKind(t *testing.T) {
	v := New(t.TempDir(), "true", "", "echo 2 passed", time.Minute, nil)
	rep, err := v.Test(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Kind != verifier.KindTest || !rep.Passed {
		t.Errorf("report = %+v", rep)
	}
}

func TestRun_MissingCommandIsError(t *testing.T) {
	v := New(t.TempDir(), "", "", "", time.Minute, nil)
	if _, err := v.Lint(context.Background()); err == nil {
		t.Error("expected error for empty lint command")
	}
}

func TestRun_Timeout(t *testing.T) {
	v := New(t.TempDir(), "sleep 5", "", "true", 50*time.Millisecond, nil)
	if _, err := v.Lint(context.Background()); err == nil {
		t.Error("expected timeout error")
	}
}
