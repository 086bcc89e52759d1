package agent

import (
	"context"
	"log/slog"
	"testing"

	"github.com/wardenworks/warden/internal/domain/scope"
)

type fakeScoper struct{}

func (fakeScoper) ProposeScope(context.Context, string, ReadTools) (scope.Definition, error) {
	return scope.Definition{}, nil
}

func TestRegistry(t *testing.T) {
	Register("fake", func(*slog.Logger) (Set, error) {
		return Set{Scoper: fakeScoper{}}, nil
	})

	set, err := New("fake", slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if set.Scoper == nil {
		t.Error("factory result lost")
	}

	if _, err := New("missing", slog.Default()); err == nil {
		t.Error("expected error for unknown agent set")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register("fake-dup", func(*slog.Logger) (Set, error) { return Set{}, nil })
	Register("fake-dup", func(*slog.Logger) (Set, error) { return Set{}, nil })
}
