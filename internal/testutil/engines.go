package testutil

import (
	"testing"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/domain/programs"
)

// Deps wires the in-memory repositories into engine dependencies.
func (b *MemBackend) Deps() engine.Deps {
	return engine.Deps{
		Progress:    b.Progress,
		Submissions: b.Submissions,
		Enrollments: b.Enrollments,
		Profiles:    b.Profiles,
		Drafts:      b.Drafts,
	}
}

// LoadProgram returns an embedded program definition or fails the test.
func LoadProgram(t *testing.T, kind programs.Kind) *programs.Program {
	t.Helper()
	reg, err := programs.Load()
	if err != nil {
		t.Fatalf("load programs: %v", err)
	}
	p, ok := reg.Get(kind)
	if !ok {
		t.Fatalf("program %s not registered", kind)
	}
	return p
}

// NewMemEngine builds an engine for kind over fresh in-memory repositories.
// The engine is closed when the test ends.
func NewMemEngine(t *testing.T, kind programs.Kind, opts engine.Options) (*engine.Engine, *MemBackend) {
	t.Helper()
	be := NewMemBackend(string(kind))
	e := engine.New(LoadProgram(t, kind), be.Deps(), opts)
	t.Cleanup(e.Close)
	return e, be
}
