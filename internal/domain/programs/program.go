// Package programs holds the closed set of therapeutic programs and the
// per-session assignment schemas that parameterize the session engine.
package programs

import (
	"fmt"

	"github.com/dalemusser/mindpath/internal/domain/models"
)

// Kind identifies a program.
type Kind string

const (
	KindSpiritual       Kind = "spiritual"
	KindPsychoeducation Kind = "psychoeducation"
	KindNarrativeCBT    Kind = "narrative_cbt"
)

// Collections names the per-program Mongo collections.
type Collections struct {
	Progress    string `yaml:"progress" json:"progress"`
	Submissions string `yaml:"submissions" json:"submissions"`
}

// Progress percentage modes.
const (
	ModeWeighted = "weighted" // meeting/assignment/response weights
	ModeCount    = "count"    // unweighted count over five milestones
)

// ProgressRule describes how a Progress record becomes a percentage.
type ProgressRule struct {
	Mode       string `yaml:"mode" json:"mode"`
	Meeting    int    `yaml:"meeting" json:"meeting,omitempty"`
	Assignment int    `yaml:"assignment" json:"assignment,omitempty"`
	Response   int    `yaml:"response" json:"response,omitempty"`
}

// Session is one numbered unit of a program. Index 0 is the pre-session.
type Session struct {
	Index  int     `yaml:"index" json:"index"`
	Title  string  `yaml:"title" json:"title"`
	Fields []Field `yaml:"fields" json:"fields"`
}

// Field returns the field with the given key.
func (s Session) Field(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Program is the adapter the engine is constructed with: collection names,
// cohort labels, progress weighting and session schemas.
type Program struct {
	Kind        Kind         `yaml:"kind" json:"kind"`
	Title       string       `yaml:"title" json:"title"`
	Collections Collections  `yaml:"collections" json:"collections"`
	Groups      []string     `yaml:"groups" json:"groups"`
	Progress    ProgressRule `yaml:"progress" json:"progress"`
	Sessions    []Session    `yaml:"sessions" json:"sessions"`
}

// Session returns the session with the given index.
func (p *Program) Session(index int) (Session, bool) {
	if index < 0 || index >= len(p.Sessions) {
		return Session{}, false
	}
	return p.Sessions[index], true
}

// LastIndex is the highest session index.
func (p *Program) LastIndex() int { return len(p.Sessions) - 1 }

// HasGroup reports whether g is one of the program's cohort labels.
func (p *Program) HasGroup(g string) bool {
	for _, x := range p.Groups {
		if x == g {
			return true
		}
	}
	return false
}

// Percentage derives the UI completion percentage purely from prog.
func (p *Program) Percentage(prog models.Progress) int {
	if p.Progress.Mode == ModeCount {
		n := 0
		for _, done := range []bool{prog.SessionOpened, prog.GuidanceRead, prog.MeetingDone, prog.AssignmentDone, prog.HasResponse()} {
			if done {
				n++
			}
		}
		return n * 100 / 5
	}
	total := 0
	if prog.MeetingDone {
		total += p.Progress.Meeting
	}
	if prog.AssignmentDone {
		total += p.Progress.Assignment
	}
	if prog.HasResponse() {
		total += p.Progress.Response
	}
	return total
}

// Validate checks the definition for internal consistency.
func (p *Program) Validate() error {
	if p.Kind == "" {
		return fmt.Errorf("program with empty kind")
	}
	if p.Collections.Progress == "" || p.Collections.Submissions == "" {
		return fmt.Errorf("program %s: collections must be named", p.Kind)
	}
	if p.Collections.Progress == p.Collections.Submissions {
		return fmt.Errorf("program %s: progress and submissions share a collection", p.Kind)
	}
	switch p.Progress.Mode {
	case ModeCount:
	case ModeWeighted:
		if sum := p.Progress.Meeting + p.Progress.Assignment + p.Progress.Response; sum != 100 {
			return fmt.Errorf("program %s: progress weights sum to %d, want 100", p.Kind, sum)
		}
	default:
		return fmt.Errorf("program %s: unknown progress mode %q", p.Kind, p.Progress.Mode)
	}
	if len(p.Sessions) == 0 {
		return fmt.Errorf("program %s: no sessions", p.Kind)
	}
	for i, s := range p.Sessions {
		if s.Index != i {
			return fmt.Errorf("program %s: session at position %d has index %d", p.Kind, i, s.Index)
		}
		seen := make(map[string]bool, len(s.Fields))
		for _, f := range s.Fields {
			if seen[f.Key] {
				return fmt.Errorf("program %s session %d: duplicate field %q", p.Kind, i, f.Key)
			}
			if err := f.check(seen); err != nil {
				return fmt.Errorf("program %s session %d: %w", p.Kind, i, err)
			}
			seen[f.Key] = true
		}
	}
	return nil
}
