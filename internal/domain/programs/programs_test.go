package programs

import (
	"strings"
	"testing"

	"github.com/dalemusser/mindpath/internal/domain/models"
)

func TestLoad_EmbeddedDefinitions(t *testing.T) {
	reg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for _, k := range []Kind{KindSpiritual, KindPsychoeducation, KindNarrativeCBT} {
		p, ok := reg.Get(k)
		if !ok {
			t.Fatalf("program %q missing", k)
		}
		if p.LastIndex() < 1 {
			t.Errorf("program %q: expected at least one main session", k)
		}
	}
	if got := len(reg.All()); got != 3 {
		t.Errorf("All() returned %d programs, want 3", got)
	}
}

func TestPercentage_Weighted(t *testing.T) {
	p := &Program{Progress: ProgressRule{Mode: ModeWeighted, Meeting: 50, Assignment: 30, Response: 20}}
	resp := "ok"

	tests := []struct {
		name string
		prog models.Progress
		want int
	}{
		{"nothing", models.Progress{}, 0},
		{"opened only", models.Progress{SessionOpened: true}, 0},
		{"meeting", models.Progress{MeetingDone: true}, 50},
		{"meeting and assignment", models.Progress{MeetingDone: true, AssignmentDone: true}, 80},
		{"all", models.Progress{MeetingDone: true, AssignmentDone: true, CounselorResponse: &resp}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Percentage(tt.prog); got != tt.want {
				t.Errorf("Percentage = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPercentage_Count(t *testing.T) {
	p := &Program{Progress: ProgressRule{Mode: ModeCount}}
	empty := ""

	if got := p.Percentage(models.Progress{SessionOpened: true, GuidanceRead: true}); got != 40 {
		t.Errorf("two milestones: got %d, want 40", got)
	}
	// An empty response string does not count as a response.
	if got := p.Percentage(models.Progress{AssignmentDone: true, CounselorResponse: &empty}); got != 20 {
		t.Errorf("empty response: got %d, want 20", got)
	}
}

func TestParse_RejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "weights not 100",
			yaml: `
kind: x
collections: {progress: p, submissions: s}
progress: {mode: weighted, meeting: 50, assignment: 30, response: 10}
sessions: [{index: 0, title: a, fields: []}]`,
			want: "sum to 90",
		},
		{
			name: "session gap",
			yaml: `
kind: x
collections: {progress: p, submissions: s}
progress: {mode: count}
sessions: [{index: 1, title: a}]`,
			want: "has index 1",
		},
		{
			name: "show_if forward reference",
			yaml: `
kind: x
collections: {progress: p, submissions: s}
progress: {mode: count}
sessions:
  - index: 0
    fields:
      - {key: a, type: text, show_if: {field: b, equals: true}}
      - {key: b, type: acknowledgement}`,
			want: "not an earlier field",
		},
		{
			name: "unknown type",
			yaml: `
kind: x
collections: {progress: p, submissions: s}
progress: {mode: count}
sessions: [{index: 0, fields: [{key: a, type: essay}]}]`,
			want: "unknown type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSessionDefaults(t *testing.T) {
	s := Session{Fields: []Field{
		{Key: "teks", Type: FieldText},
		{Key: "setuju", Type: FieldAcknowledgement},
		{Key: "kontak", Type: FieldContactList, Slots: 3},
		{Key: "daftar", Type: FieldNumberedList, Min: 2},
		{Key: "tabel", Type: FieldTable, Min: 1, Sub: []SubField{{Key: "a"}, {Key: "b"}}},
	}}

	d := s.Defaults()

	if d["teks"] != "" {
		t.Errorf("text default = %#v", d["teks"])
	}
	if v, present := d["setuju"]; !present || v != nil {
		t.Errorf("acknowledgement default should be present and nil, got %#v", v)
	}
	if got := len(d["kontak"].([]any)); got != 3 {
		t.Errorf("contact slots = %d, want 3", got)
	}
	if got := len(d["daftar"].([]any)); got != 2 {
		t.Errorf("list items = %d, want 2", got)
	}
	row := d["tabel"].([]any)[0].(map[string]any)
	if _, ok := row["b"]; !ok {
		t.Error("table row missing column b")
	}
}

func TestRegistry_RejectsSharedCollections(t *testing.T) {
	a := &Program{Kind: "a", Collections: Collections{Progress: "p", Submissions: "s"}, Progress: ProgressRule{Mode: ModeCount}, Sessions: []Session{{Index: 0}}}
	b := &Program{Kind: "b", Collections: Collections{Progress: "p", Submissions: "s2"}, Progress: ProgressRule{Mode: ModeCount}, Sessions: []Session{{Index: 0}}}

	if _, err := NewRegistry(a, b); err == nil {
		t.Error("expected error for shared progress collection")
	}
}
