package programs

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed definitions/*.yaml
var FS embed.FS

// Registry holds the loaded program definitions keyed by kind.
type Registry struct {
	byKind map[Kind]*Program
	order  []Kind
}

var (
	loadOnce sync.Once
	builtin  *Registry
	loadErr  error
)

// Load parses the embedded definitions once. Call it at startup to fail fast.
func Load() (*Registry, error) {
	loadOnce.Do(func() {
		builtin, loadErr = LoadFS(FS, "definitions")
	})
	return builtin, loadErr
}

// LoadDir reads every *.yaml file in dir. It is used when programs_dir
// overrides the embedded definitions.
func LoadDir(dir string) (*Registry, error) {
	return LoadFS(os.DirFS(dir), ".")
}

// LoadFS reads every *.yaml file under root in fsys.
func LoadFS(fsys fs.FS, root string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read program definitions: %w", err)
	}
	reg := &Registry{byKind: make(map[Kind]*Program)}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(root, e.Name())))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		p, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if err := reg.add(p); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	if len(reg.order) == 0 {
		return nil, fmt.Errorf("no program definitions found")
	}
	return reg, nil
}

// Parse decodes and validates one YAML program definition.
func Parse(data []byte) (*Program, error) {
	var p Program
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// NewRegistry builds a registry from already constructed programs.
func NewRegistry(progs ...*Program) (*Registry, error) {
	reg := &Registry{byKind: make(map[Kind]*Program)}
	for _, p := range progs {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if err := reg.add(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Registry) add(p *Program) error {
	if _, dup := r.byKind[p.Kind]; dup {
		return fmt.Errorf("duplicate program %q", p.Kind)
	}
	for _, other := range r.byKind {
		if other.Collections.Progress == p.Collections.Progress || other.Collections.Submissions == p.Collections.Submissions {
			return fmt.Errorf("program %q reuses collections of %q", p.Kind, other.Kind)
		}
	}
	r.byKind[p.Kind] = p
	r.order = append(r.order, p.Kind)
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })
	return nil
}

// Get returns the program for kind.
func (r *Registry) Get(kind Kind) (*Program, bool) {
	p, ok := r.byKind[kind]
	return p, ok
}

// All returns the programs sorted by kind.
func (r *Registry) All() []*Program {
	out := make([]*Program, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKind[k])
	}
	return out
}
