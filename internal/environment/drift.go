package environment

import (
	"context"
	"fmt"
	"sort"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// Change is a package whose installed version moved outside envtrack.
type Change struct {
	Name string
	From string
	To   string
}

// Drift describes how the live packages of one ecosystem differ from the
// snapshot, typically because someone ran the package manager directly.
type Drift struct {
	Ecosystem pkgs.Ecosystem
	Added     []Dependency
	Removed   []Dependency
	Changed   []Change
}

// Empty reports whether no difference was found.
func (d Drift) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Drift queries every registered package manager and reports differences from
// the snapshot. The snapshot itself is not modified.
func (e *Environment) Drift(ctx context.Context) ([]Drift, error) {
	var out []Drift
	for _, eco := range e.Ecosystems() {
		installed, err := e.query(ctx, eco)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s packages: %w", eco, err)
		}

		live := Snapshot{}
		live.replace(eco, installed, e.history.Packages[eco])

		d := diffDependencies(eco, e.deps[eco], live[eco])
		if !d.Empty() {
			out = append(out, d)
		}
	}
	return out, nil
}

func diffDependencies(eco pkgs.Ecosystem, recorded, live map[string]Dependency) Drift {
	d := Drift{Ecosystem: eco}
	for name, dep := range live {
		old, ok := recorded[name]
		if !ok {
			d.Added = append(d.Added, dep)
			continue
		}
		if old.Version != dep.Version {
			d.Changed = append(d.Changed, Change{Name: name, From: old.Version, To: dep.Version})
		}
	}
	for name, dep := range recorded {
		if _, ok := live[name]; !ok {
			d.Removed = append(d.Removed, dep)
		}
	}

	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].Name < d.Added[j].Name })
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i].Name < d.Removed[j].Name })
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].Name < d.Changed[j].Name })
	return d
}
