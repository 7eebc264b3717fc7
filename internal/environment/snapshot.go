package environment

import (
	"sort"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// Dependency is one installed package as reported by its package manager.
type Dependency struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`
	// Direct is true when the package was explicitly requested, false when it
	// was pulled in transitively.
	Direct bool `json:"direct" yaml:"direct"`
}

// Snapshot maps each ecosystem to the packages installed in it, keyed by name.
// A slice is only ever replaced wholesale from a live query.
type Snapshot map[pkgs.Ecosystem]map[string]Dependency

// Has reports whether name is installed in eco.
func (s Snapshot) Has(eco pkgs.Ecosystem, name string) bool {
	_, ok := s[eco][name]
	return ok
}

// Get returns the dependency record for name in eco.
func (s Snapshot) Get(eco pkgs.Ecosystem, name string) (Dependency, bool) {
	d, ok := s[eco][name]
	return d, ok
}

// Sorted returns the dependencies of eco ordered by name.
func (s Snapshot) Sorted(eco pkgs.Ecosystem) []Dependency {
	deps := make([]Dependency, 0, len(s[eco]))
	for _, d := range s[eco] {
		deps = append(deps, d)
	}
	sort.Slice(deps, func(i, j int) bool {
		return deps[i].Name < deps[j].Name
	})
	return deps
}

// Versions returns name -> version for eco.
func (s Snapshot) Versions(eco pkgs.Ecosystem) map[string]string {
	out := make(map[string]string, len(s[eco]))
	for name, d := range s[eco] {
		out[name] = d.Version
	}
	return out
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for eco, deps := range s {
		cp := make(map[string]Dependency, len(deps))
		for name, d := range deps {
			cp[name] = d
		}
		out[eco] = cp
	}
	return out
}

// Equal reports whether s and other record the same packages. A missing
// ecosystem equals an empty one.
func (s Snapshot) Equal(other Snapshot) bool {
	for _, eco := range ecosystemsOf(s, other) {
		a, b := s[eco], other[eco]
		if len(a) != len(b) {
			return false
		}
		for name, d := range a {
			if od, ok := b[name]; !ok || od != d {
				return false
			}
		}
	}
	return true
}

// replace swaps in a freshly queried slice for eco, marking declared names as
// direct dependencies.
func (s Snapshot) replace(eco pkgs.Ecosystem, installed []pkgs.Package, declared map[string]pkgs.Package) {
	deps := make(map[string]Dependency, len(installed))
	for _, p := range installed {
		_, direct := declared[p.Name]
		deps[p.Name] = Dependency{Name: p.Name, Version: p.Version, Channel: p.Channel, Direct: direct}
	}
	s[eco] = deps
}

// markDirect recomputes the Direct flag of every dependency in eco.
func (s Snapshot) markDirect(eco pkgs.Ecosystem, declared map[string]pkgs.Package) {
	for name, d := range s[eco] {
		_, d.Direct = declared[name]
		s[eco][name] = d
	}
}

func ecosystemsOf(snaps ...Snapshot) []pkgs.Ecosystem {
	seen := make(map[pkgs.Ecosystem]bool)
	var out []pkgs.Ecosystem
	for _, s := range snaps {
		for eco := range s {
			if !seen[eco] {
				seen[eco] = true
				out = append(out, eco)
			}
		}
	}
	return out
}
