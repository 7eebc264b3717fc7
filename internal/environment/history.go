package environment

import (
	"sort"
	"time"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// Kind is the type of step a history entry records.
type Kind string

const (
	KindCreate  Kind = "create"
	KindInstall Kind = "install"
	KindRemove  Kind = "remove"
)

// Entry is one committed step of an environment's history.
type Entry struct {
	// Log is the human-readable command text.
	Log string `json:"log" yaml:"log"`
	// Action is the command that reproduces this step.
	Action    string         `json:"action" yaml:"action"`
	Kind      Kind           `json:"kind" yaml:"kind"`
	Ecosystem pkgs.Ecosystem `json:"ecosystem" yaml:"ecosystem"`
	// Packages are the packages the step acted on, pinned to the versions the
	// package manager actually installed.
	Packages pkgs.Packages `json:"packages" yaml:"packages"`
	// Dependencies is name -> version of the ecosystem right after the step.
	Dependencies map[string]string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Timestamp    time.Time         `json:"timestamp" yaml:"timestamp"`
}

// History is an environment's append-only action log plus the set of packages
// the user explicitly asked for in each ecosystem.
//
// Packages holds each declared package at the version currently resolved by
// the package manager. Requested holds the version the user asked for, empty
// when any version was accepted.
type History struct {
	Entries   []Entry                                   `json:"entries" yaml:"entries"`
	Packages  map[pkgs.Ecosystem]map[string]pkgs.Package `json:"packages" yaml:"packages"`
	Requested map[pkgs.Ecosystem]map[string]string       `json:"requested,omitempty" yaml:"requested,omitempty"`
	Channels  []string                                  `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{
		Packages:  make(map[pkgs.Ecosystem]map[string]pkgs.Package),
		Requested: make(map[pkgs.Ecosystem]map[string]string),
	}
}

// Len returns the number of committed entries.
func (h *History) Len() int {
	return len(h.Entries)
}

// Actions returns the reproducing command of every entry in order.
func (h *History) Actions() []string {
	actions := make([]string, len(h.Entries))
	for i, e := range h.Entries {
		actions[i] = e.Action
	}
	return actions
}

// Declared returns the explicitly requested packages of eco ordered by name.
func (h *History) Declared(eco pkgs.Ecosystem) pkgs.Packages {
	out := make(pkgs.Packages, 0, len(h.Packages[eco]))
	for _, p := range h.Packages[eco] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// RequestedPackages returns the declared packages of eco at the versions the
// user asked for, ordered by name.
func (h *History) RequestedPackages(eco pkgs.Ecosystem) pkgs.Packages {
	declared := h.Declared(eco)
	for i, p := range declared {
		declared[i].Version = h.Requested[eco][p.Name]
	}
	return declared
}

// UpdatePackages adds packages to the declared set of eco, remembering each
// requested version and pinning the package to the version found in deps.
// The pinned packages are returned in request order.
func (h *History) UpdatePackages(eco pkgs.Ecosystem, packages pkgs.Packages, deps Snapshot) pkgs.Packages {
	h.ensure(eco)

	pinned := make(pkgs.Packages, 0, len(packages))
	for _, p := range packages {
		h.Requested[eco][p.Name] = p.Version
		if d, ok := deps.Get(eco, p.Name); ok {
			p = p.WithVersion(d.Version)
		}
		h.Packages[eco][p.Name] = p
		pinned = append(pinned, p)
	}
	return pinned
}

// Repin moves every declared package of eco to the version installed in deps.
// Packages missing from deps keep their last pin.
func (h *History) Repin(eco pkgs.Ecosystem, deps Snapshot) {
	for name, p := range h.Packages[eco] {
		if d, ok := deps.Get(eco, name); ok && d.Version != p.Version {
			h.Packages[eco][name] = p.WithVersion(d.Version)
		}
	}
}

// RemovePackages drops packages from the declared set of eco. Transitive
// dependencies that are no longer installed are dropped too.
func (h *History) RemovePackages(eco pkgs.Ecosystem, packages pkgs.Packages, deps Snapshot) {
	for _, p := range packages {
		delete(h.Packages[eco], p.Name)
		delete(h.Requested[eco], p.Name)
	}
	for name := range h.Packages[eco] {
		if !deps.Has(eco, name) {
			delete(h.Packages[eco], name)
			delete(h.Requested[eco], name)
		}
	}
}

func (h *History) ensure(eco pkgs.Ecosystem) {
	if h.Packages == nil {
		h.Packages = make(map[pkgs.Ecosystem]map[string]pkgs.Package)
	}
	if h.Packages[eco] == nil {
		h.Packages[eco] = make(map[string]pkgs.Package)
	}
	if h.Requested == nil {
		h.Requested = make(map[pkgs.Ecosystem]map[string]string)
	}
	if h.Requested[eco] == nil {
		h.Requested[eco] = make(map[string]string)
	}
}

// AddChannels records conda channels in first-use order.
func (h *History) AddChannels(channels []string) {
	for _, ch := range channels {
		if ch == "" || containsString(h.Channels, ch) {
			continue
		}
		h.Channels = append(h.Channels, ch)
	}
}

// Clone returns a deep copy of h.
func (h *History) Clone() *History {
	out := &History{
		Entries:   make([]Entry, len(h.Entries)),
		Packages:  make(map[pkgs.Ecosystem]map[string]pkgs.Package, len(h.Packages)),
		Requested: make(map[pkgs.Ecosystem]map[string]string, len(h.Requested)),
		Channels:  append([]string(nil), h.Channels...),
	}
	for i, e := range h.Entries {
		out.Entries[i] = e.clone()
	}
	for eco, declared := range h.Packages {
		cp := make(map[string]pkgs.Package, len(declared))
		for name, p := range declared {
			cp[name] = p
		}
		out.Packages[eco] = cp
	}
	for eco, requested := range h.Requested {
		cp := make(map[string]string, len(requested))
		for name, v := range requested {
			cp[name] = v
		}
		out.Requested[eco] = cp
	}
	return out
}

// append commits e to the end of the log.
func (h *History) append(e Entry) {
	h.Entries = append(h.Entries, e)
}

func (e Entry) clone() Entry {
	e.Packages = append(pkgs.Packages(nil), e.Packages...)
	if e.Dependencies != nil {
		deps := make(map[string]string, len(e.Dependencies))
		for k, v := range e.Dependencies {
			deps[k] = v
		}
		e.Dependencies = deps
	}
	return e
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
