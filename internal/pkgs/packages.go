package pkgs

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoPackages is returned when a request names no packages.
var ErrNoPackages = errors.New("no packages specified")

// Packages is an ordered set of packages for one request. Insertion order is
// preserved for readable history logs.
type Packages []Package

// Names returns the package names in order.
func (ps Packages) Names() []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}

// Specs renders every package in the requirement syntax of eco.
func (ps Packages) Specs(eco Ecosystem) []string {
	specs := make([]string, len(ps))
	for i, p := range ps {
		specs[i] = p.Spec(eco)
	}
	return specs
}

// Get returns the package with the given name.
func (ps Packages) Get(name string) (Package, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p, true
		}
	}
	return Package{}, false
}

// Validate checks that ps is non-empty, has no duplicate names and that every
// name is well-formed for eco.
func (ps Packages) Validate(eco Ecosystem) error {
	if len(ps) == 0 {
		return ErrNoPackages
	}

	seen := make(map[string]struct{}, len(ps))
	var invalid []string
	for _, p := range ps {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate package %q in request", p.Name)
		}
		seen[p.Name] = struct{}{}

		if !ValidName(eco, p.Name) {
			invalid = append(invalid, p.Name)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid %s package names %v", eco, invalid)
	}
	return nil
}

var (
	condaNameRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)
	pipNameRe   = regexp.MustCompile(`^([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9._\-]*[A-Za-z0-9])$`)
	rNameRe     = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9.]*[A-Za-z0-9]$`)
)

// ValidName reports whether name is a well-formed package name in eco.
func ValidName(eco Ecosystem, name string) bool {
	switch eco {
	case Conda:
		return condaNameRe.MatchString(name)
	case Pip:
		return pipNameRe.MatchString(name)
	case R:
		return rNameRe.MatchString(name)
	default:
		return false
	}
}

// Parse reads a package from user input in the syntax of eco:
//
//	conda  name | name=1.0 | channel::name=1.0
//	pip    name | name==1.0
//	r      name | name=1.0
func Parse(eco Ecosystem, s string) (Package, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Package{}, fmt.Errorf("empty package spec")
	}

	var p Package
	if eco == Conda {
		if channel, rest, ok := strings.Cut(s, "::"); ok {
			p.Channel = channel
			s = rest
		}
	}

	sep := "="
	if eco == Pip {
		sep = "=="
	}
	name, version, _ := strings.Cut(s, sep)
	p.Name = strings.TrimSpace(name)
	p.Version = strings.TrimSpace(strings.TrimPrefix(version, "="))

	if !ValidName(eco, p.Name) {
		return Package{}, fmt.Errorf("invalid %s package name %q", eco, p.Name)
	}
	return p, nil
}

// ParseAll parses every argument and rejects duplicates.
func ParseAll(eco Ecosystem, args []string) (Packages, error) {
	ps := make(Packages, 0, len(args))
	for _, arg := range args {
		p, err := Parse(eco, arg)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	if err := ps.Validate(eco); err != nil {
		return nil, err
	}
	return ps, nil
}

// VersionMatches reports whether an installed version satisfies a requested
// one. An empty request matches anything; "1.2" and "1.2.*" match "1.2.3".
func VersionMatches(requested, installed string) bool {
	requested = strings.TrimSuffix(strings.TrimSuffix(requested, "*"), ".")
	if requested == "" {
		return true
	}
	if requested == installed {
		return true
	}
	return strings.HasPrefix(installed, requested+".")
}

var pipSeparatorRe = regexp.MustCompile(`[-_.]+`)

// NormalizePipName returns the PEP 503 normalized form of a pip package name,
// so "Flask_SQLAlchemy" and "flask-sqlalchemy" refer to the same package.
func NormalizePipName(name string) string {
	return strings.ToLower(pipSeparatorRe.ReplaceAllString(name, "-"))
}

// NormalizePip returns ps with every name in PEP 503 normalized form.
func NormalizePip(ps Packages) Packages {
	out := make(Packages, len(ps))
	for i, p := range ps {
		p.Name = NormalizePipName(p.Name)
		out[i] = p
	}
	return out
}
