package pkgs

import (
	"fmt"
	"strings"
)

// Ecosystem identifies a package-management system inside an environment.
type Ecosystem string

const (
	Conda Ecosystem = "conda"
	Pip   Ecosystem = "pip"
	R     Ecosystem = "r"
)

// Ecosystems lists every supported ecosystem in export order.
var Ecosystems = []Ecosystem{Conda, Pip, R}

// ParseEcosystem converts user input such as "R" or "conda" to an Ecosystem.
func ParseEcosystem(s string) (Ecosystem, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conda":
		return Conda, nil
	case "pip":
		return Pip, nil
	case "r":
		return R, nil
	default:
		return "", fmt.Errorf("unknown ecosystem %q: must be one of: conda, pip, r", s)
	}
}

// Package is a requested or recorded package. Identity is the name, scoped to
// an ecosystem. Version and Channel are optional.
type Package struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// New returns a Package with the given name and optional version.
func New(name, version string) Package {
	return Package{Name: name, Version: version}
}

// WithVersion returns a copy of p pinned to version.
func (p Package) WithVersion(version string) Package {
	p.Version = version
	return p
}

// Spec renders p in the requirement syntax of eco.
func (p Package) Spec(eco Ecosystem) string {
	switch eco {
	case Pip:
		if p.Version != "" {
			return p.Name + "==" + p.Version
		}
		return p.Name
	case R:
		return p.Name
	default:
		spec := p.Name
		if p.Version != "" {
			spec += "=" + p.Version
		}
		if p.Channel != "" {
			spec = p.Channel + "::" + spec
		}
		return spec
	}
}

// String returns "name@version" or just "name".
func (p Package) String() string {
	if p.Version != "" {
		return p.Name + "@" + p.Version
	}
	return p.Name
}
