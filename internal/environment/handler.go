package environment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// Handler performs package operations for one ecosystem. Handlers never hold
// the Environment; every call receives the Mutation it may change.
type Handler interface {
	Ecosystem() pkgs.Ecosystem
	// Installed queries the live package manager for env.
	Installed(ctx context.Context, env string) ([]pkgs.Package, error)
	Install(ctx context.Context, m *Mutation, packages pkgs.Packages) error
	Remove(ctx context.Context, m *Mutation, packages pkgs.Packages) error
	// UpdateHistoryInstall refreshes dependencies, then records an install.
	UpdateHistoryInstall(ctx context.Context, m *Mutation, packages pkgs.Packages, shellCommand string) error
	// UpdateHistoryRemove refreshes dependencies, then records a removal.
	UpdateHistoryRemove(ctx context.Context, m *Mutation, packages pkgs.Packages) error
}

// Creator is implemented by handlers that can create an environment.
type Creator interface {
	Create(ctx context.Context, m *Mutation, packages pkgs.Packages) error
}

// PackageGateway is a package manager for one ecosystem inside an
// environment. Calls are synchronous and authoritative.
type PackageGateway interface {
	Install(ctx context.Context, env string, packages pkgs.Packages) (string, error)
	Remove(ctx context.Context, env string, packages pkgs.Packages) error
	ShellRemoveCommand(env string, packages pkgs.Packages) string
	Installed(ctx context.Context, env string) ([]pkgs.Package, error)
}

// Mutation is the staged state of one install, remove or create call. The
// Environment commits it only after the whole call succeeds.
type Mutation struct {
	env     string
	deps    Snapshot
	history *History
	query   func(ctx context.Context, eco pkgs.Ecosystem) ([]pkgs.Package, error)
	logger  *slog.Logger
	now     func() time.Time
}

// Name returns the environment name.
func (m *Mutation) Name() string {
	return m.env
}

// Dependencies returns the staged dependency snapshot.
func (m *Mutation) Dependencies() Snapshot {
	return m.deps
}

// History returns the staged history.
func (m *Mutation) History() *History {
	return m.history
}

// Logger returns the logger for this call.
func (m *Mutation) Logger() *slog.Logger {
	return m.logger
}

// UpdateDependencies replaces the staged slice of eco with a live query.
func (m *Mutation) UpdateDependencies(ctx context.Context, eco pkgs.Ecosystem) error {
	installed, err := m.query(ctx, eco)
	if err != nil {
		return fmt.Errorf("failed to refresh %s dependencies: %w", eco, err)
	}
	m.deps.replace(eco, installed, m.history.Packages[eco])
	m.logger.Debug("dependencies refreshed", "env", m.env, "ecosystem", eco, "count", len(installed))
	return nil
}

// CheckInstalled fails with a *DependencyError naming every package in
// packages that is absent from the staged snapshot of eco.
func (m *Mutation) CheckInstalled(eco pkgs.Ecosystem, packages pkgs.Packages) error {
	var missing []string
	for _, p := range packages {
		if !m.deps.Has(eco, p.Name) {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return &DependencyError{Env: m.env, Ecosystem: eco, Missing: missing}
	}
	return nil
}

// ValidatePackages checks every package is installed in eco at a version
// matching the request.
func (m *Mutation) ValidatePackages(eco pkgs.Ecosystem, packages pkgs.Packages) error {
	return validatePackages(m.env, m.deps, eco, packages)
}

// ValidateRemoved checks that none of removed is still installed in eco.
func (m *Mutation) ValidateRemoved(eco pkgs.Ecosystem, removed []string) error {
	return validateRemoved(m.env, m.deps, eco, removed)
}

// Record appends an entry for a completed step, stamping it with the staged
// dependencies of its ecosystem. Declared packages of eco are re-pinned to the
// versions now installed.
func (m *Mutation) Record(kind Kind, eco pkgs.Ecosystem, packages pkgs.Packages, log, action string) {
	m.history.Repin(eco, m.deps)
	m.deps.markDirect(eco, m.history.Packages[eco])
	m.history.append(Entry{
		Log:          log,
		Action:       action,
		Kind:         kind,
		Ecosystem:    eco,
		Packages:     append(pkgs.Packages(nil), packages...),
		Dependencies: m.deps.Versions(eco),
		Timestamp:    m.now().UTC(),
	})
}

func validatePackages(env string, deps Snapshot, eco pkgs.Ecosystem, packages pkgs.Packages) error {
	verr := &ValidationError{Env: env, Ecosystem: eco}
	for _, p := range packages {
		d, ok := deps.Get(eco, p.Name)
		if !ok {
			verr.Missing = append(verr.Missing, p.Name)
			continue
		}
		if !pkgs.VersionMatches(p.Version, d.Version) {
			verr.Mismatched = append(verr.Mismatched, Mismatch{Name: p.Name, Requested: p.Version, Installed: d.Version})
		}
	}
	if verr.empty() {
		return nil
	}
	return verr
}

func validateRemoved(env string, deps Snapshot, eco pkgs.Ecosystem, removed []string) error {
	verr := &ValidationError{Env: env, Ecosystem: eco}
	for _, name := range removed {
		if deps.Has(eco, name) {
			verr.Unexpected = append(verr.Unexpected, name)
		}
	}
	if verr.empty() {
		return nil
	}
	return verr
}
