// Package environment keeps an environment's dependency snapshot and history
// consistent with the package managers that actually change it.
//
// Every mutation runs against a staged copy of the environment's state:
//
//	Idle -> Executing (package manager) -> Refresh -> Record -> Validate -> Commit -> Export
//
// Any failure before Commit discards the copy, so a failed install or remove
// leaves the dependencies and history exactly as they were. A failed Export
// does not undo the commit; it is reported as ErrExport.
package environment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// Exporter writes an environment to a portable artifact. Exporting twice
// without an intervening mutation must produce the same content.
type Exporter interface {
	Export(ctx context.Context, env *Environment) error
}

// Environment is a named environment together with its dependency snapshot
// and history. It exclusively owns both; callers get copies.
//
// An Environment is not safe for concurrent mutation. Callers serialize
// access, one mutation at a time per environment name.
type Environment struct {
	ID   string
	Name string

	deps    Snapshot
	history *History

	handlers  map[pkgs.Ecosystem]Handler
	exporters []Exporter
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Environment.
type Option func(*Environment)

// WithHandlers registers ecosystem handlers.
func WithHandlers(handlers ...Handler) Option {
	return func(e *Environment) {
		for _, h := range handlers {
			e.handlers[h.Ecosystem()] = h
		}
	}
}

// WithExporters sets the exporters run after every successful mutation.
func WithExporters(exporters ...Exporter) Option {
	return func(e *Environment) {
		e.exporters = append(e.exporters, exporters...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Environment) {
		e.logger = logger
	}
}

// WithClock overrides the clock used to timestamp history entries.
func WithClock(now func() time.Time) Option {
	return func(e *Environment) {
		e.now = now
	}
}

// New returns an empty environment called name.
func New(name string, opts ...Option) *Environment {
	return Load(uuid.NewString(), name, Snapshot{}, NewHistory(), opts...)
}

// Load returns an environment restored from persisted state.
func Load(id, name string, deps Snapshot, history *History, opts ...Option) *Environment {
	if deps == nil {
		deps = Snapshot{}
	}
	if history == nil {
		history = NewHistory()
	}
	e := &Environment{
		ID:       id,
		Name:     name,
		deps:     deps,
		history:  history,
		handlers: make(map[pkgs.Ecosystem]Handler),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dependencies returns a copy of the dependency snapshot.
func (e *Environment) Dependencies() Snapshot {
	return e.deps.Clone()
}

// History returns a copy of the history.
func (e *Environment) History() *History {
	return e.history.Clone()
}

// Handler returns the handler registered for eco.
func (e *Environment) Handler(eco pkgs.Ecosystem) (Handler, error) {
	h, ok := e.handlers[eco]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEcosystem, eco)
	}
	return h, nil
}

// Ecosystems returns the ecosystems with a registered handler in export order.
func (e *Environment) Ecosystems() []pkgs.Ecosystem {
	var out []pkgs.Ecosystem
	for _, eco := range pkgs.Ecosystems {
		if _, ok := e.handlers[eco]; ok {
			out = append(out, eco)
		}
	}
	return out
}

// Create creates the environment through the conda handler, recording the
// creation as the first history entry.
func (e *Environment) Create(ctx context.Context, packages pkgs.Packages) error {
	h, err := e.Handler(pkgs.Conda)
	if err != nil {
		return err
	}
	creator, ok := h.(Creator)
	if !ok {
		return fmt.Errorf("%s handler cannot create environments", pkgs.Conda)
	}
	if e.history.Len() > 0 {
		return fmt.Errorf("environment %s already has history", e.Name)
	}

	return e.mutate(ctx, "create", pkgs.Conda, packages, func(m *Mutation) error {
		return creator.Create(ctx, m, packages)
	})
}

// Install installs packages through the handler for eco.
func (e *Environment) Install(ctx context.Context, eco pkgs.Ecosystem, packages pkgs.Packages) error {
	h, err := e.Handler(eco)
	if err != nil {
		return err
	}
	return e.mutate(ctx, "install", eco, packages, func(m *Mutation) error {
		return h.Install(ctx, m, packages)
	})
}

// Remove removes packages through the handler for eco. Every package must be
// in the current snapshot or nothing is removed.
func (e *Environment) Remove(ctx context.Context, eco pkgs.Ecosystem, packages pkgs.Packages) error {
	h, err := e.Handler(eco)
	if err != nil {
		return err
	}
	return e.mutate(ctx, "remove", eco, packages, func(m *Mutation) error {
		return h.Remove(ctx, m, packages)
	})
}

// mutate runs fn against a staged copy and commits it only if fn succeeds.
func (e *Environment) mutate(ctx context.Context, op string, eco pkgs.Ecosystem, packages pkgs.Packages, fn func(m *Mutation) error) error {
	m := e.begin()
	logger := e.logger.With("env", e.Name, "op", op, "ecosystem", eco, "packages", packages.Names())
	m.logger = logger

	logger.Debug("mutation started")
	if err := fn(m); err != nil {
		logger.Warn("mutation failed, state unchanged", "error", err)
		return err
	}

	e.commit(m)
	logger.Info("mutation committed", "entries", e.history.Len())

	if err := e.Export(ctx); err != nil {
		logger.Error("export after commit failed", "error", err)
		return fmt.Errorf("%s committed, but %w", op, err)
	}
	return nil
}

func (e *Environment) begin() *Mutation {
	return &Mutation{
		env:     e.Name,
		deps:    e.deps.Clone(),
		history: e.history.Clone(),
		query:   e.query,
		logger:  e.logger,
		now:     e.now,
	}
}

func (e *Environment) commit(m *Mutation) {
	e.deps = m.deps
	e.history = m.history
}

func (e *Environment) query(ctx context.Context, eco pkgs.Ecosystem) ([]pkgs.Package, error) {
	h, err := e.Handler(eco)
	if err != nil {
		return nil, err
	}
	return h.Installed(ctx, e.Name)
}

// UpdateDependencies re-queries the live package managers of ecosystems (all
// registered ones when none are given) and replaces their slices of the
// snapshot wholesale. Queries run concurrently; on any failure nothing is
// replaced.
func (e *Environment) UpdateDependencies(ctx context.Context, ecosystems ...pkgs.Ecosystem) error {
	if len(ecosystems) == 0 {
		ecosystems = e.Ecosystems()
	}

	results := make([][]pkgs.Package, len(ecosystems))
	g, gctx := errgroup.WithContext(ctx)
	for i, eco := range ecosystems {
		g.Go(func() error {
			installed, err := e.query(gctx, eco)
			if err != nil {
				return fmt.Errorf("failed to refresh %s dependencies: %w", eco, err)
			}
			results[i] = installed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, eco := range ecosystems {
		e.deps.replace(eco, results[i], e.history.Packages[eco])
		e.history.Repin(eco, e.deps)
	}
	e.logger.Debug("dependencies refreshed", "env", e.Name, "ecosystems", ecosystems)
	return nil
}

// ValidatePackages checks every package is present in eco at a matching
// version.
func (e *Environment) ValidatePackages(eco pkgs.Ecosystem, packages pkgs.Packages) error {
	return validatePackages(e.Name, e.deps, eco, packages)
}

// ValidateRemoved checks none of the removed names is present in eco.
func (e *Environment) ValidateRemoved(eco pkgs.Ecosystem, removed []string) error {
	return validateRemoved(e.Name, e.deps, eco, removed)
}

// ValidateDeclared checks every explicitly requested package in the history
// is still installed at a version matching the request.
func (e *Environment) ValidateDeclared() error {
	for _, eco := range pkgs.Ecosystems {
		if err := e.ValidatePackages(eco, e.history.RequestedPackages(eco)); err != nil {
			return err
		}
	}
	return nil
}

// Export runs every exporter in order.
func (e *Environment) Export(ctx context.Context) error {
	for _, x := range e.exporters {
		if err := x.Export(ctx, e); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrExport, e.Name, err)
		}
	}
	return nil
}
