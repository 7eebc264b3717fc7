package environment

import (
	"context"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// CondaGateway is the conda package manager.
type CondaGateway interface {
	Create(ctx context.Context, env string, packages pkgs.Packages, channels []string) (string, error)
	Install(ctx context.Context, env string, packages pkgs.Packages, channels []string) (string, error)
	Remove(ctx context.Context, env string, packages pkgs.Packages) error
	ShellRemoveCommand(env string, packages pkgs.Packages) string
	Installed(ctx context.Context, env string) ([]pkgs.Package, error)
}

// CondaHandler creates environments and installs and removes conda packages.
type CondaHandler struct {
	gateway  CondaGateway
	channels []string
}

// NewCondaHandler returns a handler backed by gateway. channels are searched
// on every create and install, in order.
func NewCondaHandler(gateway CondaGateway, channels ...string) *CondaHandler {
	return &CondaHandler{gateway: gateway, channels: channels}
}

// Ecosystem implements Handler.
func (h *CondaHandler) Ecosystem() pkgs.Ecosystem {
	return pkgs.Conda
}

// Installed implements Handler.
func (h *CondaHandler) Installed(ctx context.Context, env string) ([]pkgs.Package, error) {
	return h.gateway.Installed(ctx, env)
}

// Create creates the environment and records it as the first history entry.
func (h *CondaHandler) Create(ctx context.Context, m *Mutation, packages pkgs.Packages) error {
	if err := packages.Validate(pkgs.Conda); err != nil {
		return err
	}

	channels := h.channelsFor(m, packages)
	shellCommand, err := h.gateway.Create(ctx, m.Name(), packages, channels)
	if err != nil {
		return err
	}

	if err := m.UpdateDependencies(ctx, pkgs.Conda); err != nil {
		return err
	}
	pinned := m.History().UpdatePackages(pkgs.Conda, packages, m.Dependencies())
	if err := m.ValidatePackages(pkgs.Conda, packages); err != nil {
		return err
	}
	m.History().AddChannels(channels)
	m.Record(KindCreate, pkgs.Conda, pinned, shellCommand, shellCommand)
	return nil
}

// Install installs conda packages and records the install.
func (h *CondaHandler) Install(ctx context.Context, m *Mutation, packages pkgs.Packages) error {
	if err := packages.Validate(pkgs.Conda); err != nil {
		return err
	}

	channels := h.channelsFor(m, packages)
	shellCommand, err := h.gateway.Install(ctx, m.Name(), packages, channels)
	if err != nil {
		return err
	}
	if err := h.UpdateHistoryInstall(ctx, m, packages, shellCommand); err != nil {
		return err
	}
	m.History().AddChannels(channels)
	return nil
}

// UpdateHistoryInstall implements Handler.
func (h *CondaHandler) UpdateHistoryInstall(ctx context.Context, m *Mutation, packages pkgs.Packages, shellCommand string) error {
	if err := m.UpdateDependencies(ctx, pkgs.Conda); err != nil {
		return err
	}
	pinned := m.History().UpdatePackages(pkgs.Conda, packages, m.Dependencies())
	if err := m.ValidatePackages(pkgs.Conda, packages); err != nil {
		return err
	}
	m.Record(KindInstall, pkgs.Conda, pinned, shellCommand, shellCommand)
	return nil
}

// Remove removes conda packages after checking they are all installed.
func (h *CondaHandler) Remove(ctx context.Context, m *Mutation, packages pkgs.Packages) error {
	if err := packages.Validate(pkgs.Conda); err != nil {
		return err
	}
	if err := m.CheckInstalled(pkgs.Conda, packages); err != nil {
		return err
	}

	if err := h.gateway.Remove(ctx, m.Name(), packages); err != nil {
		return err
	}
	return h.UpdateHistoryRemove(ctx, m, packages)
}

// UpdateHistoryRemove implements Handler.
func (h *CondaHandler) UpdateHistoryRemove(ctx context.Context, m *Mutation, packages pkgs.Packages) error {
	if err := m.UpdateDependencies(ctx, pkgs.Conda); err != nil {
		return err
	}
	m.History().RemovePackages(pkgs.Conda, packages, m.Dependencies())
	if err := m.ValidateRemoved(pkgs.Conda, packages.Names()); err != nil {
		return err
	}
	removeCommand := h.gateway.ShellRemoveCommand(m.Name(), packages)
	m.Record(KindRemove, pkgs.Conda, packages, removeCommand, removeCommand)
	return nil
}

// channelsFor returns the configured channels followed by channels already in
// the history and any named on individual packages, without duplicates.
func (h *CondaHandler) channelsFor(m *Mutation, packages pkgs.Packages) []string {
	var channels []string
	add := func(ch string) {
		if ch != "" && !containsString(channels, ch) {
			channels = append(channels, ch)
		}
	}
	for _, ch := range h.channels {
		add(ch)
	}
	for _, ch := range m.History().Channels {
		add(ch)
	}
	for _, p := range packages {
		add(p.Channel)
	}
	return channels
}
