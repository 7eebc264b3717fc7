package environment

import (
	"context"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// RHandler installs and removes R packages.
type RHandler struct {
	gateway PackageGateway
}

// NewRHandler returns a handler backed by gateway.
func NewRHandler(gateway PackageGateway) *RHandler {
	return &RHandler{gateway: gateway}
}

// Ecosystem implements Handler.
func (h *RHandler) Ecosystem() pkgs.Ecosystem {
	return pkgs.R
}

// Installed implements Handler.
func (h *RHandler) Installed(ctx context.Context, env string) ([]pkgs.Package, error) {
	return h.gateway.Installed(ctx, env)
}

// Install installs R packages and records the install.
func (h *RHandler) Install(ctx context.Context, m *Mutation, packages pkgs.Packages) error {
	if err := packages.Validate(pkgs.R); err != nil {
		return err
	}

	shellCommand, err := h.gateway.Install(ctx, m.Name(), packages)
	if err != nil {
		return err
	}
	return h.UpdateHistoryInstall(ctx, m, packages, shellCommand)
}

// UpdateHistoryInstall implements Handler.
func (h *RHandler) UpdateHistoryInstall(ctx context.Context, m *Mutation, packages pkgs.Packages, shellCommand string) error {
	if err := m.UpdateDependencies(ctx, pkgs.R); err != nil {
		return err
	}
	pinned := m.History().UpdatePackages(pkgs.R, packages, m.Dependencies())
	if err := m.ValidatePackages(pkgs.R, packages); err != nil {
		return err
	}
	m.Record(KindInstall, pkgs.R, pinned, shellCommand, shellCommand)
	return nil
}

// Remove removes R packages after checking they are all installed.
func (h *RHandler) Remove(ctx context.Context, m *Mutation, packages pkgs.Packages) error {
	if err := packages.Validate(pkgs.R); err != nil {
		return err
	}
	if err := m.CheckInstalled(pkgs.R, packages); err != nil {
		return err
	}

	if err := h.gateway.Remove(ctx, m.Name(), packages); err != nil {
		return err
	}
	return h.UpdateHistoryRemove(ctx, m, packages)
}

// UpdateHistoryRemove implements Handler.
func (h *RHandler) UpdateHistoryRemove(ctx context.Context, m *Mutation, packages pkgs.Packages) error {
	if err := m.UpdateDependencies(ctx, pkgs.R); err != nil {
		return err
	}
	m.History().RemovePackages(pkgs.R, packages, m.Dependencies())
	if err := m.ValidateRemoved(pkgs.R, packages.Names()); err != nil {
		return err
	}
	removeCommand := h.gateway.ShellRemoveCommand(m.Name(), packages)
	m.Record(KindRemove, pkgs.R, packages, removeCommand, removeCommand)
	return nil
}
