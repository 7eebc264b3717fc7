package environment

import (
	"context"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// PipHandler installs and removes pip packages inside the conda environment.
// Package names are compared in PEP 503 normalized form.
type PipHandler struct {
	gateway PackageGateway
}

// NewPipHandler returns a handler backed by gateway.
func NewPipHandler(gateway PackageGateway) *PipHandler {
	return &PipHandler{gateway: gateway}
}

// Ecosystem implements Handler.
func (h *PipHandler) Ecosystem() pkgs.Ecosystem {
	return pkgs.Pip
}

// Installed implements Handler.
func (h *PipHandler) Installed(ctx context.Context, env string) ([]pkgs.Package, error) {
	return h.gateway.Installed(ctx, env)
}

// Install pip-installs packages and records the install.
func (h *PipHandler) Install(ctx context.Context, m *Mutation, packages pkgs.Packages) error {
	if err := packages.Validate(pkgs.Pip); err != nil {
		return err
	}
	packages = pkgs.NormalizePip(packages)
	if err := packages.Validate(pkgs.Pip); err != nil {
		return err
	}

	shellCommand, err := h.gateway.Install(ctx, m.Name(), packages)
	if err != nil {
		return err
	}
	return h.UpdateHistoryInstall(ctx, m, packages, shellCommand)
}

// UpdateHistoryInstall implements Handler.
func (h *PipHandler) UpdateHistoryInstall(ctx context.Context, m *Mutation, packages pkgs.Packages, shellCommand string) error {
	if err := m.UpdateDependencies(ctx, pkgs.Pip); err != nil {
		return err
	}
	pinned := m.History().UpdatePackages(pkgs.Pip, packages, m.Dependencies())
	if err := m.ValidatePackages(pkgs.Pip, packages); err != nil {
		return err
	}
	m.Logger().Debug("pip install recorded", "env", m.Name(), "packages", pinned.Names())
	m.Record(KindInstall, pkgs.Pip, pinned, shellCommand, shellCommand)
	return nil
}

// Remove pip-uninstalls packages after checking they are all installed.
func (h *PipHandler) Remove(ctx context.Context, m *Mutation, packages pkgs.Packages) error {
	if err := packages.Validate(pkgs.Pip); err != nil {
		return err
	}
	packages = pkgs.NormalizePip(packages)
	if err := m.CheckInstalled(pkgs.Pip, packages); err != nil {
		return err
	}

	if err := h.gateway.Remove(ctx, m.Name(), packages); err != nil {
		return err
	}
	return h.UpdateHistoryRemove(ctx, m, packages)
}

// UpdateHistoryRemove implements Handler.
func (h *PipHandler) UpdateHistoryRemove(ctx context.Context, m *Mutation, packages pkgs.Packages) error {
	if err := m.UpdateDependencies(ctx, pkgs.Pip); err != nil {
		return err
	}
	m.History().RemovePackages(pkgs.Pip, packages, m.Dependencies())
	if err := m.ValidateRemoved(pkgs.Pip, packages.Names()); err != nil {
		return err
	}
	removeCommand := h.gateway.ShellRemoveCommand(m.Name(), packages)
	m.Record(KindRemove, pkgs.Pip, packages, removeCommand, removeCommand)
	return nil
}
