package gateway

import (
	"context"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// Pip drives pip inside a conda environment through `conda run`.
type Pip struct {
	conda *Conda
}

// NewPip returns a Pip gateway that runs through conda.
func NewPip(conda *Conda) *Pip {
	return &Pip{conda: conda}
}

// Install pip-installs packages into env and returns the reproducing command.
func (p *Pip) Install(ctx context.Context, env string, packages pkgs.Packages) (string, error) {
	pipArgs := append([]string{"install"}, packages.Specs(pkgs.Pip)...)
	if _, err := p.run(ctx, env, pipArgs...); err != nil {
		return "", newError(pkgs.Pip, "install", env, packages.Names(), err)
	}
	return commandLine("pip", pipArgs), nil
}

// Remove pip-uninstalls packages from env.
func (p *Pip) Remove(ctx context.Context, env string, packages pkgs.Packages) error {
	pipArgs := append([]string{"uninstall", "--yes"}, packages.Names()...)
	if _, err := p.run(ctx, env, pipArgs...); err != nil {
		return newError(pkgs.Pip, "remove", env, packages.Names(), err)
	}
	return nil
}

// ShellRemoveCommand returns the command text that uninstalls packages.
func (p *Pip) ShellRemoveCommand(env string, packages pkgs.Packages) string {
	return commandLine("pip", append([]string{"uninstall", "--yes"}, packages.Names()...))
}

// Installed lists pip-managed packages in env.
func (p *Pip) Installed(ctx context.Context, env string) ([]pkgs.Package, error) {
	return p.conda.PipInstalled(ctx, env)
}

func (p *Pip) run(ctx context.Context, env string, pipArgs ...string) ([]byte, error) {
	args := append([]string{"run", "--name", env, "python", "-m", "pip"}, pipArgs...)
	return p.conda.Runner.Run(ctx, p.conda.bin(), args...)
}
