package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// condaListEntry is one element of `conda list --json` output.
type condaListEntry struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	BuildString string `json:"build_string"`
	Channel     string `json:"channel"`
	Platform    string `json:"platform"`
}

// condaEnvList represents `conda env list --json` output.
type condaEnvList struct {
	Envs []string `json:"envs"`
}

// pypiChannel marks pip-installed packages in conda list output.
const pypiChannel = "pypi"

// Conda drives the conda command line.
type Conda struct {
	Bin    string // conda executable, "conda" when empty
	Runner Runner
}

// NewConda returns a Conda gateway using bin.
func NewConda(bin string, runner Runner) *Conda {
	return &Conda{Bin: bin, Runner: runner}
}

func (c *Conda) bin() string {
	if c.Bin == "" {
		return "conda"
	}
	return c.Bin
}

// Create creates env with the given packages and returns the shell command
// that reproduces it.
func (c *Conda) Create(ctx context.Context, env string, packages pkgs.Packages, channels []string) (string, error) {
	args := []string{"create", "--name", env}
	args = append(args, channelArgs(channels)...)
	args = append(args, packages.Specs(pkgs.Conda)...)

	if _, err := c.Runner.Run(ctx, c.bin(), append(args, "--yes")...); err != nil {
		return "", newError(pkgs.Conda, "create", env, packages.Names(), err)
	}
	return commandLine("conda", args), nil
}

// Install installs packages into env and returns the reproducing command.
func (c *Conda) Install(ctx context.Context, env string, packages pkgs.Packages, channels []string) (string, error) {
	args := []string{"install", "--name", env}
	args = append(args, channelArgs(channels)...)
	args = append(args, packages.Specs(pkgs.Conda)...)

	if _, err := c.Runner.Run(ctx, c.bin(), append(args, "--yes")...); err != nil {
		return "", newError(pkgs.Conda, "install", env, packages.Names(), err)
	}
	return commandLine("conda", args), nil
}

// Remove removes packages from env.
func (c *Conda) Remove(ctx context.Context, env string, packages pkgs.Packages) error {
	args := append([]string{"remove", "--name", env}, packages.Names()...)
	if _, err := c.Runner.Run(ctx, c.bin(), append(args, "--yes")...); err != nil {
		return newError(pkgs.Conda, "remove", env, packages.Names(), err)
	}
	return nil
}

// ShellRemoveCommand returns the command text that removes packages from env.
func (c *Conda) ShellRemoveCommand(env string, packages pkgs.Packages) string {
	return commandLine("conda", append([]string{"remove", "--name", env}, packages.Names()...))
}

// Installed lists conda-managed packages in env. Pip packages reported by
// conda are excluded.
func (c *Conda) Installed(ctx context.Context, env string) ([]pkgs.Package, error) {
	entries, err := c.list(ctx, env)
	if err != nil {
		return nil, err
	}

	var out []pkgs.Package
	for _, e := range entries {
		if e.Channel == pypiChannel {
			continue
		}
		out = append(out, pkgs.Package{Name: e.Name, Version: e.Version, Channel: e.Channel})
	}
	return out, nil
}

// PipInstalled lists pip-managed packages in env as reported by conda.
func (c *Conda) PipInstalled(ctx context.Context, env string) ([]pkgs.Package, error) {
	entries, err := c.list(ctx, env)
	if err != nil {
		return nil, err
	}

	var out []pkgs.Package
	for _, e := range entries {
		if e.Channel != pypiChannel {
			continue
		}
		out = append(out, pkgs.Package{Name: pkgs.NormalizePipName(e.Name), Version: e.Version})
	}
	return out, nil
}

func (c *Conda) list(ctx context.Context, env string) ([]condaListEntry, error) {
	output, err := c.Runner.Run(ctx, c.bin(), "list", "--name", env, "--json")
	if err != nil {
		return nil, newError(pkgs.Conda, "list", env, nil, err)
	}
	return parseCondaList(output)
}

func parseCondaList(output []byte) ([]condaListEntry, error) {
	var entries []condaListEntry
	if err := json.Unmarshal(output, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse conda list output: %w", err)
	}
	return entries, nil
}

// Prefix returns the filesystem prefix of env.
func (c *Conda) Prefix(ctx context.Context, env string) (string, error) {
	output, err := c.Runner.Run(ctx, c.bin(), "env", "list", "--json")
	if err != nil {
		return "", newError(pkgs.Conda, "list", env, nil, err)
	}

	var list condaEnvList
	if err := json.Unmarshal(output, &list); err != nil {
		return "", fmt.Errorf("failed to parse conda env list output: %w", err)
	}

	for _, prefix := range list.Envs {
		if filepath.Base(prefix) == env {
			return prefix, nil
		}
	}
	return "", fmt.Errorf("conda environment %s not found", env)
}

func channelArgs(channels []string) []string {
	var args []string
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		args = append(args, "--channel", ch)
	}
	return args
}
