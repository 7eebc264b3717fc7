package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// DefaultCRAN is the repository R packages are installed from.
const DefaultCRAN = "https://cloud.r-project.org/"

// listRPackagesExpr prints "name<TAB>version" for every installed R package.
const listRPackagesExpr = `ip <- installed.packages(); cat(paste(ip[, "Package"], ip[, "Version"], sep = "\t"), sep = "\n")`

// rInterpreters are the conda packages that provide R and Rscript.
var rInterpreters = map[string]bool{"r-base": true, "mro-base": true}

// R drives R inside a conda environment through `conda run`.
type R struct {
	conda *Conda
	Repo  string
}

// NewR returns an R gateway that installs from repo (DefaultCRAN when empty).
func NewR(conda *Conda, repo string) *R {
	if repo == "" {
		repo = DefaultCRAN
	}
	return &R{conda: conda, Repo: repo}
}

// Install installs packages into env and returns the reproducing command.
func (r *R) Install(ctx context.Context, env string, packages pkgs.Packages) (string, error) {
	expr := r.InstallExpr(packages)
	args := []string{"--quiet", "--vanilla", "-e", expr}
	if _, err := r.run(ctx, env, "R", args...); err != nil {
		return "", newError(pkgs.R, "install", env, packages.Names(), err)
	}
	return commandLine("R", args), nil
}

// Remove removes packages from env.
func (r *R) Remove(ctx context.Context, env string, packages pkgs.Packages) error {
	args := []string{"--quiet", "--vanilla", "-e", removeExpr(packages)}
	if _, err := r.run(ctx, env, "R", args...); err != nil {
		return newError(pkgs.R, "remove", env, packages.Names(), err)
	}
	return nil
}

// ShellRemoveCommand returns the command text that removes packages.
func (r *R) ShellRemoveCommand(env string, packages pkgs.Packages) string {
	return commandLine("R", []string{"--quiet", "--vanilla", "-e", removeExpr(packages)})
}

// Installed lists R packages visible to the R in env. An env without an R
// interpreter has no R packages.
func (r *R) Installed(ctx context.Context, env string) ([]pkgs.Package, error) {
	ok, err := r.available(ctx, env)
	if err != nil {
		return nil, newError(pkgs.R, "list", env, nil, err)
	}
	if !ok {
		return nil, nil
	}

	output, err := r.run(ctx, env, "Rscript", "--vanilla", "-e", listRPackagesExpr)
	if err != nil {
		return nil, newError(pkgs.R, "list", env, nil, err)
	}
	return parseRPackages(string(output)), nil
}

// InstallExpr builds the R expression installing packages from r.Repo.
func (r *R) InstallExpr(packages pkgs.Packages) string {
	return strings.Join(InstallStatements(packages, r.Repo), "; ")
}

// InstallStatements returns the R statements installing packages from repo.
// Unpinned packages go through one install.packages call; pinned ones through
// remotes::install_version, after installing remotes itself when missing.
func InstallStatements(packages pkgs.Packages, repo string) []string {
	if repo == "" {
		repo = DefaultCRAN
	}
	var unpinned []string
	var pinned []string
	for _, p := range packages {
		if p.Version == "" {
			unpinned = append(unpinned, p.Name)
			continue
		}
		pinned = append(pinned, fmt.Sprintf("remotes::install_version(package=%q, version=%q, repos=%q)", p.Name, p.Version, repo))
	}

	var stmts []string
	if len(unpinned) > 0 {
		stmts = append(stmts, fmt.Sprintf("install.packages(%s, repos=%q)", rVector(unpinned), repo))
	}
	if len(pinned) > 0 {
		stmts = append(stmts, fmt.Sprintf(`if (!requireNamespace("remotes", quietly=TRUE)) install.packages("remotes", repos=%q)`, repo))
		stmts = append(stmts, pinned...)
	}
	return stmts
}

func removeExpr(packages pkgs.Packages) string {
	return fmt.Sprintf("remove.packages(%s)", rVector(packages.Names()))
}

func rVector(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return "c(" + strings.Join(quoted, ", ") + ")"
}

// available reports whether env has an R interpreter installed by conda.
func (r *R) available(ctx context.Context, env string) (bool, error) {
	output, err := r.conda.Runner.Run(ctx, r.conda.bin(), "list", "--name", env, "--json")
	if err != nil {
		return false, err
	}
	entries, err := parseCondaList(output)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if rInterpreters[e.Name] {
			return true, nil
		}
	}
	return false, nil
}

func (r *R) run(ctx context.Context, env, bin string, args ...string) ([]byte, error) {
	full := append([]string{"run", "--name", env, bin}, args...)
	return r.conda.Runner.Run(ctx, r.conda.bin(), full...)
}

// parseRPackages parses "name<TAB>version" lines. R may list one package in
// several libraries; the first occurrence wins, matching R's search order.
func parseRPackages(output string) []pkgs.Package {
	var out []pkgs.Package
	seen := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, version, ok := strings.Cut(line, "\t")
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, pkgs.Package{Name: name, Version: strings.TrimSpace(version)})
	}
	return out
}
