package export

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/envtrack/internal/environment"
	"github.com/blackwell-systems/envtrack/internal/gateway"
	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// environmentFile is the subset of conda's environment.yml envtrack writes.
// Dependencies holds conda specs and, last, a {"pip": [...]} mapping.
type environmentFile struct {
	Name         string   `yaml:"name"`
	Channels     []string `yaml:"channels,omitempty"`
	Dependencies []any    `yaml:"dependencies"`
}

// MarshalEnvironmentFile renders the declared conda and pip packages of
// history as a conda environment.yml, pinned to their recorded versions.
func MarshalEnvironmentFile(name string, history *environment.History) ([]byte, error) {
	file := environmentFile{
		Name:         name,
		Channels:     history.Channels,
		Dependencies: []any{},
	}

	conda := history.Declared(pkgs.Conda)
	for _, spec := range conda.Specs(pkgs.Conda) {
		file.Dependencies = append(file.Dependencies, spec)
	}

	if pip := history.Declared(pkgs.Pip); len(pip) > 0 {
		if _, ok := conda.Get("pip"); !ok {
			file.Dependencies = append(file.Dependencies, "pip")
		}
		file.Dependencies = append(file.Dependencies, map[string][]string{
			"pip": pip.Specs(pkgs.Pip),
		})
	}

	return encodeYAML(file)
}

// RScript renders the declared R packages of history as an R script, or nil
// when no R package is declared.
func RScript(name string, history *environment.History, repo string) []byte {
	declared := history.Declared(pkgs.R)
	if len(declared) == 0 {
		return nil
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# R packages of environment %s, generated by envtrack.\n", name)
	fmt.Fprintf(&buf, "# Run inside the environment: Rscript %s\n", RScriptFile)
	buf.WriteString(strings.Join(gateway.InstallStatements(declared, repo), "\n"))
	buf.WriteString("\n")
	return buf.Bytes()
}

func encodeYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}
