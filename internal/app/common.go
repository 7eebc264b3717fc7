package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envtrack/internal/config"
	"github.com/blackwell-systems/envtrack/internal/environment"
	"github.com/blackwell-systems/envtrack/internal/export"
	"github.com/blackwell-systems/envtrack/internal/gateway"
	"github.com/blackwell-systems/envtrack/internal/logging"
	"github.com/blackwell-systems/envtrack/internal/output"
	"github.com/blackwell-systems/envtrack/internal/pkgs"
	"github.com/blackwell-systems/envtrack/internal/store"
)

// newRunner builds the command runner for the package managers. Tests replace
// it with a fake.
var newRunner = func(cfg *config.Config, logger *slog.Logger) gateway.Runner {
	return &gateway.ExecRunner{Timeout: cfg.Timeout, Logger: logger}
}

// session holds what every command needs: configuration, logger, store and
// the package-manager gateways.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	conda  *gateway.Conda
	files  *export.Files
}

func openSession() (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	path, err := getDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get database path: %w", err)
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}

	files := export.NewFiles(getExportDir(cfg), cfg.RRepo)
	files.Logger = logger

	return &session{
		cfg:    cfg,
		logger: logger,
		store:  st,
		conda:  gateway.NewConda(cfg.Conda, newRunner(cfg, logger)),
		files:  files,
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// options wires the conda, pip and R handlers and exports every committed
// mutation to the store and the export directory.
func (s *session) options() []environment.Option {
	return []environment.Option{
		environment.WithHandlers(
			environment.NewCondaHandler(s.conda, s.cfg.Channels...),
			environment.NewPipHandler(gateway.NewPip(s.conda)),
			environment.NewRHandler(gateway.NewR(s.conda, s.cfg.RRepo)),
		),
		environment.WithExporters(s.store, s.files),
		environment.WithLogger(s.logger),
	}
}

// load restores a tracked environment with handlers and exporters attached.
func (s *session) load(ctx context.Context, name string) (*environment.Environment, error) {
	env, err := s.store.LoadEnvironment(ctx, name, s.options()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("environment %q is not tracked\n\nCreate it first:\n  envtrack create --name %s <packages>", name, name)
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

// newEnvironment returns an untracked environment with handlers and
// exporters attached.
func (s *session) newEnvironment(name string) *environment.Environment {
	return environment.New(name, s.options()...)
}

// tracked reports whether the store already has an environment called name.
func (s *session) tracked(ctx context.Context, name string) (bool, error) {
	_, err := s.store.LoadEnvironment(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// requireName returns the --name flag value.
func requireName() (string, error) {
	name := strings.TrimSpace(envName)
	if name == "" {
		return "", fmt.Errorf("no environment selected: pass --name")
	}
	return name, nil
}

// parseEcosystems parses ecosystem flag values. No values means every
// ecosystem.
func parseEcosystems(values []string) ([]pkgs.Ecosystem, error) {
	var out []pkgs.Ecosystem
	for _, v := range values {
		eco, err := pkgs.ParseEcosystem(v)
		if err != nil {
			return nil, err
		}
		out = append(out, eco)
	}
	return out, nil
}

// withSpinner runs fn while a spinner with msg counts down the package
// manager timeout on stderr.
func (s *session) withSpinner(cmd *cobra.Command, msg string, fn func() error) error {
	spinner := output.NewSpinner(msg).WithTimeout(s.cfg.Timeout)
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()
	err := fn()
	spinner.Stop()
	return err
}

// reportError prints dependency and validation failures in detail and
// returns a short error for the exit message. An export failure means the
// change itself was committed, so it is not reported as a failed op.
func reportError(cmd *cobra.Command, op string, err error) error {
	if errors.Is(err, environment.ErrExport) {
		fmt.Fprintf(cmd.ErrOrStderr(), "The %s was committed to the history, but exporting it failed:\n  %v\n\n", op, err)
		fmt.Fprintf(cmd.ErrOrStderr(), "Fix the problem and run 'envtrack export' to write the files again.\n")
		return fmt.Errorf("%s committed, but export failed", op)
	}
	if errors.Is(err, environment.ErrDependency) || errors.Is(err, environment.ErrValidation) {
		fmt.Fprint(cmd.ErrOrStderr(), output.RenderError(err))
		return fmt.Errorf("%s failed", op)
	}
	return err
}

// confirm asks a yes/no question on the command's input.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
