// Package export writes environments to portable artifacts: a conda
// environment.yml, an install.R script for R packages and a history.yaml that
// can be replayed into a new environment.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/envtrack/internal/environment"
)

// Artifact file names inside an environment's export directory.
const (
	EnvironmentFile = "environment.yml"
	RScriptFile     = "install.R"
	HistoryFile     = "history.yaml"
)

// Files exports every environment into <Dir>/<name>/.
type Files struct {
	Dir string
	// Repo is the CRAN mirror written to install.R.
	Repo   string
	Logger *slog.Logger
}

// NewFiles returns an exporter rooted at dir.
func NewFiles(dir, repo string) *Files {
	return &Files{Dir: dir, Repo: repo, Logger: slog.Default()}
}

// Path returns the export directory of the environment called name.
func (f *Files) Path(name string) string {
	return filepath.Join(f.Dir, name)
}

// Export implements environment.Exporter. Files whose content is unchanged are
// left alone, so exporting twice without a mutation is a no-op on disk.
func (f *Files) Export(ctx context.Context, env *environment.Environment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := f.Path(env.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	history := env.History()

	envYAML, err := MarshalEnvironmentFile(env.Name, history)
	if err != nil {
		return err
	}
	if err := f.write(dir, EnvironmentFile, envYAML); err != nil {
		return err
	}

	if script := RScript(env.Name, history, f.Repo); script != nil {
		if err := f.write(dir, RScriptFile, script); err != nil {
			return err
		}
	} else if err := os.Remove(filepath.Join(dir, RScriptFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale %s: %w", RScriptFile, err)
	}

	historyYAML, err := MarshalHistoryFile(env)
	if err != nil {
		return err
	}
	return f.write(dir, HistoryFile, historyYAML)
}

func (f *Files) write(dir, name string, data []byte) error {
	path := filepath.Join(dir, name)
	changed, err := writeFileAtomic(path, data)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if changed && f.Logger != nil {
		f.Logger.Debug("exported artifact", "path", path, "bytes", len(data))
	}
	return nil
}

// writeFileAtomic replaces path with data through a temporary file in the same
// directory. It reports whether the file changed.
func writeFileAtomic(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return false, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return false, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return false, err
	}
	return true, nil
}
