package export

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/envtrack/internal/environment"
	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// historyFile is the on-disk form of an environment's history.
type historyFile struct {
	Name      string                                     `yaml:"name"`
	ID        string                                     `yaml:"id"`
	Channels  []string                                   `yaml:"channels,omitempty"`
	Logs      []string                                   `yaml:"logs"`
	Actions   []string                                   `yaml:"actions"`
	Packages  map[pkgs.Ecosystem]map[string]pkgs.Package `yaml:"packages"`
	Requested map[pkgs.Ecosystem]map[string]string       `yaml:"requested,omitempty"`
	Entries   []environment.Entry                        `yaml:"entries"`
}

// MarshalHistoryFile renders the history of env as history.yaml.
func MarshalHistoryFile(env *environment.Environment) ([]byte, error) {
	history := env.History()
	file := historyFile{
		Name:      env.Name,
		ID:        env.ID,
		Channels:  history.Channels,
		Logs:      make([]string, 0, history.Len()),
		Actions:   history.Actions(),
		Packages:  history.Packages,
		Requested: history.Requested,
		Entries:   history.Entries,
	}
	for _, e := range history.Entries {
		file.Logs = append(file.Logs, e.Log)
	}
	if file.Entries == nil {
		file.Entries = []environment.Entry{}
	}
	return encodeYAML(file)
}

// LoadedHistory is a history read back from history.yaml.
type LoadedHistory struct {
	Name    string
	ID      string
	History *environment.History
}

// LoadHistory reads a history.yaml written by Files. path may name the file
// or the export directory containing it.
func LoadHistory(path string) (*LoadedHistory, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, HistoryFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	return ParseHistory(data)
}

// ParseHistory decodes history.yaml content.
func ParseHistory(data []byte) (*LoadedHistory, error) {
	var file historyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	if file.Name == "" {
		return nil, fmt.Errorf("history file has no environment name")
	}

	history := environment.NewHistory()
	history.Entries = file.Entries
	history.Channels = file.Channels
	for eco, declared := range file.Packages {
		if _, err := pkgs.ParseEcosystem(string(eco)); err != nil {
			return nil, fmt.Errorf("history file: %w", err)
		}
		history.Packages[eco] = declared
	}
	for eco, requested := range file.Requested {
		if _, err := pkgs.ParseEcosystem(string(eco)); err != nil {
			return nil, fmt.Errorf("history file: %w", err)
		}
		history.Requested[eco] = requested
	}
	for i, e := range history.Entries {
		if _, err := pkgs.ParseEcosystem(string(e.Ecosystem)); err != nil {
			return nil, fmt.Errorf("history file entry %d: %w", i+1, err)
		}
	}

	return &LoadedHistory{Name: file.Name, ID: file.ID, History: history}, nil
}
