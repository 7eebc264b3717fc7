package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/envtrack/internal/environment"
	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

var stamp = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testEnvironment(withR bool) *environment.Environment {
	history := environment.NewHistory()
	history.Channels = []string{"conda-forge"}
	history.Packages[pkgs.Conda] = map[string]pkgs.Package{
		"python": pkgs.New("python", "3.11.6"),
		"pandas": {Name: "pandas", Version: "2.1.3", Channel: "conda-forge"},
	}
	history.Packages[pkgs.Pip] = map[string]pkgs.Package{
		"requests": pkgs.New("requests", "2.31.0"),
	}
	history.Entries = []environment.Entry{
		{
			Log:          "conda create --name analysis python",
			Action:       "conda create --name analysis python",
			Kind:         environment.KindCreate,
			Ecosystem:    pkgs.Conda,
			Packages:     pkgs.Packages{pkgs.New("python", "3.11.6")},
			Dependencies: map[string]string{"python": "3.11.6", "openssl": "3.2.0"},
			Timestamp:    stamp,
		},
		{
			Log:       "pip install requests",
			Action:    "pip install requests",
			Kind:      environment.KindInstall,
			Ecosystem: pkgs.Pip,
			Packages:  pkgs.Packages{pkgs.New("requests", "2.31.0")},
			Timestamp: stamp.Add(time.Minute),
		},
	}
	if withR {
		history.Packages[pkgs.R] = map[string]pkgs.Package{
			"dplyr": pkgs.New("dplyr", "1.1.4"),
			"tidyr": pkgs.New("tidyr", ""),
		}
		history.Requested[pkgs.R] = map[string]string{"dplyr": "", "tidyr": ""}
	}
	return environment.Load("3f8e0c2a-1111-4222-8333-444455556666", "analysis", nil, history)
}

func TestMarshalEnvironmentFile(t *testing.T) {
	data, err := MarshalEnvironmentFile("analysis", testEnvironment(false).History())
	require.NoError(t, err)

	var got struct {
		Name         string   `yaml:"name"`
		Channels     []string `yaml:"channels"`
		Dependencies []any    `yaml:"dependencies"`
	}
	require.NoError(t, yaml.Unmarshal(data, &got))

	assert.Equal(t, "analysis", got.Name)
	assert.Equal(t, []string{"conda-forge"}, got.Channels)
	require.Len(t, got.Dependencies, 4)
	assert.Equal(t, "conda-forge::pandas=2.1.3", got.Dependencies[0])
	assert.Equal(t, "python=3.11.6", got.Dependencies[1])
	assert.Equal(t, "pip", got.Dependencies[2])
	assert.Equal(t, map[string]any{"pip": []any{"requests==2.31.0"}}, got.Dependencies[3])
}

func TestRScript(t *testing.T) {
	assert.Nil(t, RScript("analysis", testEnvironment(false).History(), ""))

	script := string(RScript("analysis", testEnvironment(true).History(), "https://cran.example.org/"))
	assert.Contains(t, script, `install.packages(c("tidyr"), repos="https://cran.example.org/")`)
	assert.Contains(t, script, `remotes::install_version(package="dplyr", version="1.1.4", repos="https://cran.example.org/")`)

	bootstrap := strings.Index(script, `if (!requireNamespace("remotes", quietly=TRUE)) install.packages("remotes", repos="https://cran.example.org/")`)
	require.GreaterOrEqual(t, bootstrap, 0, "script must install remotes before using it")
	assert.Less(t, bootstrap, strings.Index(script, "remotes::install_version"))
}

func TestExportWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	files := NewFiles(dir, "")

	require.NoError(t, files.Export(context.Background(), testEnvironment(true)))

	for _, name := range []string{EnvironmentFile, RScriptFile, HistoryFile} {
		_, err := os.Stat(filepath.Join(dir, "analysis", name))
		assert.NoError(t, err, "expected %s", name)
	}

	// R packages dropped: install.R goes away.
	require.NoError(t, files.Export(context.Background(), testEnvironment(false)))
	_, err := os.Stat(filepath.Join(dir, "analysis", RScriptFile))
	assert.True(t, os.IsNotExist(err), "stale install.R should be removed")

	entries, err := os.ReadDir(filepath.Join(dir, "analysis"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files should be left behind")
}

func TestExportIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	files := NewFiles(dir, "")
	env := testEnvironment(true)

	require.NoError(t, files.Export(context.Background(), env))
	first := readAll(t, files.Path("analysis"))
	infoBefore, err := os.Stat(filepath.Join(files.Path("analysis"), HistoryFile))
	require.NoError(t, err)

	require.NoError(t, files.Export(context.Background(), env))
	assert.Equal(t, first, readAll(t, files.Path("analysis")))

	infoAfter, err := os.Stat(filepath.Join(files.Path("analysis"), HistoryFile))
	require.NoError(t, err)
	assert.Equal(t, infoBefore.ModTime(), infoAfter.ModTime(), "unchanged file should not be rewritten")
}

func TestExportHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewFiles(t.TempDir(), "").Export(ctx, testEnvironment(false)), context.Canceled)
}

func TestHistoryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	files := NewFiles(dir, "")
	env := testEnvironment(true)
	require.NoError(t, files.Export(context.Background(), env))

	loaded, err := LoadHistory(files.Path("analysis"))
	require.NoError(t, err)

	want := env.History()
	assert.Equal(t, "analysis", loaded.Name)
	assert.Equal(t, env.ID, loaded.ID)
	assert.Equal(t, want.Channels, loaded.History.Channels)
	assert.Equal(t, want.Actions(), loaded.History.Actions())
	assert.Equal(t, want.Packages, loaded.History.Packages)
	assert.Equal(t, want.Requested, loaded.History.Requested)
	require.Len(t, loaded.History.Entries, 2)
	assert.Equal(t, environment.KindCreate, loaded.History.Entries[0].Kind)
	assert.Equal(t, want.Entries[0].Dependencies, loaded.History.Entries[0].Dependencies)
	assert.True(t, stamp.Equal(loaded.History.Entries[0].Timestamp))
}

func TestParseHistoryRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "entries: [unterminated"},
		{"no name", "entries: []\n"},
		{"bad ecosystem", "name: x\nentries:\n  - kind: install\n    ecosystem: cargo\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHistory([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func readAll(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = string(data)
	}
	return out
}
