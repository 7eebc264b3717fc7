package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

type call struct {
	name string
	args []string
}

// fakeRunner records every command and answers from tables keyed by the
// first argument.
type fakeRunner struct {
	calls   []call
	outputs map[string]string
	errs    map[string]error
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.err != nil {
		return nil, f.err
	}
	key := ""
	if len(args) > 0 {
		key = args[0]
	}
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return []byte(f.outputs[key]), nil
}

func (f *fakeRunner) ran(sub string) bool {
	for _, c := range f.calls {
		if len(c.args) > 0 && c.args[0] == sub {
			return true
		}
	}
	return false
}

func (f *fakeRunner) last() call {
	return f.calls[len(f.calls)-1]
}

const condaListJSON = `[
  {"name": "python", "version": "3.11.6", "channel": "conda-forge", "build_string": "h1"},
  {"name": "numpy", "version": "1.26.2", "channel": "conda-forge", "build_string": "py311"},
  {"name": "Flask_SQLAlchemy", "version": "3.1.1", "channel": "pypi", "build_string": "pypi_0"},
  {"name": "requests", "version": "2.31.0", "channel": "pypi", "build_string": "pypi_0"}
]`

func TestCondaCreate(t *testing.T) {
	runner := &fakeRunner{}
	conda := NewConda("", runner)

	packages := pkgs.Packages{pkgs.New("python", "3.11"), {Name: "numpy", Channel: "bioconda"}}
	cmd, err := conda.Create(context.Background(), "analysis", packages, []string{"conda-forge", " "})
	require.NoError(t, err)

	assert.Equal(t, "conda create --name analysis --channel conda-forge python=3.11 bioconda::numpy", cmd)
	assert.Equal(t, "conda", runner.last().name)
	assert.Equal(t,
		[]string{"create", "--name", "analysis", "--channel", "conda-forge", "python=3.11", "bioconda::numpy", "--yes"},
		runner.last().args)
}

func TestCondaInstallUsesConfiguredBinary(t *testing.T) {
	runner := &fakeRunner{}
	conda := NewConda("/opt/miniforge/bin/mamba", runner)

	_, err := conda.Install(context.Background(), "analysis", pkgs.Packages{pkgs.New("pandas", "")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/opt/miniforge/bin/mamba", runner.last().name)
	assert.Equal(t, []string{"install", "--name", "analysis", "pandas", "--yes"}, runner.last().args)
}

func TestCondaRemove(t *testing.T) {
	runner := &fakeRunner{}
	conda := NewConda("", runner)
	packages := pkgs.Packages{pkgs.New("numpy", "1.26"), pkgs.New("pandas", "")}

	require.NoError(t, conda.Remove(context.Background(), "analysis", packages))
	assert.Equal(t, []string{"remove", "--name", "analysis", "numpy", "pandas", "--yes"}, runner.last().args)
	assert.Equal(t, "conda remove --name analysis numpy pandas", conda.ShellRemoveCommand("analysis", packages))
}

func TestCondaInstalledSplitsPypi(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"list": condaListJSON}}
	conda := NewConda("", runner)

	installed, err := conda.Installed(context.Background(), "analysis")
	require.NoError(t, err)
	assert.Equal(t, []pkgs.Package{
		{Name: "python", Version: "3.11.6", Channel: "conda-forge"},
		{Name: "numpy", Version: "1.26.2", Channel: "conda-forge"},
	}, installed)
	assert.Equal(t, []string{"list", "--name", "analysis", "--json"}, runner.last().args)

	pip, err := NewPip(conda).Installed(context.Background(), "analysis")
	require.NoError(t, err)
	assert.Equal(t, []pkgs.Package{
		{Name: "flask-sqlalchemy", Version: "3.1.1"},
		{Name: "requests", Version: "2.31.0"},
	}, pip)
}

func TestCondaInstalledRejectsGarbage(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"list": "not json"}}
	_, err := NewConda("", runner).Installed(context.Background(), "analysis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse conda list output")
}

func TestCondaPrefix(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"env": `{"envs": ["/opt/conda", "/opt/conda/envs/analysis", "/opt/conda/envs/other"]}`,
	}}
	conda := NewConda("", runner)

	prefix, err := conda.Prefix(context.Background(), "analysis")
	require.NoError(t, err)
	assert.Equal(t, "/opt/conda/envs/analysis", prefix)

	_, err = conda.Prefix(context.Background(), "missing")
	assert.Error(t, err)
}

func TestPipCommands(t *testing.T) {
	runner := &fakeRunner{}
	pip := NewPip(NewConda("", runner))
	packages := pkgs.Packages{pkgs.New("requests", "2.31.0"), pkgs.New("flask-sqlalchemy", "")}

	cmd, err := pip.Install(context.Background(), "analysis", packages)
	require.NoError(t, err)
	assert.Equal(t, "pip install requests==2.31.0 flask-sqlalchemy", cmd)
	assert.Equal(t,
		[]string{"run", "--name", "analysis", "python", "-m", "pip", "install", "requests==2.31.0", "flask-sqlalchemy"},
		runner.last().args)

	require.NoError(t, pip.Remove(context.Background(), "analysis", packages))
	assert.Equal(t,
		[]string{"run", "--name", "analysis", "python", "-m", "pip", "uninstall", "--yes", "requests", "flask-sqlalchemy"},
		runner.last().args)
	assert.Equal(t, "pip uninstall --yes requests flask-sqlalchemy", pip.ShellRemoveCommand("analysis", packages))
}

func TestRInstallExpr(t *testing.T) {
	r := NewR(NewConda("", &fakeRunner{}), "")

	tests := []struct {
		name     string
		packages pkgs.Packages
		want     string
	}{
		{
			name:     "unpinned",
			packages: pkgs.Packages{pkgs.New("dplyr", ""), pkgs.New("tidyr", "")},
			want:     `install.packages(c("dplyr", "tidyr"), repos="https://cloud.r-project.org/")`,
		},
		{
			name:     "pinned",
			packages: pkgs.Packages{pkgs.New("dplyr", "1.1.4")},
			want: `if (!requireNamespace("remotes", quietly=TRUE)) install.packages("remotes", repos="https://cloud.r-project.org/"); ` +
				`remotes::install_version(package="dplyr", version="1.1.4", repos="https://cloud.r-project.org/")`,
		},
		{
			name:     "mixed",
			packages: pkgs.Packages{pkgs.New("dplyr", "1.1.4"), pkgs.New("tidyr", "")},
			want: `install.packages(c("tidyr"), repos="https://cloud.r-project.org/"); ` +
				`if (!requireNamespace("remotes", quietly=TRUE)) install.packages("remotes", repos="https://cloud.r-project.org/"); ` +
				`remotes::install_version(package="dplyr", version="1.1.4", repos="https://cloud.r-project.org/")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.InstallExpr(tt.packages))
		})
	}
}

func TestRInstallRunsThroughConda(t *testing.T) {
	runner := &fakeRunner{}
	r := NewR(NewConda("", runner), "https://cran.example.org/")

	cmd, err := r.Install(context.Background(), "analysis", pkgs.Packages{pkgs.New("dplyr", "")})
	require.NoError(t, err)

	args := runner.last().args
	assert.Equal(t, []string{"run", "--name", "analysis", "R", "--quiet", "--vanilla", "-e"}, args[:7])
	assert.Contains(t, args[7], `repos="https://cran.example.org/"`)
	assert.True(t, strings.HasPrefix(cmd, "R --quiet --vanilla -e '"), "command %q should quote the expression", cmd)
}

func TestInstallStatementsBootstrapRemotesOnce(t *testing.T) {
	stmts := InstallStatements(pkgs.Packages{pkgs.New("dplyr", "1.1.4"), pkgs.New("tidyr", "1.3.0")}, "https://cran.example.org/")
	require.Len(t, stmts, 3)
	assert.Equal(t, `if (!requireNamespace("remotes", quietly=TRUE)) install.packages("remotes", repos="https://cran.example.org/")`, stmts[0])
	assert.True(t, strings.HasPrefix(stmts[1], "remotes::install_version"))
	assert.True(t, strings.HasPrefix(stmts[2], "remotes::install_version"))

	for _, stmt := range InstallStatements(pkgs.Packages{pkgs.New("tidyr", "")}, "") {
		assert.NotContains(t, stmt, "remotes")
	}
}

const condaListWithR = `[
  {"name": "python", "version": "3.11.6", "channel": "conda-forge", "build_string": "h1"},
  {"name": "r-base", "version": "4.3.2", "channel": "conda-forge", "build_string": "hb8ee39d_1"}
]`

func TestRInstalled(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"list": condaListWithR,
		"run":  "dplyr\t1.1.4\nrlang\t1.1.2\n\nrlang\t1.0.0\nbroken line\n",
	}}
	r := NewR(NewConda("", runner), "")

	installed, err := r.Installed(context.Background(), "analysis")
	require.NoError(t, err)
	assert.Equal(t, []pkgs.Package{
		{Name: "dplyr", Version: "1.1.4"},
		{Name: "rlang", Version: "1.1.2"},
	}, installed)
	assert.Equal(t, "Rscript", runner.last().args[3])
}

func TestRInstalledWithoutR(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{"list": condaListJSON},
		errs: map[string]error{"run": &CommandError{
			Command: "conda run --name analysis Rscript",
			Stderr:  "Rscript: command not found",
			Err:     errors.New("exit status 127"),
		}},
	}
	r := NewR(NewConda("", runner), "")

	installed, err := r.Installed(context.Background(), "analysis")
	require.NoError(t, err)
	assert.Empty(t, installed)
	assert.False(t, runner.ran("run"), "Rscript must not run in an env without r-base")
}

func TestRRemoveCommand(t *testing.T) {
	r := NewR(NewConda("", &fakeRunner{}), "")
	got := r.ShellRemoveCommand("analysis", pkgs.Packages{pkgs.New("dplyr", "")})
	assert.Equal(t, `R --quiet --vanilla -e 'remove.packages(c("dplyr"))'`, got)
}

func TestErrorsWrapPackageManagerFailure(t *testing.T) {
	cause := &CommandError{Command: "conda install", Stderr: "PackagesNotFoundError: nope\n", Err: errors.New("exit status 1")}
	runner := &fakeRunner{err: cause}
	conda := NewConda("", runner)
	packages := pkgs.Packages{pkgs.New("nope", "")}

	_, err := conda.Install(context.Background(), "analysis", packages, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPackageManager))

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, pkgs.Conda, gwErr.Ecosystem)
	assert.Equal(t, "install", gwErr.Op)
	assert.Equal(t, []string{"nope"}, gwErr.Packages)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Contains(t, err.Error(), "(stderr: PackagesNotFoundError: nope)")

	_, err = NewR(conda, "").Installed(context.Background(), "analysis")
	assert.True(t, errors.Is(err, ErrPackageManager))
	assert.Equal(t, "r list in analysis failed: conda install failed: exit status 1 (stderr: PackagesNotFoundError: nope)", err.Error())
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"", "''"},
		{"has space", "'has space'"},
		{"it's", `'it'\''s'`},
		{`c("x")`, `'c("x")'`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shellQuote(tt.in), "shellQuote(%q)", tt.in)
	}
}
