package environment

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

func TestInstallRecordsRefreshedDependencies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "tidyr")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}

	deps := f.env.Dependencies()
	for _, name := range []string{"tidyr", "dplyr", "rlang", "tibble"} {
		if !deps.Has(pkgs.R, name) {
			t.Errorf("snapshot missing %s after install", name)
		}
	}
	if d, _ := deps.Get(pkgs.R, "tidyr"); !d.Direct {
		t.Error("tidyr should be a direct dependency")
	}
	if d, _ := deps.Get(pkgs.R, "rlang"); d.Direct {
		t.Error("rlang should be a transitive dependency")
	}

	history := f.env.History()
	if history.Len() != 1 {
		t.Fatalf("history has %d entries, want 1", history.Len())
	}
	entry := history.Entries[0]
	if entry.Action != "r install tidyr" || entry.Log != entry.Action {
		t.Errorf("entry log/action = %q/%q, want the gateway command", entry.Log, entry.Action)
	}
	if entry.Kind != KindInstall || entry.Ecosystem != pkgs.R {
		t.Errorf("entry kind/ecosystem = %s/%s, want install/r", entry.Kind, entry.Ecosystem)
	}
	if got := entry.Packages[0]; got.Name != "tidyr" || got.Version != "1.3.0" {
		t.Errorf("entry package = %+v, want tidyr pinned to 1.3.0", got)
	}
	if entry.Dependencies["dplyr"] != "1.1.4" {
		t.Errorf("entry dependencies = %v, want dplyr 1.1.4", entry.Dependencies)
	}

	if f.exporter.calls != 1 {
		t.Errorf("exporter called %d times, want 1", f.exporter.calls)
	}
}

func TestInstallFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "dplyr")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}
	beforeDeps := f.env.Dependencies()
	beforeHistory := f.env.History()
	exports := f.exporter.calls

	f.r.installErr = errors.New("R exited with status 1")
	err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "ggplot2"))
	if err == nil {
		t.Fatal("Install() should fail when the package manager fails")
	}
	if !errors.Is(err, f.r.installErr) {
		t.Errorf("Install() error = %v, want the package manager error unmodified", err)
	}

	if !reflect.DeepEqual(f.env.Dependencies(), beforeDeps) {
		t.Error("dependencies changed after failed install")
	}
	if !reflect.DeepEqual(f.env.History(), beforeHistory) {
		t.Error("history changed after failed install")
	}
	if f.exporter.calls != exports {
		t.Error("export should not run after a failed install")
	}
}

func TestRefreshFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	beforeDeps := f.env.Dependencies()
	beforeHistory := f.env.History()

	f.r.listErr = errors.New("Rscript not found")
	if err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "dplyr")); err == nil {
		t.Fatal("Install() should fail when the dependency refresh fails")
	}

	if !reflect.DeepEqual(f.env.Dependencies(), beforeDeps) {
		t.Error("dependencies changed after failed refresh")
	}
	if !reflect.DeepEqual(f.env.History(), beforeHistory) {
		t.Error("history changed after failed refresh")
	}
}

func TestRemoveFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "dplyr", "ggplot2")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}
	beforeDeps := f.env.Dependencies()
	beforeHistory := f.env.History()

	f.r.removeErr = errors.New("cannot remove locked package")
	if err := f.env.Remove(ctx, pkgs.R, mustPackages(t, pkgs.R, "dplyr")); err == nil {
		t.Fatal("Remove() should fail when the package manager fails")
	}

	if !reflect.DeepEqual(f.env.Dependencies(), beforeDeps) {
		t.Error("dependencies changed after failed remove")
	}
	if !reflect.DeepEqual(f.env.History(), beforeHistory) {
		t.Error("history changed after failed remove")
	}
}

func TestRemoveChecksEveryPackageFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "dplyr", "ggplot2")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}

	err := f.env.Remove(ctx, pkgs.R, mustPackages(t, pkgs.R, "dplyr", "missingpkg"))
	if !errors.Is(err, ErrDependency) {
		t.Fatalf("Remove() error = %v, want ErrDependency", err)
	}

	var depErr *DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("Remove() error %T is not a *DependencyError", err)
	}
	if !reflect.DeepEqual(depErr.Missing, []string{"missingpkg"}) {
		t.Errorf("Missing = %v, want [missingpkg]", depErr.Missing)
	}
	if depErr.Env != "analysis" {
		t.Errorf("Env = %q, want analysis", depErr.Env)
	}

	if f.r.removes != 0 {
		t.Errorf("package manager remove called %d times, want 0", f.r.removes)
	}
	if !f.env.Dependencies().Has(pkgs.R, "dplyr") {
		t.Error("dplyr should remain installed")
	}
}

func TestRemoveListsAllMissingNames(t *testing.T) {
	f := newFixture(t)

	err := f.env.Remove(context.Background(), pkgs.R, mustPackages(t, pkgs.R, "dplyr", "ggplot2"))
	var depErr *DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("Remove() error = %v, want *DependencyError", err)
	}
	if !reflect.DeepEqual(depErr.Missing, []string{"dplyr", "ggplot2"}) {
		t.Errorf("Missing = %v, want [dplyr ggplot2]", depErr.Missing)
	}
}

func TestRemoveRecordsNewEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "dplyr", "ggplot2")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}
	if err := f.env.Remove(ctx, pkgs.R, mustPackages(t, pkgs.R, "ggplot2")); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}

	history := f.env.History()
	if history.Len() != 2 {
		t.Fatalf("history has %d entries, want 2", history.Len())
	}
	if history.Entries[0].Kind != KindInstall {
		t.Error("install entry must not be erased by a removal")
	}
	if got := history.Entries[1]; got.Kind != KindRemove || got.Action != "r remove ggplot2" {
		t.Errorf("remove entry = %+v", got)
	}

	deps := f.env.Dependencies()
	if deps.Has(pkgs.R, "ggplot2") || deps.Has(pkgs.R, "scales") {
		t.Error("ggplot2 and its orphaned dependency scales should be gone")
	}
	if !deps.Has(pkgs.R, "rlang") {
		t.Error("rlang is still needed by dplyr")
	}
	if _, declared := history.Packages[pkgs.R]["ggplot2"]; declared {
		t.Error("ggplot2 should no longer be declared")
	}
}

func TestInstallSilentNoopFailsValidation(t *testing.T) {
	f := newFixture(t)
	f.r.noop = true

	err := f.env.Install(context.Background(), pkgs.R, mustPackages(t, pkgs.R, "tidyr"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Install() error = %v, want ErrValidation", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) || !reflect.DeepEqual(verr.Missing, []string{"tidyr"}) {
		t.Errorf("ValidationError = %+v, want Missing [tidyr]", verr)
	}
	if f.env.History().Len() != 0 {
		t.Error("history must not be appended after a failed validation")
	}
	if f.exporter.calls != 0 {
		t.Error("export must not run after a failed validation")
	}
}

func TestInstallVersionMismatchFailsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A transitive dependency already installed at another version is not
	// upgraded by the fake, mimicking an unsatisfiable pin.
	if err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "dplyr")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}
	f.r.noop = true

	err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "rlang=2.0"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Install() error = %v, want *ValidationError", err)
	}
	if len(verr.Mismatched) != 1 || verr.Mismatched[0].Installed != "1.1.2" {
		t.Errorf("Mismatched = %+v, want rlang installed at 1.1.2", verr.Mismatched)
	}
}

func TestInstallRejectsMalformedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Install(ctx, pkgs.R, nil); !errors.Is(err, pkgs.ErrNoPackages) {
		t.Errorf("Install(nil) error = %v, want ErrNoPackages", err)
	}

	dup := pkgs.Packages{pkgs.New("dplyr", ""), pkgs.New("dplyr", "")}
	if err := f.env.Install(ctx, pkgs.R, dup); err == nil {
		t.Error("Install() should reject duplicate names")
	}
	if f.r.installs != 0 {
		t.Error("package manager should not run for malformed requests")
	}
}

func TestHistoryIsAppendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	steps := []struct {
		remove bool
		eco    pkgs.Ecosystem
		specs  []string
	}{
		{false, pkgs.Conda, []string{"python"}},
		{false, pkgs.Pip, []string{"requests"}},
		{false, pkgs.R, []string{"dplyr"}},
		{false, pkgs.Conda, []string{"pandas"}},
		{true, pkgs.Pip, []string{"requests"}},
		{true, pkgs.R, []string{"dplyr"}},
	}

	for i, step := range steps {
		ps := mustPackages(t, step.eco, step.specs...)
		var err error
		if step.remove {
			err = f.env.Remove(ctx, step.eco, ps)
		} else {
			err = f.env.Install(ctx, step.eco, ps)
		}
		if err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		if got := f.env.History().Len(); got != i+1 {
			t.Fatalf("after step %d history has %d entries, want %d", i, got, i+1)
		}
	}

	for i, entry := range f.env.History().Entries {
		if entry.Ecosystem != steps[i].eco {
			t.Errorf("entry %d ecosystem = %s, want %s", i, entry.Ecosystem, steps[i].eco)
		}
		wantKind := KindInstall
		if steps[i].remove {
			wantKind = KindRemove
		}
		if entry.Kind != wantKind {
			t.Errorf("entry %d kind = %s, want %s", i, entry.Kind, wantKind)
		}
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Create(ctx, mustPackages(t, pkgs.Conda, "python=3.11")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	entry := f.env.History().Entries[0]
	if entry.Kind != KindCreate {
		t.Errorf("first entry kind = %s, want create", entry.Kind)
	}
	if entry.Action != "conda create --name analysis python=3.11" {
		t.Errorf("create action = %q", entry.Action)
	}
	if got := f.env.History().Channels; !reflect.DeepEqual(got, []string{"conda-forge"}) {
		t.Errorf("channels = %v, want [conda-forge]", got)
	}

	if err := f.env.Create(ctx, mustPackages(t, pkgs.Conda, "python")); err == nil {
		t.Error("Create() should refuse an environment with history")
	}
}

func TestPipNamesAreNormalized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Install(ctx, pkgs.Pip, mustPackages(t, pkgs.Pip, "Flask_SQLAlchemy")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}
	if !f.env.Dependencies().Has(pkgs.Pip, "flask-sqlalchemy") {
		t.Error("normalized name should be in the snapshot")
	}
	if err := f.env.Remove(ctx, pkgs.Pip, mustPackages(t, pkgs.Pip, "flask.sqlalchemy")); err != nil {
		t.Fatalf("Remove() with unnormalized name failed: %v", err)
	}
}

func TestUnsupportedEcosystem(t *testing.T) {
	env := New("bare")
	err := env.Install(context.Background(), pkgs.R, pkgs.Packages{pkgs.New("dplyr", "")})
	if !errors.Is(err, ErrUnsupportedEcosystem) {
		t.Errorf("Install() error = %v, want ErrUnsupportedEcosystem", err)
	}
}

func TestUpdateDependenciesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Install(ctx, pkgs.Conda, mustPackages(t, pkgs.Conda, "pandas")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}

	if err := f.env.UpdateDependencies(ctx); err != nil {
		t.Fatalf("UpdateDependencies() failed: %v", err)
	}
	first := f.env.Dependencies()
	if err := f.env.UpdateDependencies(ctx); err != nil {
		t.Fatalf("UpdateDependencies() failed: %v", err)
	}
	if !reflect.DeepEqual(first, f.env.Dependencies()) {
		t.Error("refreshing twice without a mutation changed the snapshot")
	}
}

func TestUpdateDependenciesAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "dplyr")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}
	before := f.env.Dependencies()

	f.conda.explicit["numpy"] = "1.26.2"
	f.pip.listErr = errors.New("conda list failed")
	if err := f.env.UpdateDependencies(ctx); err == nil {
		t.Fatal("UpdateDependencies() should fail when one ecosystem fails")
	}
	if !reflect.DeepEqual(before, f.env.Dependencies()) {
		t.Error("a failed refresh must not replace any slice")
	}
}

func TestValidateRemoved(t *testing.T) {
	f := newFixture(t)
	if err := f.env.Install(context.Background(), pkgs.R, mustPackages(t, pkgs.R, "dplyr")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}

	err := f.env.ValidateRemoved(pkgs.R, []string{"dplyr", "ggplot2"})
	var verr *ValidationError
	if !errors.As(err, &verr) || !reflect.DeepEqual(verr.Unexpected, []string{"dplyr"}) {
		t.Errorf("ValidateRemoved() = %v, want Unexpected [dplyr]", err)
	}
	if err := f.env.ValidateRemoved(pkgs.R, []string{"ggplot2"}); err != nil {
		t.Errorf("ValidateRemoved() = %v, want nil", err)
	}
}

func TestExportIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "dplyr")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}

	if err := f.env.Export(ctx); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	firstDeps, firstHistory := f.exporter.deps, f.exporter.history
	if err := f.env.Export(ctx); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	if !reflect.DeepEqual(firstDeps, f.exporter.deps) || !reflect.DeepEqual(firstHistory, f.exporter.history) {
		t.Error("two exports without a mutation saw different content")
	}
}

func TestExportFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.exporter.err = errors.New("disk full")

	err := f.env.Install(context.Background(), pkgs.R, mustPackages(t, pkgs.R, "dplyr"))
	if !errors.Is(err, f.exporter.err) {
		t.Errorf("Install() error = %v, want export error", err)
	}
	if !errors.Is(err, ErrExport) {
		t.Errorf("Install() error = %v, want ErrExport", err)
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrDependency) {
		t.Errorf("Install() error = %v, should not look like a failed install", err)
	}
	if want := "install committed, but export failed: analysis: disk full"; err.Error() != want {
		t.Errorf("Install() error = %q, want %q", err, want)
	}

	// The mutation itself stays committed.
	if got := f.env.History().Len(); got != 1 {
		t.Errorf("history has %d entries, want 1", got)
	}
	if !f.env.Dependencies().Has(pkgs.R, "dplyr") {
		t.Error("dplyr should be in the snapshot after a committed install")
	}
}

func TestSolverUpgradeRepinsDeclaredPackages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Create(ctx, mustPackages(t, pkgs.Conda, "numpy")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	f.conda.upgrade = map[string]string{"numpy": "1.27.0"}
	if err := f.env.Install(ctx, pkgs.Conda, mustPackages(t, pkgs.Conda, "pandas")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}

	if err := f.env.ValidateDeclared(); err != nil {
		t.Errorf("ValidateDeclared() = %v, want nil after a solver upgrade of an unpinned request", err)
	}

	history := f.env.History()
	if got := history.Packages[pkgs.Conda]["numpy"].Version; got != "1.27.0" {
		t.Errorf("declared numpy = %s, want re-pinned to 1.27.0", got)
	}
	if got := history.Requested[pkgs.Conda]["numpy"]; got != "" {
		t.Errorf("requested numpy = %q, want unpinned", got)
	}
	if got := history.Entries[0].Packages[0].Version; got != "1.26.2" {
		t.Errorf("create entry numpy = %s, want 1.26.2 as installed at the time", got)
	}
	if got := history.Entries[1].Dependencies["numpy"]; got != "1.27.0" {
		t.Errorf("install entry numpy = %s, want 1.27.0", got)
	}
}

func TestValidateDeclaredChecksRequestedVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Create(ctx, mustPackages(t, pkgs.Conda, "numpy=1.26.2")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := f.env.ValidateDeclared(); err != nil {
		t.Fatalf("ValidateDeclared() = %v, want nil", err)
	}

	f.conda.upgrade = map[string]string{"numpy": "1.27.0"}
	if err := f.env.Install(ctx, pkgs.Conda, mustPackages(t, pkgs.Conda, "pandas")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}

	err := f.env.ValidateDeclared()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ValidateDeclared() = %v, want *ValidationError", err)
	}
	if len(verr.Mismatched) != 1 || verr.Mismatched[0].Requested != "1.26.2" || verr.Mismatched[0].Installed != "1.27.0" {
		t.Errorf("Mismatched = %+v, want numpy requested 1.26.2 installed 1.27.0", verr.Mismatched)
	}
}

func TestHistoryTimestampsUseClock(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t)
	f.env = New("analysis", append(f.options(), WithClock(func() time.Time { return fixed }))...)

	if err := f.env.Install(context.Background(), pkgs.R, mustPackages(t, pkgs.R, "dplyr")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}
	if got := f.env.History().Entries[0].Timestamp; !got.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", got, fixed)
	}
}

func TestDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.env.Install(ctx, pkgs.R, mustPackages(t, pkgs.R, "dplyr")); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}
	before := f.env.Dependencies()

	// Someone runs R directly.
	f.r.explicit["scales"] = "1.3.0"
	f.r.explicit["dplyr"] = "1.1.5"

	drift, err := f.env.Drift(ctx)
	if err != nil {
		t.Fatalf("Drift() failed: %v", err)
	}
	if len(drift) != 1 || drift[0].Ecosystem != pkgs.R {
		t.Fatalf("Drift() = %+v, want one R drift", drift)
	}
	if len(drift[0].Added) != 1 || drift[0].Added[0].Name != "scales" {
		t.Errorf("Added = %+v, want scales", drift[0].Added)
	}
	if len(drift[0].Changed) != 1 || drift[0].Changed[0] != (Change{Name: "dplyr", From: "1.1.4", To: "1.1.5"}) {
		t.Errorf("Changed = %+v, want dplyr 1.1.4 -> 1.1.5", drift[0].Changed)
	}
	if !reflect.DeepEqual(before, f.env.Dependencies()) {
		t.Error("Drift() must not modify the snapshot")
	}
}
