package copystep

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lei/simple-copy/internal/events"
	"github.com/lei/simple-copy/internal/fileroot"
	"github.com/lei/simple-copy/internal/history/memstore"
	"github.com/lei/simple-copy/internal/models"
	"github.com/lei/simple-copy/internal/security"
	"github.com/lei/simple-copy/internal/selector"
	"github.com/lei/simple-copy/internal/sourceref"
	"github.com/lei/simple-copy/pkg/logger"
)

type fixture struct {
	store *memstore.Store
	sink  *events.RecordingSink
	orch  *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	sink := &events.RecordingSink{}
	resolver := sourceref.NewResolver(store, security.ACLChecker{})
	orch := New(store, resolver, fileroot.DirProvider{}, sink, logger.Nop())
	return &fixture{store: store, sink: sink, orch: orch}
}

// recordBuild records a completed build whose artifacts directory holds
// the given files.
func (f *fixture) recordBuild(t *testing.T, job string, result models.Result, files map[string]string) *models.Build {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	b, err := f.store.RecordBuild(job, &models.Build{Result: result, ArtifactsDir: dir})
	if err != nil {
		t.Fatalf("RecordBuild: %v", err)
	}
	return b
}

func exists(t *testing.T, parts ...string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(parts...))
	return err == nil
}

func TestStableSelectorSkipsUnstableBuild(t *testing.T) {
	// #1 unstable, #2 success; require-stable must copy from #2.
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{Name: "src"})
	f.recordBuild(t, "src", models.ResultUnstable, map[string]string{"foo.txt": "old"})
	f.recordBuild(t, "src", models.ResultSuccess, map[string]string{"foo.txt": "new"})
	ws := t.TempDir()

	out, err := f.orch.Run(context.Background(), Request{
		ProjectRef: "src",
		Selector:   selector.Status{Stable: true},
		Workspace:  ws,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Copied != 1 {
		t.Errorf("copied %d files, want 1", out.Copied)
	}
	content, err := os.ReadFile(filepath.Join(ws, "foo.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "new" {
		t.Errorf("copied content %q, want build #2's", content)
	}
	if out.Env["SRC_BUILD_NUMBER"] != "2" {
		t.Errorf("SRC_BUILD_NUMBER = %q, want 2", out.Env["SRC_BUILD_NUMBER"])
	}
	if out.Env["SRC_BUILD_RESULT"] != "success" {
		t.Errorf("SRC_BUILD_RESULT = %q, want success", out.Env["SRC_BUILD_RESULT"])
	}
}

func TestMissingProject(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Run(context.Background(), Request{
		ProjectRef: "ghost",
		Selector:   selector.Status{},
		Workspace:  t.TempDir(),
	})
	if !errors.Is(err, sourceref.ErrMissingProject) {
		t.Errorf("Run = %v, want ErrMissingProject", err)
	}

	// Optional never suppresses a missing project.
	_, err = f.orch.Run(context.Background(), Request{
		ProjectRef: "ghost",
		Selector:   selector.Status{},
		Optional:   true,
		Workspace:  t.TempDir(),
	})
	if !errors.Is(err, sourceref.ErrMissingProject) {
		t.Errorf("optional Run = %v, want ErrMissingProject", err)
	}
}

func TestMissingBuildAndOptional(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{Name: "src"})
	f.recordBuild(t, "src", models.ResultFailure, map[string]string{"foo.txt": "x"})

	req := Request{
		ProjectRef: "src",
		Selector:   selector.Status{},
		Workspace:  t.TempDir(),
	}
	if _, err := f.orch.Run(context.Background(), req); !errors.Is(err, ErrMissingBuild) {
		t.Errorf("Run = %v, want ErrMissingBuild", err)
	}

	req.Optional = true
	out, err := f.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("optional Run: %v", err)
	}
	if out.Copied != 0 {
		t.Errorf("copied %d files, want 0", out.Copied)
	}
	if len(out.Branches) != 1 || !out.Branches[0].Skipped {
		t.Errorf("branches = %+v, want one skipped", out.Branches)
	}
}

func TestMissingArtifactAndOptional(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{Name: "src"})
	f.recordBuild(t, "src", models.ResultSuccess, map[string]string{"foo.txt": "x"})

	req := Request{
		ProjectRef: "src",
		Selector:   selector.Status{},
		Filter:     "*.jar",
		Workspace:  t.TempDir(),
	}
	if _, err := f.orch.Run(context.Background(), req); !errors.Is(err, ErrMissingArtifact) {
		t.Errorf("Run = %v, want ErrMissingArtifact", err)
	}

	req.Optional = true
	out, err := f.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("optional Run: %v", err)
	}
	if out.Copied != 0 {
		t.Errorf("copied %d files, want 0", out.Copied)
	}
}

func TestPermissionDeniedNeverSuppressed(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{
		Name: "secret",
		ACL:  models.AccessControl{Users: []string{"alice"}},
	})
	f.recordBuild(t, "secret", models.ResultSuccess, map[string]string{"foo.txt": "x"})

	_, err := f.orch.Run(context.Background(), Request{
		ProjectRef: "$SRC",
		Env:        models.EnvVars{"SRC": "secret"},
		Selector:   selector.Status{},
		Optional:   true,
		Identity:   security.Authenticated("alice"),
		Workspace:  t.TempDir(),
	})
	if !errors.Is(err, sourceref.ErrPermissionDenied) {
		t.Errorf("Run = %v, want ErrPermissionDenied despite optional", err)
	}
}

func TestSpecificSelectorWithParameter(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{Name: "src"})
	f.recordBuild(t, "src", models.ResultSuccess, map[string]string{"buildone.txt": "1"})
	f.recordBuild(t, "src", models.ResultSuccess, map[string]string{"buildtwo.txt": "2"})
	ws := t.TempDir()

	out, err := f.orch.Run(context.Background(), Request{
		ProjectRef: "src",
		Selector:   selector.Specific{Expr: "$BAR"},
		Env:        models.EnvVars{"BAR": "1"},
		Workspace:  ws,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !exists(t, ws, "buildone.txt") {
		t.Error("buildone.txt missing: selection drifted off build #1")
	}
	if exists(t, ws, "buildtwo.txt") {
		t.Error("buildtwo.txt present: copied from the wrong build")
	}
	if out.Env["SRC_BUILD_NUMBER"] != "1" {
		t.Errorf("SRC_BUILD_NUMBER = %q, want 1", out.Env["SRC_BUILD_NUMBER"])
	}
}

func TestMatrixFanOut(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{
		Name: "mat",
		Kind: models.KindMatrix,
		Axes: map[string][]string{"FOO": {"one", "two"}},
	})
	f.recordBuild(t, "mat/FOO=one", models.ResultSuccess, map[string]string{"out.txt": "one"})
	f.recordBuild(t, "mat/FOO=two", models.ResultSuccess, map[string]string{"out.txt": "two"})
	ws := t.TempDir()

	out, err := f.orch.Run(context.Background(), Request{
		ProjectRef: "mat",
		Selector:   selector.Status{},
		Target:     "deps",
		Workspace:  ws,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Copied != 2 {
		t.Errorf("copied %d files, want 2", out.Copied)
	}
	if !exists(t, ws, "deps", "FOO=one", "out.txt") {
		t.Error("FOO=one branch files missing")
	}
	if !exists(t, ws, "deps", "FOO=two", "out.txt") {
		t.Error("FOO=two branch files missing")
	}
	if out.Env["MAT_FOO_ONE_BUILD_NUMBER"] != "1" {
		t.Errorf("MAT_FOO_ONE_BUILD_NUMBER = %q, want 1", out.Env["MAT_FOO_ONE_BUILD_NUMBER"])
	}
}

func TestMatrixPinnedAxisSingleBranch(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{
		Name: "mat",
		Kind: models.KindMatrix,
		Axes: map[string][]string{"FOO": {"one", "two"}},
	})
	f.recordBuild(t, "mat/FOO=one", models.ResultSuccess, map[string]string{"out.txt": "one"})
	f.recordBuild(t, "mat/FOO=two", models.ResultSuccess, map[string]string{"out.txt": "two"})
	ws := t.TempDir()

	_, err := f.orch.Run(context.Background(), Request{
		ProjectRef: "mat/FOO=two",
		Selector:   selector.Status{},
		Workspace:  ws,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(ws, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "two" {
		t.Errorf("content = %q, want pinned FOO=two branch", content)
	}
	if exists(t, ws, "FOO=two") {
		t.Error("pinned reference must not create an axis subdirectory")
	}
}

func TestModuleFallsBackToParentArtifacts(t *testing.T) {
	// Per-module archiving off: artifacts live on the parent build,
	// under module-named subdirectories.
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{
		Name:    "mods",
		Kind:    models.KindModuleSet,
		Modules: []string{"core"},
	})
	f.recordBuild(t, "mods", models.ResultSuccess, map[string]string{
		"core/core.jar": "jar",
	})
	ws := t.TempDir()

	out, err := f.orch.Run(context.Background(), Request{
		ProjectRef: "mods/core",
		Selector:   selector.Status{},
		Workspace:  ws,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Copied != 1 {
		t.Errorf("copied %d files, want 1", out.Copied)
	}
	if !exists(t, ws, "core.jar") {
		t.Error("core.jar missing: parent-level artifacts not searched")
	}
}

func TestWorkspaceSelectorCopiesFromWorkspace(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{Name: "src"})

	wsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(wsDir, "live.txt"), []byte("live"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.RecordBuild("src", &models.Build{
		Result:       models.ResultSuccess,
		WorkspaceDir: wsDir,
	}); err != nil {
		t.Fatal(err)
	}
	target := t.TempDir()

	out, err := f.orch.Run(context.Background(), Request{
		ProjectRef: "src",
		Selector:   selector.Workspace{},
		Workspace:  target,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Copied != 1 || !exists(t, target, "live.txt") {
		t.Errorf("workspace file not copied: %+v", out)
	}
}

func TestEnvInputNotMutated(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{Name: "src"})
	f.recordBuild(t, "src", models.ResultSuccess, map[string]string{"a.txt": "a"})

	env := models.EnvVars{"EXISTING": "kept"}
	out, err := f.orch.Run(context.Background(), Request{
		ProjectRef: "src",
		Selector:   selector.Status{},
		Env:        env,
		Workspace:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(env) != 1 {
		t.Errorf("input env mutated: %v", env)
	}
	if out.Env["EXISTING"] != "kept" || out.Env["SRC_BUILD_NUMBER"] != "1" {
		t.Errorf("output env = %v", out.Env)
	}
}

func TestCopyEventsPublished(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{Name: "src"})
	f.recordBuild(t, "src", models.ResultSuccess, map[string]string{"a.txt": "a"})

	_, err := f.orch.Run(context.Background(), Request{
		ID:          "req-1",
		ConsumerJob: "consumer",
		ProjectRef:  "src",
		Selector:    selector.Status{},
		Workspace:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	evs := f.sink.Events()
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	ev := evs[0]
	if ev.RequestID != "req-1" || ev.SourceJob != "src" || ev.BuildNumber != 1 || ev.Files != 1 {
		t.Errorf("event = %+v", ev)
	}
}

func TestFilterAndTargetExpandParameters(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterJob(&models.Job{Name: "src"})
	f.recordBuild(t, "src", models.ResultSuccess, map[string]string{
		"a.txt": "a",
		"b.jar": "b",
	})
	ws := t.TempDir()

	_, err := f.orch.Run(context.Background(), Request{
		ProjectRef: "src",
		Selector:   selector.Status{},
		Filter:     "*.$EXT",
		Target:     "$DIR",
		Env:        models.EnvVars{"EXT": "txt", "DIR": "in"},
		Workspace:  ws,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !exists(t, ws, "in", "a.txt") {
		t.Error("a.txt missing under expanded target")
	}
	if exists(t, ws, "in", "b.jar") {
		t.Error("b.jar should have been filtered out")
	}
}

func TestEnvName(t *testing.T) {
	tests := []struct {
		job  string
		want string
	}{
		{"src", "SRC"},
		{"my test job", "MY_TEST_JOB"},
		{"mat/FOO=one", "MAT_FOO_ONE"},
		{"app-2", "APP"},
		{"--", ""},
	}
	for _, tt := range tests {
		if got := EnvName(tt.job); got != tt.want {
			t.Errorf("EnvName(%q) = %q, want %q", tt.job, got, tt.want)
		}
	}
}
