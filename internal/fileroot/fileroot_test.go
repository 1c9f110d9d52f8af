package fileroot

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/lei/simple-copy/internal/models"
)

// writeTree creates files under dir; keys are slash-separated relative
// paths.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func listTree(t *testing.T, dir string) []string {
	t.Helper()
	out, err := List(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(out)
	return out
}

func TestCopyPreservesStructure(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"foo.txt":        "foo",
		"sub/bar.txt":    "bar",
		"sub/deep/x.bin": "x",
	})

	n, err := Copy(src, nil, dst, false)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != 3 {
		t.Errorf("copied %d files, want 3", n)
	}
	want := []string{"foo.txt", "sub/bar.txt", "sub/deep/x.bin"}
	if got := listTree(t, dst); !reflect.DeepEqual(got, want) {
		t.Errorf("target tree = %v, want %v", got, want)
	}
}

func TestCopyWithFilter(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":     "a",
		"b.jar":     "b",
		"sub/c.txt": "c",
	})

	n, err := Copy(src, SplitIncludes("**/*.txt,*.txt"), dst, false)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != 2 {
		t.Errorf("copied %d files, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(dst, "b.jar")); !os.IsNotExist(err) {
		t.Error("b.jar should not have been copied")
	}
}

func TestCopyZeroMatchesIsNotAnError(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})

	n, err := Copy(src, []string{"*.jar"}, dst, false)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != 0 {
		t.Errorf("copied %d files, want 0", n)
	}
}

func TestCopyFlattenCollapsesDirectories(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"a/one.txt": "1",
		"b/two.txt": "2",
	})

	n, err := Copy(src, nil, dst, true)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != 2 {
		t.Errorf("copied %d files, want 2", n)
	}
	want := []string{"one.txt", "two.txt"}
	if got := listTree(t, dst); !reflect.DeepEqual(got, want) {
		t.Errorf("target tree = %v, want %v", got, want)
	}
}

func TestCopyFlattenCollisionLastWriteWins(t *testing.T) {
	// Same base name in two directories: flatten keeps exactly one
	// file; which content survives is walk-order-defined.
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"a/same.txt": "from-a",
		"b/same.txt": "from-b",
	})

	n, err := Copy(src, nil, dst, true)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != 2 {
		t.Errorf("copied %d files, want 2 (both writes counted)", n)
	}
	got := listTree(t, dst)
	if len(got) != 1 || got[0] != "same.txt" {
		t.Fatalf("target tree = %v, want exactly [same.txt]", got)
	}
	content, err := os.ReadFile(filepath.Join(dst, "same.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "from-a" && string(content) != "from-b" {
		t.Errorf("surviving content = %q", content)
	}
}

func TestFilterIdempotence(t *testing.T) {
	// Copying with match-all then filtering the result with the same
	// globs yields the same set as the filtered copy itself.
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":      "a",
		"sub/b.txt":  "b",
		"sub/c.jar":  "c",
		"deep/d.txt": "d",
	})
	globs := SplitIncludes("**/*.txt,*.txt")

	all := t.TempDir()
	if _, err := Copy(src, nil, all, false); err != nil {
		t.Fatal(err)
	}
	refiltered, err := List(all, globs)
	if err != nil {
		t.Fatal(err)
	}
	direct, err := List(src, globs)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(refiltered)
	sort.Strings(direct)
	if !reflect.DeepEqual(refiltered, direct) {
		t.Errorf("refiltered = %v, direct = %v", refiltered, direct)
	}
}

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	b := &models.Build{ArtifactsDir: dir}

	if got, ok := (DirProvider{}).ArtifactsOf(b); !ok || got != dir {
		t.Errorf("ArtifactsOf = %q, %v", got, ok)
	}
	if _, ok := (DirProvider{}).WorkspaceOf(b); ok {
		t.Error("WorkspaceOf should be absent for empty dir")
	}
	if _, ok := (DirProvider{}).ArtifactsOf(&models.Build{ArtifactsDir: filepath.Join(dir, "gone")}); ok {
		t.Error("missing directory should report absent")
	}
}
