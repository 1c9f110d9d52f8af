// Package fileroot locates the file tree a copy sources from — archived
// artifacts or a live workspace — and provides the filtered copy
// primitive that moves matched files into the consuming workspace.
package fileroot

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lei/simple-copy/internal/models"
)

// Provider resolves a selected build to the directory its files live in.
type Provider interface {
	// ArtifactsOf returns the build's archived-artifacts root, false
	// if nothing was archived.
	ArtifactsOf(b *models.Build) (string, bool)

	// WorkspaceOf returns the build's workspace root, false if the
	// workspace no longer exists on disk.
	WorkspaceOf(b *models.Build) (string, bool)
}

// DirProvider reads the directories recorded on the build itself.
type DirProvider struct{}

func (DirProvider) ArtifactsOf(b *models.Build) (string, bool) {
	return existingDir(b.ArtifactsDir)
}

func (DirProvider) WorkspaceOf(b *models.Build) (string, bool) {
	return existingDir(b.WorkspaceDir)
}

func existingDir(dir string) (string, bool) {
	if dir == "" {
		return "", false
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}

// Copy copies every file under root whose relative path matches any of
// the include patterns into targetDir, creating it as needed. With
// flatten set, matched files land directly in targetDir under their
// base names; same-named files overwrite in walk order, last write
// wins. Returns the number of files copied; zero matches is a valid
// result, not an error.
func Copy(root string, includes []string, targetDir string, flatten bool) (int, error) {
	copied := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !MatchAny(includes, rel) {
			return nil
		}

		dst := filepath.Join(targetDir, filepath.FromSlash(rel))
		if flatten {
			dst = filepath.Join(targetDir, filepath.Base(p))
		}
		if err := copyFile(p, dst); err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, err
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// List returns the slash-separated relative paths under root that match
// the include patterns, in walk order.
func List(root string, includes []string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if MatchAny(includes, rel) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
