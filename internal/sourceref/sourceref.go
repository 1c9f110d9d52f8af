// Package sourceref resolves the project reference of a copy step — a
// job name, optionally followed by a matrix-axis combination or module
// path, either segment possibly containing $VAR placeholders — to the
// concrete job selection runs against.
package sourceref

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lei/simple-copy/internal/history"
	"github.com/lei/simple-copy/internal/models"
	"github.com/lei/simple-copy/internal/security"
)

var (
	// ErrMissingProject means the reference resolved to no known job.
	ErrMissingProject = errors.New("missing project")

	// ErrPermissionDenied means the resolved job exists but the
	// reference is not allowed to use it.
	ErrPermissionDenied = errors.New("permission denied")
)

// Parameterized reports whether raw contains $VAR placeholders, which
// defers the permission check to run time.
func Parameterized(raw string) bool {
	return strings.Contains(raw, "$")
}

// Resolver turns raw references into concrete jobs.
type Resolver struct {
	src history.Source
	sec security.Checker
}

// NewResolver creates a resolver over the given history source and
// permission checker.
func NewResolver(src history.Source, sec security.Checker) *Resolver {
	return &Resolver{src: src, sec: sec}
}

// Options control how a reference is permission-checked.
type Options struct {
	// CheckStatic forces the configuration-time check even for a
	// static reference. Ad-hoc requests set it because no earlier
	// configuration-time check ever ran for them.
	CheckStatic bool
}

// Resolve expands raw against env and locates the referenced job.
//
// Static references were permission-checked when configured, so only
// parameterized ones are re-checked here — and against the stricter
// all-authenticated rule, because the concrete name was not knowable at
// configuration time and must not leak jobs the triggering identity
// merely happens to reach.
func (r *Resolver) Resolve(raw string, env models.EnvVars, id security.Identity, opts Options) (*models.Job, error) {
	parameterized := Parameterized(raw)

	expanded := strings.TrimSpace(env.Expand(raw))
	if expanded == "" || strings.HasPrefix(expanded, "/") {
		return nil, fmt.Errorf("resolve %q: %w", raw, ErrMissingProject)
	}

	job, err := r.locate(expanded)
	if err != nil {
		return nil, err
	}

	if parameterized {
		if !r.sec.AccessibleToAllAuthenticated(job) {
			return nil, fmt.Errorf("resolve %q as %q: %w", raw, job.Name, ErrPermissionDenied)
		}
	} else if opts.CheckStatic {
		if !r.sec.CanConfigure(id, job) {
			return nil, fmt.Errorf("resolve %q: %w", raw, ErrPermissionDenied)
		}
	}
	return job, nil
}

// locate finds the job for a fully expanded reference, dispatching the
// suffix on the target job's kind.
func (r *Resolver) locate(name string) (*models.Job, error) {
	// A child job (configuration or module) registered under the full
	// name wins outright.
	if job, ok := r.src.LookupJob(name); ok {
		return job, nil
	}

	base, suffix, found := strings.Cut(name, "/")
	if !found {
		return nil, fmt.Errorf("job %q: %w", name, ErrMissingProject)
	}
	parent, ok := r.src.LookupJob(base)
	if !ok {
		return nil, fmt.Errorf("job %q: %w", base, ErrMissingProject)
	}

	switch parent.Kind {
	case models.KindMatrix:
		// Axis order in the reference need not match the registered
		// combination name.
		want, err := parseCombination(suffix)
		if err != nil {
			return nil, fmt.Errorf("job %q combination %q: %w", base, suffix, ErrMissingProject)
		}
		for _, cfg := range r.src.ConfigurationsOf(parent.Name) {
			got, err := parseCombination(history.ChildSuffix(parent.Name, cfg.Name))
			if err == nil && sameCombination(want, got) {
				return cfg, nil
			}
		}
		return nil, fmt.Errorf("job %q combination %q: %w", base, suffix, ErrMissingProject)
	case models.KindModuleSet:
		for _, mod := range r.src.ModulesOf(parent.Name) {
			if history.ChildSuffix(parent.Name, mod.Name) == suffix {
				return mod, nil
			}
		}
		return nil, fmt.Errorf("job %q module %q: %w", base, suffix, ErrMissingProject)
	default:
		return nil, fmt.Errorf("job %q has no sub-job %q: %w", base, suffix, ErrMissingProject)
	}
}

// ValidateStatic performs the configuration-time check for a static
// reference on behalf of the configuring identity. Parameterized
// references are skipped; they are checked at run time instead. A
// reference to a job that does not exist yet passes — the job may be
// created later.
func (r *Resolver) ValidateStatic(raw string, id security.Identity) error {
	if Parameterized(raw) {
		return nil
	}
	job, err := r.locate(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	if !r.sec.CanConfigure(id, job) {
		return fmt.Errorf("reference %q: %w", raw, ErrPermissionDenied)
	}
	return nil
}

// parseCombination splits "AXIS=a,AXIS2=b" into a map.
func parseCombination(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		axis, value, found := strings.Cut(part, "=")
		if !found || axis == "" {
			return nil, fmt.Errorf("malformed axis assignment %q", part)
		}
		out[axis] = value
	}
	return out, nil
}

func sameCombination(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
