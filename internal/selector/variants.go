package selector

import (
	"strconv"
	"strings"

	"github.com/lei/simple-copy/internal/history"
	"github.com/lei/simple-copy/internal/models"
)

// Status selects the most recent build whose result is good enough:
// success only when Stable is set, success or unstable otherwise.
type Status struct {
	Stable bool
}

func (s Status) Selectable(b *models.Build, _ models.EnvVars) bool {
	if !b.Completed() {
		return false
	}
	if s.Stable {
		return b.Result == models.ResultSuccess
	}
	return b.Result.BetterOrEqual(models.ResultUnstable)
}

func (s Status) Select(src history.Source, job *models.Job, candidates []*models.Build, env models.EnvVars) (*models.Build, bool) {
	return walk(src, job, candidates, env, s)
}

// Saved selects the most recent build marked keep-forever.
type Saved struct{}

func (Saved) Selectable(b *models.Build, _ models.EnvVars) bool {
	return b.Completed() && b.Keep
}

func (s Saved) Select(src history.Source, job *models.Job, candidates []*models.Build, env models.EnvVars) (*models.Build, bool) {
	return walk(src, job, candidates, env, s)
}

// Specific selects the build with an exact number. The configured
// expression may contain $VAR placeholders, expanded against the
// invoking environment. An empty or unparsable expansion selects
// nothing.
type Specific struct {
	Expr string
}

func (s Specific) Select(src history.Source, job *models.Job, _ []*models.Build, env models.EnvVars) (*models.Build, bool) {
	expanded := strings.TrimSpace(env.Expand(s.Expr))
	if expanded == "" {
		return nil, false
	}
	n, err := strconv.Atoi(expanded)
	if err != nil || n <= 0 {
		return nil, false
	}
	b, ok := src.BuildByNumber(job.Name, n)
	if !ok || !b.Completed() {
		return nil, false
	}
	return b, true
}

// Workspace marks that files should come from the live workspace of the
// source job's most recent completed build rather than from archived
// artifacts. It still identifies which build's workspace applies.
type Workspace struct{}

func (Workspace) Selectable(b *models.Build, _ models.EnvVars) bool {
	return b.Completed()
}

func (w Workspace) Select(src history.Source, job *models.Job, candidates []*models.Build, env models.EnvVars) (*models.Build, bool) {
	return walk(src, job, candidates, env, w)
}

// UsesWorkspace reports whether sel sources files from the live
// workspace instead of archived artifacts.
func UsesWorkspace(sel Selector) bool {
	_, ok := sel.(Workspace)
	return ok
}

// Permalink names resolved by the Permalink selector.
const (
	LastBuild        = "lastBuild"
	LastCompleted    = "lastCompletedBuild"
	LastSuccessful   = "lastSuccessfulBuild"
	LastStable       = "lastStableBuild"
	LastFailed       = "lastFailedBuild"
	LastUnstable     = "lastUnstableBuild"
	LastUnsuccessful = "lastUnsuccessfulBuild"
)

// Permalink selects the build a named permalink resolves to. This is a
// single lookup over the completed-build chain, not a predicate walk.
type Permalink struct {
	Name string
}

func (p Permalink) Select(src history.Source, job *models.Job, _ []*models.Build, _ models.EnvVars) (*models.Build, bool) {
	var want func(*models.Build) bool
	switch p.Name {
	case LastBuild, LastCompleted:
		want = func(*models.Build) bool { return true }
	case LastSuccessful:
		want = func(b *models.Build) bool {
			return b.Result.BetterOrEqual(models.ResultUnstable)
		}
	case LastStable:
		want = func(b *models.Build) bool { return b.Result == models.ResultSuccess }
	case LastFailed:
		want = func(b *models.Build) bool { return b.Result == models.ResultFailure }
	case LastUnstable:
		want = func(b *models.Build) bool { return b.Result == models.ResultUnstable }
	case LastUnsuccessful:
		want = func(b *models.Build) bool {
			return !b.Result.BetterOrEqual(models.ResultUnstable)
		}
	default:
		return nil, false
	}
	for b, ok := src.MostRecentCompleted(job.Name); ok; b, ok = src.PreviousCompleted(b) {
		if want(b) {
			return b, true
		}
	}
	return nil, false
}
