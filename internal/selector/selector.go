// Package selector implements the pluggable strategies that choose one
// build from a source job's history.
//
// Most selectors implement just Selectable and get the standard walk
// through completed builds, newest first. Selectors that locate their
// build directly (a specific number, a permalink) implement Select
// themselves.
package selector

import (
	"github.com/lei/simple-copy/internal/history"
	"github.com/lei/simple-copy/internal/models"
)

// Selector picks one build of a job.
//
// If candidates is non-nil it is the sequence to test, in caller-defined
// order; the first match wins. If candidates is nil the walk starts at
// the job's most recent completed build and follows the
// previous-completed chain.
type Selector interface {
	Select(src history.Source, job *models.Job, candidates []*models.Build, env models.EnvVars) (*models.Build, bool)
}

// Predicate is the per-build test used by walk-based selectors.
type Predicate interface {
	Selectable(b *models.Build, env models.EnvVars) bool
}

// walk applies pred over the candidate list, or over the job's
// completed-build chain when candidates is nil, returning the first
// match.
func walk(src history.Source, job *models.Job, candidates []*models.Build, env models.EnvVars, pred Predicate) (*models.Build, bool) {
	if candidates != nil {
		for _, b := range candidates {
			if pred.Selectable(b, env) {
				return b, true
			}
		}
		return nil, false
	}
	for b, ok := src.MostRecentCompleted(job.Name); ok; b, ok = src.PreviousCompleted(b) {
		if pred.Selectable(b, env) {
			return b, true
		}
	}
	return nil, false
}

// Legacy is the selector contract that predates candidate lists.
// Implementations written against it keep working through AdaptLegacy;
// the candidate list is ignored, as the old contract never saw one.
type Legacy interface {
	SelectBuild(src history.Source, job *models.Job, env models.EnvVars) (*models.Build, bool)
}

// AdaptLegacy wraps an old-style selector in the current contract. The
// adapter is chosen at construction time, so no dispatch-time probing is
// needed.
func AdaptLegacy(l Legacy) Selector {
	return legacyAdapter{l}
}

type legacyAdapter struct {
	l Legacy
}

func (a legacyAdapter) Select(src history.Source, job *models.Job, _ []*models.Build, env models.EnvVars) (*models.Build, bool) {
	return a.l.SelectBuild(src, job, env)
}

// Base is a Selector that matches nothing: its predicate always returns
// false. Embed it to get the standard walk and override Selectable.
type Base struct{}

func (Base) Selectable(*models.Build, models.EnvVars) bool { return false }

// FromPredicate runs the standard walk over pred.
func FromPredicate(pred Predicate) Selector {
	return predicateSelector{pred}
}

type predicateSelector struct {
	pred Predicate
}

func (p predicateSelector) Select(src history.Source, job *models.Job, candidates []*models.Build, env models.EnvVars) (*models.Build, bool) {
	return walk(src, job, candidates, env, p.pred)
}
