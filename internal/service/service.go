// Package service coordinates the copy core behind the API: job and
// build registration, configured step management, and copy execution.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lei/simple-copy/internal/copystep"
	"github.com/lei/simple-copy/internal/events"
	"github.com/lei/simple-copy/internal/fileroot"
	"github.com/lei/simple-copy/internal/history"
	"github.com/lei/simple-copy/internal/models"
	"github.com/lei/simple-copy/internal/security"
	"github.com/lei/simple-copy/internal/selector"
	"github.com/lei/simple-copy/internal/sourceref"
	"github.com/lei/simple-copy/pkg/logger"
)

var (
	// ErrJobNotFound indicates the requested job doesn't exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrBuildNotFound indicates the requested build doesn't exist.
	ErrBuildNotFound = errors.New("build not found")
)

// Service owns the step registry and fronts the history store and copy
// orchestrator.
type Service struct {
	store    history.Store
	sec      security.Checker
	resolver *sourceref.Resolver
	orch     *copystep.Orchestrator
	logger   *logger.Logger

	mu    sync.RWMutex
	steps map[string][]copystep.StepDef
}

// NewService creates a service over the given store and event sink and
// registers itself for rename notifications.
func NewService(store history.Store, sink events.Sink, log *logger.Logger) *Service {
	sec := security.ACLChecker{}
	resolver := sourceref.NewResolver(store, sec)
	s := &Service{
		store:    store,
		sec:      sec,
		resolver: resolver,
		orch:     copystep.New(store, resolver, fileroot.DirProvider{}, sink, log),
		logger:   log,
		steps:    make(map[string][]copystep.StepDef),
	}
	store.AddRenameListener(s)
	return s
}

// InstallJob registers a job together with its configured copy steps.
// Static step references are permission-checked against the owner
// identity now, at configuration time; a reference the owner may not
// use is cleared to empty rather than stored.
func (s *Service) InstallJob(job *models.Job, steps []copystep.StepDef, owner security.Identity) error {
	if err := s.store.RegisterJob(job); err != nil {
		return err
	}
	s.SetSteps(job.Name, steps, owner)
	return nil
}

// SetSteps replaces the configured steps of a job, applying the
// configuration-time permission check to static references.
func (s *Service) SetSteps(job string, steps []copystep.StepDef, owner security.Identity) {
	checked := make([]copystep.StepDef, len(steps))
	copy(checked, steps)
	for i := range checked {
		if err := s.resolver.ValidateStatic(checked[i].Project, owner); err != nil {
			s.logger.Warn("static reference not permitted, cleared",
				"job", job,
				"project", checked[i].Project,
				"owner", owner.Name)
			checked[i].Project = ""
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(checked) == 0 {
		delete(s.steps, job)
		return
	}
	s.steps[job] = checked
}

// Steps returns the configured steps of a job.
func (s *Service) Steps(job string) []copystep.StepDef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]copystep.StepDef, len(s.steps[job]))
	copy(out, s.steps[job])
	return out
}

// OnJobRenamed keeps stored step references in sync with job renames.
func (s *Service) OnJobRenamed(oldName, newName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for job, steps := range s.steps {
		for i := range steps {
			if rewritten, changed := sourceref.RewriteOnRename(steps[i].Project, oldName, newName); changed {
				s.logger.Info("rewrote step reference after rename",
					"job", job,
					"from", steps[i].Project,
					"to", rewritten)
				steps[i].Project = rewritten
			}
		}
	}
	if steps, ok := s.steps[oldName]; ok {
		delete(s.steps, oldName)
		s.steps[newName] = steps
	}
}

// ListJobs returns all registered top-level jobs.
func (s *Service) ListJobs(ctx context.Context) []*models.Job {
	return s.store.ListJobs()
}

// GetJob returns one job or child by full name.
func (s *Service) GetJob(ctx context.Context, name string) (*models.Job, error) {
	job, ok := s.store.LookupJob(name)
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListBuilds returns a job's builds newest-first.
func (s *Service) ListBuilds(ctx context.Context, job string) ([]*models.Build, error) {
	if _, ok := s.store.LookupJob(job); !ok {
		return nil, ErrJobNotFound
	}
	return s.store.Builds(job), nil
}

// RecordBuild stores a completed build against a job.
func (s *Service) RecordBuild(ctx context.Context, job string, b *models.Build) (*models.Build, error) {
	recorded, err := s.store.RecordBuild(job, b)
	if err != nil {
		if _, ok := s.store.LookupJob(job); !ok {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	s.logger.Info("build recorded", "job", job, "number", recorded.Number, "result", recorded.Result)
	return recorded, nil
}

// SetKeep flips the keep-forever flag on a build.
func (s *Service) SetKeep(ctx context.Context, job string, number int, keep bool) error {
	if _, ok := s.store.LookupJob(job); !ok {
		return ErrJobNotFound
	}
	if err := s.store.SetKeep(job, number, keep); err != nil {
		return ErrBuildNotFound
	}
	return nil
}

// RenameJob renames a job; stored step references follow synchronously
// through the rename listener.
func (s *Service) RenameJob(ctx context.Context, oldName, newName string) error {
	if _, ok := s.store.LookupJob(oldName); !ok {
		return ErrJobNotFound
	}
	return s.store.RenameJob(oldName, newName)
}

// CopyParams is an ad-hoc copy request.
type CopyParams struct {
	ProjectRef    string
	Selector      selector.Definition
	Filter        string
	Target        string
	Flatten       bool
	Optional      bool
	FromWorkspace bool
	Workspace     string
	Env           models.EnvVars
}

// Copy performs one ad-hoc copy on behalf of id. Ad-hoc static
// references never saw a configuration-time check, so one is applied
// here.
func (s *Service) Copy(ctx context.Context, p CopyParams, id security.Identity) (*copystep.Outcome, error) {
	sel, err := p.Selector.Build()
	if err != nil {
		return nil, err
	}
	req := copystep.Request{
		ID:            uuid.New().String(),
		ProjectRef:    p.ProjectRef,
		Selector:      sel,
		Filter:        p.Filter,
		Target:        p.Target,
		Flatten:       p.Flatten,
		Optional:      p.Optional,
		FromWorkspace: p.FromWorkspace,
		Workspace:     p.Workspace,
		Env:           p.Env,
		Identity:      id,
		CheckStatic:   true,
	}
	return s.orch.Run(ctx, req)
}

// RunSteps executes a job's configured copy steps in order against the
// given workspace. Environment additions from each step are visible to
// the ones after it. The first hard failure stops the run.
func (s *Service) RunSteps(ctx context.Context, job, workspace string, env models.EnvVars, id security.Identity) (models.EnvVars, []*copystep.Outcome, error) {
	if _, ok := s.store.LookupJob(job); !ok {
		return nil, nil, ErrJobNotFound
	}
	steps := s.Steps(job)

	current := env.Clone()
	var outcomes []*copystep.Outcome
	for i, step := range steps {
		sel, err := step.Selector.Build()
		if err != nil {
			return current, outcomes, fmt.Errorf("step %d: %w", i, err)
		}
		req := copystep.Request{
			ID:            uuid.New().String(),
			ConsumerJob:   job,
			ProjectRef:    step.Project,
			Selector:      sel,
			Filter:        step.Filter,
			Target:        step.Target,
			Flatten:       step.Flatten,
			Optional:      step.Optional,
			FromWorkspace: step.FromWorkspace,
			Workspace:     workspace,
			Env:           current,
			Identity:      id,
		}
		outcome, err := s.orch.Run(ctx, req)
		if err != nil {
			return current, outcomes, fmt.Errorf("step %d: %w", i, err)
		}
		outcomes = append(outcomes, outcome)
		current = outcome.Env
	}
	return current, outcomes, nil
}
