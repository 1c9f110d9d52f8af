// Package copystep orchestrates one copy: resolve the source reference,
// fan out over matrix configurations or modules, select a build per
// branch, copy the filtered file set into the consuming workspace, and
// publish per-branch environment variables describing what was chosen.
package copystep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lei/simple-copy/internal/events"
	"github.com/lei/simple-copy/internal/fileroot"
	"github.com/lei/simple-copy/internal/history"
	"github.com/lei/simple-copy/internal/models"
	"github.com/lei/simple-copy/internal/security"
	"github.com/lei/simple-copy/internal/selector"
	"github.com/lei/simple-copy/internal/sourceref"
	"github.com/lei/simple-copy/pkg/logger"
)

// StepDef is the declarative form of a copy step as configured on a
// consuming job.
type StepDef struct {
	Project       string              `yaml:"project" json:"project"`
	Selector      selector.Definition `yaml:"selector" json:"selector"`
	Filter        string              `yaml:"filter,omitempty" json:"filter,omitempty"`
	Target        string              `yaml:"target,omitempty" json:"target,omitempty"`
	Flatten       bool                `yaml:"flatten,omitempty" json:"flatten,omitempty"`
	Optional      bool                `yaml:"optional,omitempty" json:"optional,omitempty"`
	FromWorkspace bool                `yaml:"from_workspace,omitempty" json:"from_workspace,omitempty"`
}

// Request is one copy invocation.
type Request struct {
	ID          string
	ConsumerJob string

	ProjectRef string
	Selector   selector.Selector
	Filter     string
	Target     string

	Flatten       bool
	Optional      bool
	FromWorkspace bool

	// Workspace is the consuming build's workspace directory files are
	// copied into.
	Workspace string

	Env      models.EnvVars
	Identity security.Identity

	// CheckStatic applies the configuration-time permission rule to a
	// static reference. Ad-hoc requests set it; configured steps were
	// already checked when loaded.
	CheckStatic bool
}

// BranchResult reports one fan-out branch.
type BranchResult struct {
	Job     string `json:"job"`
	Build   int    `json:"build,omitempty"`
	Files   int    `json:"files"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Outcome is the result of a successful (or optionally-suppressed)
// copy. Env is the request environment extended with the published
// variables; the input map is never mutated.
type Outcome struct {
	Copied   int
	Branches []BranchResult
	Env      models.EnvVars
}

// Orchestrator wires the resolver, selectors, file roots and event sink
// together.
type Orchestrator struct {
	src      history.Source
	resolver *sourceref.Resolver
	roots    fileroot.Provider
	sink     events.Sink
	log      *logger.Logger
}

// New creates an orchestrator.
func New(src history.Source, resolver *sourceref.Resolver, roots fileroot.Provider, sink events.Sink, log *logger.Logger) *Orchestrator {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Orchestrator{src: src, resolver: resolver, roots: roots, sink: sink, log: log}
}

// Run performs one copy request.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	job, err := o.resolver.Resolve(req.ProjectRef, req.Env, req.Identity, sourceref.Options{
		CheckStatic: req.CheckStatic,
	})
	if err != nil {
		return nil, err
	}

	filter := req.Env.Expand(req.Filter)
	target := req.Env.Expand(req.Target)
	includes := fileroot.SplitIncludes(filter)

	type branch struct {
		job    *models.Job
		subdir string
	}
	var branches []branch
	switch {
	case job.Kind == models.KindMatrix:
		// Unpinned matrix reference: one branch per configuration,
		// each landing under its axis-combination subdirectory.
		for _, cfg := range o.src.ConfigurationsOf(job.Name) {
			branches = append(branches, branch{cfg, history.ChildSuffix(job.Name, cfg.Name)})
		}
	case job.Kind == models.KindModuleSet:
		for _, mod := range o.src.ModulesOf(job.Name) {
			branches = append(branches, branch{mod, history.ChildSuffix(job.Name, mod.Name)})
		}
	default:
		branches = append(branches, branch{job, ""})
	}
	if len(branches) == 0 {
		if req.Optional {
			return &Outcome{Env: req.Env.Clone()}, nil
		}
		return nil, fmt.Errorf("project %q has no branches to copy from: %w", job.Name, ErrMissingBuild)
	}

	fromWorkspace := req.FromWorkspace || selector.UsesWorkspace(req.Selector)

	out := &Outcome{Env: req.Env.Clone()}
	for _, br := range branches {
		build, root, ok := o.selectBranch(br.job, req.Selector, req.Env, fromWorkspace)
		if !ok {
			if req.Optional {
				out.Branches = append(out.Branches, BranchResult{Job: br.job.Name, Skipped: true})
				o.log.Debug("no matching build, branch skipped", "job", br.job.Name)
				continue
			}
			return nil, fmt.Errorf("no build of %q matched: %w", br.job.Name, ErrMissingBuild)
		}

		dst := filepath.Join(req.Workspace, filepath.FromSlash(target), filepath.FromSlash(br.subdir))
		copied := 0
		if root != "" {
			copied, err = fileroot.Copy(root, includes, dst, req.Flatten)
			if err != nil {
				return nil, fmt.Errorf("copy from %q build %d: %w", br.job.Name, build.Number, err)
			}
		}
		if copied == 0 {
			if req.Optional {
				out.Branches = append(out.Branches, BranchResult{Job: br.job.Name, Build: build.Number, Skipped: true})
				o.log.Debug("no files matched, branch skipped", "job", br.job.Name, "build", build.Number)
				continue
			}
			return nil, fmt.Errorf("no files of %q build %d matched filter %q: %w",
				br.job.Name, build.Number, filter, ErrMissingArtifact)
		}

		o.publishEnv(out.Env, br.job.Name, build)
		out.Copied += copied
		out.Branches = append(out.Branches, BranchResult{Job: br.job.Name, Build: build.Number, Files: copied})

		ev := events.CopyEvent{
			RequestID:   req.ID,
			ConsumerJob: req.ConsumerJob,
			SourceJob:   br.job.Name,
			BuildNumber: build.Number,
			Result:      build.Result,
			Files:       copied,
			Target:      target,
			At:          time.Now(),
		}
		if err := o.sink.Publish(ctx, ev); err != nil {
			// Event delivery must not fail the build.
			o.log.Warn("copy event publish failed", "job", br.job.Name, "error", err)
		}

		o.log.Info("copied files",
			"source_job", br.job.Name,
			"build", build.Number,
			"files", copied,
			"target", dst)
	}
	return out, nil
}

// selectBranch picks the build for one branch and resolves its file
// root. Module branches with no history of their own fall back to the
// parent build's artifacts, which is where module-set builds archive
// when per-module archiving is off.
func (o *Orchestrator) selectBranch(job *models.Job, sel selector.Selector, env models.EnvVars, fromWorkspace bool) (*models.Build, string, bool) {
	build, ok := sel.Select(o.src, job, nil, env)
	if ok {
		return build, o.rootOf(build, job, fromWorkspace), true
	}

	if job.Parent == "" {
		return nil, "", false
	}
	parent, found := o.src.LookupJob(job.Parent)
	if !found || parent.Kind != models.KindModuleSet {
		return nil, "", false
	}
	parentBuild, ok := sel.Select(o.src, parent, nil, env)
	if !ok {
		return nil, "", false
	}
	return parentBuild, o.rootOf(parentBuild, job, fromWorkspace), true
}

// rootOf resolves the directory to copy from, empty if the build has no
// usable root. When a module branch borrows its parent's artifacts, the
// module-named subdirectory is used if the parent archived one.
func (o *Orchestrator) rootOf(build *models.Build, job *models.Job, fromWorkspace bool) string {
	var root string
	var ok bool
	if fromWorkspace {
		root, ok = o.roots.WorkspaceOf(build)
	} else {
		root, ok = o.roots.ArtifactsOf(build)
	}
	if !ok {
		return ""
	}
	if build.Job != job.Name {
		if suffix := history.ChildSuffix(build.Job, job.Name); suffix != "" {
			sub := filepath.Join(root, filepath.FromSlash(suffix))
			if info, err := os.Stat(sub); err == nil && info.IsDir() {
				return sub
			}
		}
	}
	return root
}

// publishEnv appends the per-branch variables describing the selected
// build: <NAME>_BUILD_NUMBER and <NAME>_BUILD_RESULT, where NAME is the
// branch job name reduced to letters and underscores.
func (o *Orchestrator) publishEnv(env models.EnvVars, jobName string, build *models.Build) {
	name := EnvName(jobName)
	if name == "" {
		return
	}
	env[name+"_BUILD_NUMBER"] = strconv.Itoa(build.Number)
	env[name+"_BUILD_RESULT"] = string(build.Result)
}

// EnvName derives the environment variable stem for a job name: upper
// cased, runs of non-letter characters collapsed to single underscores,
// edges trimmed.
func EnvName(job string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToUpper(job) {
		if r >= 'A' && r <= 'Z' {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		} else {
			pendingSep = true
		}
	}
	return b.String()
}
