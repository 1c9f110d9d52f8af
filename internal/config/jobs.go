package config

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/lei/simple-copy/internal/copystep"
	"github.com/lei/simple-copy/internal/models"
	"github.com/lei/simple-copy/internal/selector"
)

// JobsConfig represents the job definitions file structure.
type JobsConfig struct {
	Jobs []JobDefinition `yaml:"jobs"`
}

// JobDefinition declares one job: its kind, fan-out shape, access
// control, owner, and the copy steps it runs as a consumer.
type JobDefinition struct {
	Name    string               `yaml:"name"`
	Kind    string               `yaml:"kind"`
	Axes    map[string][]string  `yaml:"axes"`
	Modules []string             `yaml:"modules"`
	ACL     models.AccessControl `yaml:"acl"`

	// Owner is the identity that configured this job; static step
	// references are permission-checked against it at load time.
	Owner string `yaml:"owner"`

	Steps []copystep.StepDef `yaml:"steps"`
}

// Definitions is the parsed and validated jobs file.
type Definitions struct {
	Jobs  []*models.Job
	Steps map[string][]copystep.StepDef
	Owner map[string]string
}

// LoadJobs reads and validates the job definitions file. Validation
// problems across entries are aggregated so one pass reports them all.
func LoadJobs(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}

	var cfg JobsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse jobs file: %w", err)
	}

	defs := &Definitions{
		Steps: make(map[string][]copystep.StepDef),
		Owner: make(map[string]string),
	}
	var errs error
	seen := make(map[string]bool)
	for i, jd := range cfg.Jobs {
		if jd.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("job at index %d: name required", i))
			continue
		}
		if strings.Contains(jd.Name, "/") {
			errs = multierr.Append(errs, fmt.Errorf("job %q: name must not contain '/'", jd.Name))
			continue
		}
		if seen[jd.Name] {
			errs = multierr.Append(errs, fmt.Errorf("job %q: duplicate definition", jd.Name))
			continue
		}
		seen[jd.Name] = true

		kind := models.Kind(jd.Kind)
		if jd.Kind == "" {
			kind = models.KindPlain
		}
		switch kind {
		case models.KindPlain, models.KindMatrix, models.KindModuleSet:
		default:
			errs = multierr.Append(errs, fmt.Errorf("job %q: unknown kind %q", jd.Name, jd.Kind))
			continue
		}
		if kind == models.KindMatrix && len(jd.Axes) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("job %q: matrix kind requires axes", jd.Name))
		}
		if kind == models.KindModuleSet && len(jd.Modules) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("job %q: moduleset kind requires modules", jd.Name))
		}

		for si, step := range jd.Steps {
			if step.Project == "" {
				errs = multierr.Append(errs, fmt.Errorf("job %q step %d: project required", jd.Name, si))
			}
			if _, err := step.Selector.Build(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("job %q step %d: %w", jd.Name, si, err))
			}
			if step.Selector.Kind == selector.KindPermalink && !validPermalink(step.Selector.Permalink) {
				errs = multierr.Append(errs, fmt.Errorf("job %q step %d: unknown permalink %q",
					jd.Name, si, step.Selector.Permalink))
			}
		}

		defs.Jobs = append(defs.Jobs, &models.Job{
			Name:    jd.Name,
			Kind:    kind,
			Axes:    jd.Axes,
			Modules: jd.Modules,
			ACL:     jd.ACL,
		})
		if len(jd.Steps) > 0 {
			defs.Steps[jd.Name] = jd.Steps
		}
		if jd.Owner != "" {
			defs.Owner[jd.Name] = jd.Owner
		}
	}
	if errs != nil {
		return nil, errs
	}
	return defs, nil
}

func validPermalink(name string) bool {
	switch name {
	case selector.LastBuild, selector.LastCompleted, selector.LastSuccessful,
		selector.LastStable, selector.LastFailed, selector.LastUnstable,
		selector.LastUnsuccessful:
		return true
	}
	return false
}
