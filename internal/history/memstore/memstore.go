// Package memstore is the in-memory history store. It is the default
// backend and the one tests run against.
package memstore

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lei/simple-copy/internal/history"
	"github.com/lei/simple-copy/internal/models"
)

// Store keeps jobs and builds in process memory. Safe for concurrent
// readers and append-only build creation.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*models.Job
	builds    map[string][]*models.Build // ascending build number
	nextNum   map[string]int
	listeners []history.RenameListener
}

var _ history.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]*models.Job),
		builds:  make(map[string][]*models.Build),
		nextNum: make(map[string]int),
	}
}

// RegisterJob stores a job and materializes its matrix configurations or
// modules as child jobs carrying the parent's ACL.
func (s *Store) RegisterJob(job *models.Job) error {
	if job == nil || job.Name == "" {
		return fmt.Errorf("register job: name required")
	}
	if strings.Contains(job.Name, "/") {
		return fmt.Errorf("register job %q: name must not contain '/'", job.Name)
	}
	if job.Kind == "" {
		job.Kind = models.KindPlain
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("register job %q: already exists", job.Name)
	}

	stored := *job
	s.jobs[job.Name] = &stored

	switch job.Kind {
	case models.KindMatrix:
		for _, combo := range history.AxisCombinations(job.Axes) {
			s.addChild(job, combo)
		}
	case models.KindModuleSet:
		for _, mod := range job.Modules {
			s.addChild(job, mod)
		}
	}
	return nil
}

func (s *Store) addChild(parent *models.Job, suffix string) {
	name := history.ChildName(parent.Name, suffix)
	s.jobs[name] = &models.Job{
		Name:   name,
		Kind:   models.KindPlain,
		ACL:    parent.ACL,
		Parent: parent.Name,
	}
}

// ListJobs returns all top-level jobs sorted by name.
func (s *Store) ListJobs() []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Parent == "" {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// RecordBuild stores b against the named job, assigning the next build
// number. Numbers are monotonic and never reused.
func (s *Store) RecordBuild(job string, b *models.Build) (*models.Build, error) {
	if b == nil {
		return nil, fmt.Errorf("record build: nil build")
	}
	if b.Result != "" && !b.Result.Valid() {
		return nil, fmt.Errorf("record build: unknown result %q", b.Result)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job]; !ok {
		return nil, fmt.Errorf("record build: job %q not found", job)
	}

	s.nextNum[job]++
	stored := *b
	stored.Job = job
	stored.Number = s.nextNum[job]
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.builds[job] = append(s.builds[job], &stored)

	cp := stored
	return &cp, nil
}

// SetKeep flips the keep-forever flag on an existing build.
func (s *Store) SetKeep(job string, number int, keep bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.builds[job] {
		if b.Number == number {
			b.Keep = keep
			return nil
		}
	}
	return fmt.Errorf("set keep: build %s#%d not found", job, number)
}

// RenameJob renames a job together with its configuration and module
// children, then notifies rename listeners synchronously.
func (s *Store) RenameJob(oldName, newName string) error {
	if newName == "" || strings.Contains(newName, "/") {
		return fmt.Errorf("rename job: invalid new name %q", newName)
	}

	s.mu.Lock()
	if _, ok := s.jobs[oldName]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("rename job: %q not found", oldName)
	}
	if _, taken := s.jobs[newName]; taken {
		s.mu.Unlock()
		return fmt.Errorf("rename job: %q already exists", newName)
	}

	rename := func(from, to string) {
		j := s.jobs[from]
		delete(s.jobs, from)
		j.Name = to
		s.jobs[to] = j
		if bs, ok := s.builds[from]; ok {
			delete(s.builds, from)
			for _, b := range bs {
				b.Job = to
			}
			s.builds[to] = bs
		}
		if n, ok := s.nextNum[from]; ok {
			delete(s.nextNum, from)
			s.nextNum[to] = n
		}
	}

	var children []string
	for name := range s.jobs {
		if strings.HasPrefix(name, oldName+"/") {
			children = append(children, name)
		}
	}
	rename(oldName, newName)
	for _, child := range children {
		renamed := newName + child[len(oldName):]
		rename(child, renamed)
		s.jobs[renamed].Parent = newName
	}

	listeners := make([]history.RenameListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnJobRenamed(oldName, newName)
	}
	return nil
}

// AddRenameListener registers l for future RenameJob calls.
func (s *Store) AddRenameListener(l history.RenameListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// LookupJob finds a job or child by full name.
func (s *Store) LookupJob(name string) (*models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[name]
	if !ok {
		return nil, false
	}
	cp := *j
	return &cp, true
}

// MostRecentCompleted returns the newest completed build of the job.
func (s *Store) MostRecentCompleted(job string) (*models.Build, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bs := s.builds[job]
	for i := len(bs) - 1; i >= 0; i-- {
		if bs[i].Completed() {
			cp := *bs[i]
			return &cp, true
		}
	}
	return nil, false
}

// PreviousCompleted returns the newest completed build older than b.
func (s *Store) PreviousCompleted(b *models.Build) (*models.Build, bool) {
	if b == nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	bs := s.builds[b.Job]
	for i := len(bs) - 1; i >= 0; i-- {
		if bs[i].Number < b.Number && bs[i].Completed() {
			cp := *bs[i]
			return &cp, true
		}
	}
	return nil, false
}

// BuildByNumber returns the build with the exact number.
func (s *Store) BuildByNumber(job string, number int) (*models.Build, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.builds[job] {
		if b.Number == number {
			cp := *b
			return &cp, true
		}
	}
	return nil, false
}

// ConfigurationsOf lists the axis-combination children of a matrix job.
func (s *Store) ConfigurationsOf(matrixJob string) []*models.Job {
	return s.children(matrixJob)
}

// ModulesOf lists the module children of a module-set job.
func (s *Store) ModulesOf(moduleSetJob string) []*models.Job {
	return s.children(moduleSetJob)
}

func (s *Store) children(parent string) []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Job
	for _, j := range s.jobs {
		if j.Parent == parent {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Builds lists a job's builds newest-first.
func (s *Store) Builds(job string) []*models.Build {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bs := s.builds[job]
	out := make([]*models.Build, 0, len(bs))
	for i := len(bs) - 1; i >= 0; i-- {
		cp := *bs[i]
		out = append(out, &cp)
	}
	return out
}
