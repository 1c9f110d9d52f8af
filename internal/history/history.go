// Package history defines the build-history contracts the selection and
// copy logic runs against. Stores own all Job and Build mutation; the
// core only reads.
package history

import "github.com/lei/simple-copy/internal/models"

// Source provides read access to jobs and their build histories.
// Implementations must be safe for concurrent readers alongside
// append-only build creation.
type Source interface {
	// LookupJob finds a job (or matrix configuration / module child)
	// by its full name.
	LookupJob(name string) (*models.Job, bool)

	// MostRecentCompleted returns the newest completed build of the
	// named job.
	MostRecentCompleted(job string) (*models.Build, bool)

	// PreviousCompleted returns the newest completed build older than b
	// within the same job.
	PreviousCompleted(b *models.Build) (*models.Build, bool)

	// BuildByNumber returns the build with the exact number, completed
	// or not.
	BuildByNumber(job string, number int) (*models.Build, bool)

	// ConfigurationsOf lists the axis-combination children of a matrix
	// job, in a stable order.
	ConfigurationsOf(matrixJob string) []*models.Job

	// ModulesOf lists the module children of a module-set job, in a
	// stable order.
	ModulesOf(moduleSetJob string) []*models.Job

	// Builds lists a job's builds newest-first.
	Builds(job string) []*models.Build
}

// Registrar owns job and build mutation. Build numbers are assigned
// monotonically per job and never reused.
type Registrar interface {
	RegisterJob(job *models.Job) error
	ListJobs() []*models.Job

	// RecordBuild stores a build against the named job, assigning the
	// next build number. The returned build carries the number.
	RecordBuild(job string, b *models.Build) (*models.Build, error)

	// SetKeep flips the keep-forever flag on an existing build.
	SetKeep(job string, number int, keep bool) error

	// RenameJob renames a job and its children, then notifies rename
	// listeners synchronously.
	RenameJob(oldName, newName string) error
}

// RenameListener is notified synchronously when a job is renamed, so
// stored source references can be kept in sync.
type RenameListener interface {
	OnJobRenamed(oldName, newName string)
}

// Store is the full contract a backing store implements.
type Store interface {
	Source
	Registrar

	// AddRenameListener registers l for future RenameJob calls.
	AddRenameListener(l RenameListener)
}
