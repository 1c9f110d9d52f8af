package models

import "time"

// Kind distinguishes plain jobs from matrix projects and multi-module sets.
type Kind string

const (
	KindPlain     Kind = "plain"
	KindMatrix    Kind = "matrix"
	KindModuleSet Kind = "moduleset"
)

// Kinds returns every job kind, for exhaustiveness checks.
func Kinds() []Kind {
	return []Kind{KindPlain, KindMatrix, KindModuleSet}
}

// AccessControl describes who may reference a job as a copy source.
// The zero value means unrestricted.
type AccessControl struct {
	AllAuthenticated bool     `json:"all_authenticated" yaml:"all_authenticated"`
	Users            []string `json:"users,omitempty" yaml:"users"`
}

// Restricted reports whether the job carries any access restriction at all.
func (a AccessControl) Restricted() bool {
	return a.AllAuthenticated || len(a.Users) > 0
}

// Job is a named build definition with a history of builds.
//
// Matrix jobs declare axes; each axis combination is materialized as a
// child job named "<parent>/<AXIS=value,...>". Module-set jobs declare
// module paths, materialized as child jobs named "<parent>/<module>".
type Job struct {
	Name    string              `json:"name"`
	Kind    Kind                `json:"kind"`
	Axes    map[string][]string `json:"axes,omitempty"`
	Modules []string            `json:"modules,omitempty"`
	ACL     AccessControl       `json:"acl"`

	// Parent is the owning job name for matrix configurations and
	// modules, empty for top-level jobs.
	Parent string `json:"parent,omitempty"`
}

// Build is one numbered execution of a Job. Only completed builds
// (terminal result assigned) participate in selection.
type Build struct {
	Job         string `json:"job"`
	Number      int    `json:"number"`
	Result      Result `json:"result"`
	Keep        bool   `json:"keep"`
	DisplayName string `json:"display_name,omitempty"`

	// ArtifactsDir is the directory holding this build's archived
	// artifacts, empty if nothing was archived. WorkspaceDir is the
	// build's workspace, empty if it no longer exists.
	ArtifactsDir string `json:"artifacts_dir,omitempty"`
	WorkspaceDir string `json:"workspace_dir,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Completed reports whether the build has a terminal result.
func (b *Build) Completed() bool {
	return b != nil && b.Result != ""
}
