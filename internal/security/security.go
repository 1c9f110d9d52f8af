// Package security carries the identity and permission contracts used to
// gate source-job lookups. Identity is always passed explicitly; nothing
// here reads ambient process state.
package security

import "github.com/lei/simple-copy/internal/models"

// Identity is the principal on whose behalf a lookup runs.
type Identity struct {
	Name          string
	Authenticated bool
}

// Anonymous is the unauthenticated identity.
var Anonymous = Identity{}

// Authenticated returns an identity for a named, authenticated principal.
func Authenticated(name string) Identity {
	return Identity{Name: name, Authenticated: true}
}

// Checker answers permission questions about source jobs.
type Checker interface {
	// CanConfigure reports whether id may configure a copy step
	// referencing job.
	CanConfigure(id Identity, job *models.Job) bool

	// AccessibleToAllAuthenticated reports whether any authenticated
	// principal may reference job. Parameterized references are gated
	// on this, not on the triggering identity.
	AccessibleToAllAuthenticated(job *models.Job) bool
}

// ACLChecker enforces the per-job AccessControl carried on the job
// definition. A job with no restrictions is open to everyone.
type ACLChecker struct{}

func (ACLChecker) CanConfigure(id Identity, job *models.Job) bool {
	acl := effectiveACL(job)
	if !acl.Restricted() {
		return true
	}
	if !id.Authenticated {
		return false
	}
	if acl.AllAuthenticated {
		return true
	}
	for _, u := range acl.Users {
		if u == id.Name {
			return true
		}
	}
	return false
}

func (ACLChecker) AccessibleToAllAuthenticated(job *models.Job) bool {
	acl := effectiveACL(job)
	return !acl.Restricted() || acl.AllAuthenticated
}

// effectiveACL walks to the job itself; matrix configurations and
// modules inherit nothing here because the registry stamps the parent
// ACL onto children at registration time.
func effectiveACL(job *models.Job) models.AccessControl {
	if job == nil {
		return models.AccessControl{}
	}
	return job.ACL
}
