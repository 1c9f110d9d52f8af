// Package relay provides an embeddable artifact-copy relay: a service
// that lets one CI build copy files produced by another job's archived
// artifacts or workspace, choosing the source build through pluggable
// selection strategies.
//
// Use New with an explicit Config to embed the relay in an existing
// application, or NewFromFiles to build one from the YAML config and
// job definition files the standalone daemon uses. Handler exposes the
// REST surface for mounting under another router; Service gives direct
// programmatic access to registration and copying.
package relay
