package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lei/simple-copy/internal/copystep"
	"github.com/lei/simple-copy/internal/history"
	"github.com/lei/simple-copy/internal/models"
	"github.com/lei/simple-copy/internal/selector"
	"github.com/lei/simple-copy/internal/service"
	"github.com/lei/simple-copy/internal/sourceref"
)

// Handlers contains HTTP handler functions
type Handlers struct {
	service *service.Service
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{service: svc}
}

// Health handles health check requests
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ListJobs handles GET /v1/jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.service.ListJobs(r.Context())
	jobs = FilterJobs(jobs, r.URL.Query().Get("search"), r.URL.Query().Get("kind"))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jobs": jobs,
	})
}

// RegisterJob handles POST /v1/jobs
func (h *Handlers) RegisterJob(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())

	var req struct {
		Name    string               `json:"name"`
		Kind    string               `json:"kind"`
		Axes    map[string][]string  `json:"axes"`
		Modules []string             `json:"modules"`
		ACL     models.AccessControl `json:"acl"`
		Steps   []copystep.StepDef   `json:"steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	job := &models.Job{
		Name:    req.Name,
		Kind:    models.Kind(req.Kind),
		Axes:    req.Axes,
		Modules: req.Modules,
		ACL:     req.ACL,
	}
	if err := h.service.InstallJob(job, req.Steps, GetIdentity(r.Context())); err != nil {
		respondError(w, r, http.StatusConflict, err.Error())
		return
	}

	if log != nil {
		log.Info("job registered", "job", job.Name, "kind", job.Kind)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job": job,
	})
}

// GetJob handles GET /v1/jobs/{job}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	name := jobParam(r)

	job, err := h.service.GetJob(r.Context(), name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job":   job,
		"steps": h.service.Steps(name),
	})
}

// ListBuilds handles GET /v1/jobs/{job}/builds
func (h *Handlers) ListBuilds(w http.ResponseWriter, r *http.Request) {
	name := jobParam(r)
	if child := r.URL.Query().Get("child"); child != "" {
		name = history.ChildName(name, child)
	}

	builds, err := h.service.ListBuilds(r.Context(), name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	builds = FilterBuilds(builds,
		r.URL.Query().Get("result"),
		parseBoolParam(r.URL.Query().Get("keep")))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"builds": builds,
	})
}

// RecordBuild handles POST /v1/jobs/{job}/builds
func (h *Handlers) RecordBuild(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())
	name := jobParam(r)

	var req struct {
		Child        string        `json:"child"`
		Result       models.Result `json:"result"`
		Keep         bool          `json:"keep"`
		DisplayName  string        `json:"display_name"`
		ArtifactsDir string        `json:"artifacts_dir"`
		WorkspaceDir string        `json:"workspace_dir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Child != "" {
		name = history.ChildName(name, req.Child)
	}

	build, err := h.service.RecordBuild(r.Context(), name, &models.Build{
		Result:       req.Result,
		Keep:         req.Keep,
		DisplayName:  req.DisplayName,
		ArtifactsDir: req.ArtifactsDir,
		WorkspaceDir: req.WorkspaceDir,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if log != nil {
		log.Info("build recorded", "job", name, "number", build.Number)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"build": build,
	})
}

// SetKeep handles POST /v1/jobs/{job}/builds/{number}/keep
func (h *Handlers) SetKeep(w http.ResponseWriter, r *http.Request) {
	name := jobParam(r)
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid build number")
		return
	}

	var req struct {
		Child string `json:"child"`
		Keep  bool   `json:"keep"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Child != "" {
		name = history.ChildName(name, req.Child)
	}

	if err := h.service.SetKeep(r.Context(), name, number, req.Keep); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameJob handles POST /v1/jobs/{job}/rename
func (h *Handlers) RenameJob(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())
	name := jobParam(r)

	var req struct {
		NewName string `json:"new_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NewName == "" || strings.Contains(req.NewName, "/") {
		respondError(w, r, http.StatusBadRequest, "invalid new name")
		return
	}

	if err := h.service.RenameJob(r.Context(), name, req.NewName); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if log != nil {
		log.Info("job renamed", "from", name, "to", req.NewName)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Copy handles POST /v1/copy
func (h *Handlers) Copy(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())

	var req struct {
		Project       string              `json:"project"`
		Selector      selector.Definition `json:"selector"`
		Filter        string              `json:"filter"`
		Target        string              `json:"target"`
		Flatten       bool                `json:"flatten"`
		Optional      bool                `json:"optional"`
		FromWorkspace bool                `json:"from_workspace"`
		Workspace     string              `json:"workspace"`
		Env           models.EnvVars      `json:"env"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Project == "" {
		respondError(w, r, http.StatusBadRequest, "project is required")
		return
	}
	if req.Workspace == "" {
		respondError(w, r, http.StatusBadRequest, "workspace is required")
		return
	}

	outcome, err := h.service.Copy(r.Context(), service.CopyParams{
		ProjectRef:    req.Project,
		Selector:      req.Selector,
		Filter:        req.Filter,
		Target:        req.Target,
		Flatten:       req.Flatten,
		Optional:      req.Optional,
		FromWorkspace: req.FromWorkspace,
		Workspace:     req.Workspace,
		Env:           req.Env,
	}, GetIdentity(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if log != nil {
		log.Info("copy completed", "project", req.Project, "files", outcome.Copied)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"copied":   outcome.Copied,
		"branches": outcome.Branches,
		"env":      outcome.Env,
	})
}

// RunSteps handles POST /v1/jobs/{job}/steps/run
func (h *Handlers) RunSteps(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())
	name := jobParam(r)

	var req struct {
		Workspace string         `json:"workspace"`
		Env       models.EnvVars `json:"env"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Workspace == "" {
		respondError(w, r, http.StatusBadRequest, "workspace is required")
		return
	}

	env, outcomes, err := h.service.RunSteps(r.Context(), name, req.Workspace, req.Env, GetIdentity(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if log != nil {
		log.Info("steps completed", "job", name, "steps", len(outcomes))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"env":      env,
		"outcomes": outcomes,
	})
}

func jobParam(r *http.Request) string {
	return chi.URLParam(r, "job")
}

// respondError writes a JSON error response with logging
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	log := GetLogger(r.Context())
	requestID := GetRequestID(r.Context())

	if log != nil {
		log.Error("returning error response",
			"status", status,
			"message", message,
			"request_id", requestID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message":    message,
			"code":       status,
			"request_id": requestID,
		},
	})
}

// handleServiceError maps service and copy errors to HTTP responses
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := GetLogger(r.Context())
	if log != nil {
		log.Error("service error occurred",
			"error", err.Error(),
			"error_type", fmt.Sprintf("%T", err))
	}

	switch {
	case errors.Is(err, service.ErrJobNotFound):
		respondError(w, r, http.StatusNotFound, "job not found")
	case errors.Is(err, service.ErrBuildNotFound):
		respondError(w, r, http.StatusNotFound, "build not found")
	case errors.Is(err, sourceref.ErrPermissionDenied):
		respondError(w, r, http.StatusForbidden, "permission denied")
	case errors.Is(err, sourceref.ErrMissingProject):
		respondError(w, r, http.StatusNotFound, "missing project")
	case errors.Is(err, copystep.ErrMissingBuild):
		respondError(w, r, http.StatusNotFound, "missing build")
	case errors.Is(err, copystep.ErrMissingArtifact):
		respondError(w, r, http.StatusNotFound, "missing artifact")
	default:
		respondError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
