package api

import (
	"strings"

	"github.com/lei/simple-copy/internal/models"
)

// FilterJobs narrows a job list by name substring and kind.
func FilterJobs(jobs []*models.Job, search string, kind string) []*models.Job {
	out := make([]*models.Job, 0, len(jobs))
	for _, j := range jobs {
		if search != "" && !strings.Contains(j.Name, search) {
			continue
		}
		if kind != "" && string(j.Kind) != kind {
			continue
		}
		out = append(out, j)
	}
	return out
}

// FilterBuilds narrows a build list by result and keep flag.
func FilterBuilds(builds []*models.Build, result string, keep *bool) []*models.Build {
	out := make([]*models.Build, 0, len(builds))
	for _, b := range builds {
		if result != "" && string(b.Result) != result {
			continue
		}
		if keep != nil && b.Keep != *keep {
			continue
		}
		out = append(out, b)
	}
	return out
}

// parseBoolParam interprets a query parameter as an optional bool.
func parseBoolParam(value string) *bool {
	switch value {
	case "true", "1":
		v := true
		return &v
	case "false", "0":
		v := false
		return &v
	default:
		return nil
	}
}
