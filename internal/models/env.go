package models

import "os"

// EnvVars is the key→value environment visible to a build step.
type EnvVars map[string]string

// Expand substitutes $VAR and ${VAR} references in s against e.
// Placeholders with no binding expand to the empty string, not an error.
func (e EnvVars) Expand(s string) string {
	return os.Expand(s, func(key string) string {
		return e[key]
	})
}

// Clone returns an independent copy of e. Cloning nil yields an empty,
// usable map.
func (e EnvVars) Clone() EnvVars {
	out := make(EnvVars, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Merged returns a new EnvVars containing e's entries overlaid with
// extra. Neither input is mutated.
func (e EnvVars) Merged(extra EnvVars) EnvVars {
	out := e.Clone()
	for k, v := range extra {
		out[k] = v
	}
	return out
}
