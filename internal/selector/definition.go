package selector

import "fmt"

// Selector kinds accepted in definitions. The set is centrally
// enumerated so tests can check it exhaustively.
const (
	KindStatus    = "status"
	KindSaved     = "saved"
	KindSpecific  = "specific"
	KindWorkspace = "workspace"
	KindPermalink = "permalink"
)

// Kinds returns every selector kind.
func Kinds() []string {
	return []string{KindStatus, KindSaved, KindSpecific, KindWorkspace, KindPermalink}
}

// Definition is the declarative form of a selector, as it appears in
// job definition files and copy requests.
type Definition struct {
	Kind string `yaml:"kind" json:"kind"`

	// Stable applies to kind "status".
	Stable bool `yaml:"stable,omitempty" json:"stable,omitempty"`

	// BuildNumber applies to kind "specific"; it may contain $VAR
	// placeholders.
	BuildNumber string `yaml:"build_number,omitempty" json:"build_number,omitempty"`

	// Permalink applies to kind "permalink", e.g. "lastStableBuild".
	Permalink string `yaml:"permalink,omitempty" json:"permalink,omitempty"`
}

// Build materializes the definition into a Selector. An empty kind
// defaults to a stable status selector.
func (d Definition) Build() (Selector, error) {
	switch d.Kind {
	case "", KindStatus:
		return Status{Stable: d.Kind == "" || d.Stable}, nil
	case KindSaved:
		return Saved{}, nil
	case KindSpecific:
		return Specific{Expr: d.BuildNumber}, nil
	case KindWorkspace:
		return Workspace{}, nil
	case KindPermalink:
		return Permalink{Name: d.Permalink}, nil
	default:
		return nil, fmt.Errorf("unknown selector kind %q", d.Kind)
	}
}
