package copystep

import "errors"

var (
	// ErrMissingBuild means no build of the resolved job satisfied the
	// selector. Suppressed by the optional flag.
	ErrMissingBuild = errors.New("missing build")

	// ErrMissingArtifact means a build was selected but the filter
	// matched no files. Suppressed by the optional flag.
	ErrMissingArtifact = errors.New("missing artifact")
)
