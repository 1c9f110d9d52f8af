package models

// Result is the terminal outcome of a build. The empty string means the
// build has not completed yet.
type Result string

const (
	ResultSuccess  Result = "success"
	ResultUnstable Result = "unstable"
	ResultFailure  Result = "failure"
	ResultNotBuilt Result = "not_built"
	ResultAborted  Result = "aborted"
)

// ordinal orders results from best to worst. Unknown results sort worst.
func (r Result) ordinal() int {
	switch r {
	case ResultSuccess:
		return 0
	case ResultUnstable:
		return 1
	case ResultFailure:
		return 2
	case ResultNotBuilt:
		return 3
	case ResultAborted:
		return 4
	default:
		return 5
	}
}

// BetterOrEqual reports whether r is at least as good as other.
func (r Result) BetterOrEqual(other Result) bool {
	return r.ordinal() <= other.ordinal()
}

// Valid reports whether r is one of the known terminal results.
func (r Result) Valid() bool {
	switch r {
	case ResultSuccess, ResultUnstable, ResultFailure, ResultNotBuilt, ResultAborted:
		return true
	}
	return false
}
