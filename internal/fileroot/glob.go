package fileroot

import (
	"path"
	"strings"
)

// SplitIncludes parses a comma-separated include filter into individual
// patterns. An empty filter means match everything.
func SplitIncludes(filter string) []string {
	if strings.TrimSpace(filter) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(filter, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MatchAny reports whether the slash-separated relative path matches
// any of the include patterns. An empty pattern set matches everything.
func MatchAny(patterns []string, rel string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if Match(p, rel) {
			return true
		}
	}
	return false
}

// Match checks a slash-separated relative path against an ant-style
// glob pattern:
//
//   - "foo.txt" matches only the top-level foo.txt
//   - "*.txt" matches top-level .txt files ("*" does not cross "/")
//   - "dir/**" matches everything under dir
//   - "**/name" matches name at any depth, including the top level
//   - "a/**/b" matches a/b, a/x/b, a/x/y/b
//   - "?" matches one non-slash character
//
// Malformed patterns match nothing rather than erroring.
func Match(pattern, rel string) bool {
	if pattern == "**" {
		return true
	}

	if !strings.Contains(pattern, "**") {
		return matchGlob(pattern, rel)
	}

	if strings.HasSuffix(pattern, "/**") {
		prefix := pattern[:len(pattern)-3]
		if matchGlob(prefix, rel) {
			return true
		}
		return hasMatchingPrefix(prefix, rel)
	}

	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		if matchGlob(suffix, rel) {
			return true
		}
		return hasMatchingSuffix(suffix, rel)
	}

	if sep := strings.Index(pattern, "/**/"); sep >= 0 {
		prefix := pattern[:sep]
		suffix := pattern[sep+4:]

		// Zero segments consumed: prefix and suffix are adjacent.
		if matchGlob(prefix+"/"+suffix, rel) {
			return true
		}

		prefixDepth := strings.Count(prefix, "/") + 1
		suffixDepth := strings.Count(suffix, "/") + 1
		segments := strings.Split(rel, "/")
		if len(segments) < prefixDepth+1+suffixDepth {
			return false
		}
		if !matchGlob(prefix, strings.Join(segments[:prefixDepth], "/")) {
			return false
		}
		if !matchGlob(suffix, strings.Join(segments[len(segments)-suffixDepth:], "/")) {
			return false
		}
		return true
	}

	// Multiple ** segments beyond the shapes above are not supported.
	return false
}

// matchGlob applies path.Match semantics; "*" and "?" do not cross "/".
func matchGlob(pattern, s string) bool {
	matched, err := path.Match(pattern, s)
	return err == nil && matched
}

// hasMatchingPrefix reports whether rel starts with segments matching
// the pattern, with at least one further segment after them.
func hasMatchingPrefix(pattern, rel string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.SplitN(rel, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	return matchGlob(pattern, strings.Join(segments[:depth], "/"))
}

// hasMatchingSuffix reports whether rel ends with segments matching the
// pattern, with at least one segment before them.
func hasMatchingSuffix(pattern, rel string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.Split(rel, "/")
	if len(segments) <= depth {
		return false
	}
	return matchGlob(pattern, strings.Join(segments[len(segments)-depth:], "/"))
}
