package models

import "testing"

func TestResultOrdering(t *testing.T) {
	ordered := []Result{ResultSuccess, ResultUnstable, ResultFailure, ResultNotBuilt, ResultAborted}
	for i, better := range ordered {
		for _, worse := range ordered[i:] {
			if !better.BetterOrEqual(worse) {
				t.Errorf("%s should be at least as good as %s", better, worse)
			}
		}
	}
	if ResultUnstable.BetterOrEqual(ResultSuccess) {
		t.Error("unstable ranked at least as good as success")
	}
	if Result("bogus").BetterOrEqual(ResultAborted) {
		t.Error("unknown result should sort worst")
	}
}

func TestResultValid(t *testing.T) {
	for _, r := range []Result{ResultSuccess, ResultUnstable, ResultFailure, ResultNotBuilt, ResultAborted} {
		if !r.Valid() {
			t.Errorf("%s reported invalid", r)
		}
	}
	if Result("").Valid() || Result("green").Valid() {
		t.Error("unknown result reported valid")
	}
}

func TestEnvVarsExpand(t *testing.T) {
	env := EnvVars{"FOO": "bar", "NUM": "42"}
	tests := []struct {
		in   string
		want string
	}{
		{"$FOO", "bar"},
		{"${FOO}", "bar"},
		{"build-$NUM", "build-42"},
		{"$MISSING", ""},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := env.Expand(tt.in); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvVarsCloneAndMerged(t *testing.T) {
	var nilEnv EnvVars
	c := nilEnv.Clone()
	c["a"] = "1"
	if len(nilEnv) != 0 {
		t.Error("cloning nil produced a shared map")
	}

	base := EnvVars{"a": "1", "b": "2"}
	merged := base.Merged(EnvVars{"b": "override", "c": "3"})
	if merged["a"] != "1" || merged["b"] != "override" || merged["c"] != "3" {
		t.Errorf("merged = %v", merged)
	}
	if base["b"] != "2" {
		t.Error("Merged mutated its receiver")
	}
}

func TestBuildCompleted(t *testing.T) {
	if (&Build{}).Completed() {
		t.Error("resultless build reported completed")
	}
	if !(&Build{Result: ResultFailure}).Completed() {
		t.Error("failed build is still completed")
	}
	var nilBuild *Build
	if nilBuild.Completed() {
		t.Error("nil build reported completed")
	}
}
