package history

import (
	"sort"
	"strings"
)

// AxisCombinations expands a matrix job's axes into the full cross
// product of combination strings, e.g. {ARCH:[amd64], OS:[linux,darwin]}
// yields ["ARCH=amd64,OS=darwin", "ARCH=amd64,OS=linux"]. Axis names are
// ordered alphabetically so combination names are stable.
func AxisCombinations(axes map[string][]string) []string {
	if len(axes) == 0 {
		return nil
	}
	names := make([]string, 0, len(axes))
	for name := range axes {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []string{""}
	for _, name := range names {
		values := axes[name]
		next := make([]string, 0, len(combos)*len(values))
		for _, c := range combos {
			for _, v := range values {
				part := name + "=" + v
				if c == "" {
					next = append(next, part)
				} else {
					next = append(next, c+","+part)
				}
			}
		}
		combos = next
	}
	sort.Strings(combos)
	return combos
}

// ChildName joins a parent job name with a configuration or module
// suffix.
func ChildName(parent, suffix string) string {
	return parent + "/" + suffix
}

// ChildSuffix returns the configuration or module part of a child job
// name, empty if name is not under parent.
func ChildSuffix(parent, name string) string {
	if strings.HasPrefix(name, parent+"/") {
		return name[len(parent)+1:]
	}
	return ""
}
