package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// suggestNames returns the known names that fuzzily match input, best first.
func suggestNames(input string, known []string) []string {
	matches := fuzzy.Find(strings.ToLower(input), lowerAll(known))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, known[m.Index])
	}
	return out
}

func lowerAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(n)
	}
	return out
}

func unknownSpecialistsError(unknown, known []string) error {
	var b strings.Builder
	for i, name := range unknown {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "unknown specialist %q", name)
		if s := suggestNames(name, known); len(s) > 0 {
			fmt.Fprintf(&b, " (did you mean %s?)", s[0])
		}
	}
	fmt.Fprintf(&b, "; configured: %s", strings.Join(known, ", "))
	return errors.New(b.String())
}
