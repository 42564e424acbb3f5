package matching

import (
	"fmt"
	"strings"
)

func CompareMethod(expected, actual string) []Mismatch {
	if strings.EqualFold(expected, actual) {
		return nil
	}
	return []Mismatch{{
		Type:     MethodMismatch,
		Expected: strings.ToUpper(expected),
		Actual:   strings.ToUpper(actual),
		Message:  fmt.Sprintf("Expected method %s but received %s", strings.ToUpper(expected), strings.ToUpper(actual)),
	}}
}

// ComparePath compares request paths, honouring a path rule when one is given.
func ComparePath(expected, actual string, rules *RuleList) []Mismatch {
	if rules == nil {
		if expected == actual {
			return nil
		}
		return []Mismatch{{
			Type:     PathMismatch,
			Expected: expected,
			Actual:   actual,
			Message:  fmt.Sprintf("Expected '%s' to be equal to '%s'", expected, actual),
		}}
	}

	messages, err := rules.Evaluate(expected, actual)
	if err != nil {
		return []Mismatch{internalMismatch("path", err)}
	}
	mismatches := make([]Mismatch, 0, len(messages))
	for _, msg := range messages {
		mismatches = append(mismatches, Mismatch{
			Type:     PathMismatch,
			Expected: expected,
			Actual:   actual,
			Message:  msg,
		})
	}
	return mismatches
}
