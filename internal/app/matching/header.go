package matching

import (
	"fmt"
	"mime"
	"sort"
	"strings"
)

// Headers whose values may legitimately contain commas.
var unsplittableHeaders = map[string]bool{
	"content-type":  true,
	"date":          true,
	"expires":       true,
	"last-modified": true,
	"set-cookie":    true,
	"cookie":        true,
}

// CompareHeaders checks every expected header against the actual headers. Names
// are case-insensitive and headers that were not expected are ignored.
func CompareHeaders(expected, actual map[string][]string, rules map[string]*RuleList) []Mismatch {
	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return strings.ToLower(names[i]) < strings.ToLower(names[j]) })

	var mismatches []Mismatch
	for _, name := range names {
		want := expected[name]
		got, ok := lookupHeader(actual, name)
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Type:     HeaderMismatch,
				Key:      name,
				Expected: strings.Join(want, ", "),
				Message:  fmt.Sprintf("Expected a header '%s' but was missing", name),
			})
			continue
		}
		mismatches = append(mismatches, compareHeader(name, want, got, headerRules(rules, name))...)
	}
	return mismatches
}

func headerRules(rules map[string]*RuleList, name string) *RuleList {
	for k, v := range rules {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

func lookupHeader(headers map[string][]string, name string) ([]string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// LookupHeader returns the first value of a header, ignoring the case of the name.
func LookupHeader(headers map[string][]string, name string) string {
	values, ok := lookupHeader(headers, name)
	if !ok || len(values) == 0 {
		return ""
	}
	return values[0]
}

func compareHeader(name string, want, got []string, rules *RuleList) []Mismatch {
	expected := strings.Join(want, ", ")
	actual := strings.Join(got, ", ")
	mismatch := func(msg string) Mismatch {
		return Mismatch{
			Type:     HeaderMismatch,
			Key:      name,
			Expected: expected,
			Actual:   actual,
			Message:  fmt.Sprintf("Mismatch with header '%s': %s", name, msg),
		}
	}

	if rules != nil {
		var mismatches []Mismatch
		for i, value := range got {
			template := expected
			if i < len(want) {
				template = want[i]
			}
			messages, err := rules.Evaluate(template, value)
			if err != nil {
				mismatches = append(mismatches, internalMismatch(name, err))
				continue
			}
			for _, msg := range messages {
				mismatches = append(mismatches, mismatch(msg))
			}
		}
		return mismatches
	}

	if strings.EqualFold(name, "content-type") {
		if !contentTypeMatches(expected, actual) {
			return []Mismatch{mismatch(fmt.Sprintf("Expected header '%s' to have value '%s' but was '%s'",
				name, expected, actual))}
		}
		return nil
	}

	if !equalHeaderValues(name, want, got) {
		return []Mismatch{mismatch(fmt.Sprintf("Expected '%s' to be equal to '%s'", expected, actual))}
	}
	return nil
}

// contentTypeMatches requires the same media type and every expected parameter
// to be present in the actual value.
func contentTypeMatches(expected, actual string) bool {
	eType, eParams, err := mime.ParseMediaType(expected)
	if err != nil {
		return strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(actual))
	}
	aType, aParams, err := mime.ParseMediaType(actual)
	if err != nil || eType != aType {
		return false
	}
	for k, v := range eParams {
		if !strings.EqualFold(aParams[k], v) {
			return false
		}
	}
	return true
}

func equalHeaderValues(name string, want, got []string) bool {
	w := SplitHeaderValues(name, want)
	g := SplitHeaderValues(name, got)
	if len(w) != len(g) {
		return false
	}
	for i := range w {
		if w[i] != g[i] {
			return false
		}
	}
	return true
}

// SplitHeaderValues splits comma separated values, except for headers whose
// values may contain commas.
func SplitHeaderValues(name string, values []string) []string {
	if unsplittableHeaders[strings.ToLower(name)] {
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = strings.TrimSpace(v)
		}
		return out
	}
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}
