package matching

import (
	"fmt"
	"sort"
	"strings"
)

// multiValue describes how a multi-valued mapping (query string, form body)
// reports its mismatches.
type multiValue struct {
	noun    string
	kind    MismatchType
	keyFunc func(name string) string
	rules   func(name string) *RuleList
}

var queryParameters = multiValue{
	noun:    "query parameter",
	kind:    QueryMismatch,
	keyFunc: func(name string) string { return name },
}

var formParameters = multiValue{
	noun:    "form post parameter",
	kind:    BodyMismatch,
	keyFunc: func(name string) string { return FieldExpr("$", name) },
}

// CompareQuery compares query parameters. Values of one parameter are compared
// positionally; rules are looked up by parameter name.
func CompareQuery(expected, actual map[string][]string, rules map[string]*RuleList) []Mismatch {
	mv := queryParameters
	mv.rules = func(name string) *RuleList { return rules[name] }
	return mv.compare(expected, actual)
}

// CompareForm compares url-encoded form bodies. Rules are looked up by body path
// ($.field).
func CompareForm(expected, actual map[string][]string, rules map[string]*RuleList) []Mismatch {
	mv := formParameters
	mv.rules = func(name string) *RuleList { return resolve(rules, RootPath().Field(name)) }
	return mv.compare(expected, actual)
}

func (mv multiValue) mismatch(name, expected, actual, message string) Mismatch {
	return Mismatch{
		Type:     mv.kind,
		Key:      mv.keyFunc(name),
		Expected: expected,
		Actual:   actual,
		Message:  message,
	}
}

func (mv multiValue) compare(expected, actual map[string][]string) []Mismatch {
	var mismatches []Mismatch
	for _, name := range sortedNames(expected) {
		want := expected[name]
		got, ok := actual[name]
		if !ok {
			mismatches = append(mismatches, mv.mismatch(name, strings.Join(want, ","), "",
				fmt.Sprintf("Expected %s '%s' but was missing", mv.noun, name)))
			continue
		}
		if rules := mv.rules(name); rules != nil {
			mismatches = append(mismatches, mv.compareWithRules(name, want, got, rules)...)
			continue
		}
		if m, ok := mv.compareValues(name, want, got); !ok {
			mismatches = append(mismatches, m)
		}
	}

	for _, name := range sortedNames(actual) {
		if _, ok := expected[name]; !ok {
			mismatches = append(mismatches, mv.mismatch(name, "", strings.Join(actual[name], ","),
				fmt.Sprintf("Unexpected %s '%s' received", mv.noun, name)))
		}
	}
	return mismatches
}

// compareValues compares the values of one parameter positionally and reports
// at most one mismatch for it.
func (mv multiValue) compareValues(name string, want, got []string) (Mismatch, bool) {
	if len(want) != len(got) {
		return mv.mismatch(name, strings.Join(want, ","), strings.Join(got, ","),
			fmt.Sprintf("Expected %s '%s' with %d value(s) but received %d value(s)", mv.noun, name, len(want), len(got))), false
	}

	var differing []int
	for i := range want {
		if want[i] != got[i] {
			differing = append(differing, i)
		}
	}
	switch len(differing) {
	case 0:
		return Mismatch{}, true
	case 1:
		i := differing[0]
		return mv.mismatch(name, want[i], got[i], fmt.Sprintf("Expected '%s' to be equal to '%s'", want[i], got[i])), false
	}
	return mv.mismatch(name, strings.Join(want, ","), strings.Join(got, ","),
		fmt.Sprintf("Expected %s '%s' to have values [%s] but received [%s]",
			mv.noun, name, strings.Join(want, ", "), strings.Join(got, ", "))), false
}

func (mv multiValue) compareWithRules(name string, want, got []string, rules *RuleList) []Mismatch {
	var mismatches []Mismatch
	for _, r := range rules.Rules {
		if msg := r.checkSize(toList(got)); msg != "" {
			mismatches = append(mismatches, mv.mismatch(name, strings.Join(want, ","), strings.Join(got, ","), msg))
		}
	}
	for i, value := range got {
		var template interface{}
		switch {
		case i < len(want):
			template = want[i]
		case len(want) > 0:
			template = want[0]
		default:
			template = ""
		}
		messages, err := rules.Evaluate(template, value)
		if err != nil {
			mismatches = append(mismatches, internalMismatch(mv.keyFunc(name), err))
			continue
		}
		for _, msg := range messages {
			mismatches = append(mismatches, mv.mismatch(name, plainString(template), value, msg))
		}
	}
	return mismatches
}

func toList(values []string) []interface{} {
	list := make([]interface{}, len(values))
	for i, v := range values {
		list[i] = v
	}
	return list
}

func sortedNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
