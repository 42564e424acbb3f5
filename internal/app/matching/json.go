package matching

import (
	"fmt"
	"strings"
)

// DiffConfig controls whether keys present only in the actual map are reported.
type DiffConfig int

const (
	NoUnexpectedKeys DiffConfig = iota
	AllowUnexpectedKeys
)

type jsonComparison struct {
	rules      map[string]*RuleList
	config     DiffConfig
	mismatches []Mismatch
}

// CompareJSON compares two JSON documents using the body rules, keyed by path
// expression. Locations without an applicable rule require exact equality.
func CompareJSON(expected, actual []byte, rules map[string]*RuleList, config DiffConfig) []Mismatch {
	e, err := DecodeJSON(expected)
	if err != nil {
		return []Mismatch{{
			Type:     BodyMismatch,
			Key:      "$",
			Expected: string(expected),
			Actual:   BodyString(actual),
			Message:  fmt.Sprintf("Failed to parse the expected body: '%s'", err),
		}}
	}
	a, err := DecodeJSON(actual)
	if err != nil {
		return []Mismatch{{
			Type:     BodyMismatch,
			Key:      "$",
			Expected: string(expected),
			Actual:   BodyString(actual),
			Message:  fmt.Sprintf("Failed to parse the actual body: '%s'", err),
		}}
	}
	return CompareValues(e, a, rules, config)
}

// CompareValues compares already decoded JSON values.
func CompareValues(expected, actual interface{}, rules map[string]*RuleList, config DiffConfig) []Mismatch {
	c := &jsonComparison{rules: rules, config: config}
	c.compare(RootPath(), expected, actual)
	return c.mismatches
}

func (c *jsonComparison) add(path Path, expected, actual interface{}, message string) {
	c.mismatches = append(c.mismatches, Mismatch{
		Type:     BodyMismatch,
		Key:      path.String(),
		Expected: plainString(expected),
		Actual:   plainString(actual),
		Message:  message,
	})
}

func (c *jsonComparison) compare(path Path, expected, actual interface{}) {
	rules := resolve(c.rules, path)
	if rules == nil {
		c.compareStrict(path, expected, actual)
		return
	}

	messages, err := rules.Evaluate(expected, actual)
	if err != nil {
		c.mismatches = append(c.mismatches, internalMismatch(path.String(), err))
		return
	}
	for _, msg := range messages {
		c.add(path, expected, actual, msg)
	}
	if len(messages) > 0 || !rules.cascades() {
		return
	}

	switch e := expected.(type) {
	case map[string]interface{}:
		if a, ok := actual.(map[string]interface{}); ok {
			if rules.has(MatchValues) {
				c.compareMapValues(path, e, a)
				return
			}
			c.compareMaps(path, e, a)
		}
	case []interface{}:
		if a, ok := actual.([]interface{}); ok && len(e) > 0 {
			for i, item := range a {
				template := e[0]
				if i < len(e) {
					template = e[i]
				}
				c.compare(path.Index(i), template, item)
			}
		}
	}
}

func (c *jsonComparison) compareStrict(path Path, expected, actual interface{}) {
	switch e := expected.(type) {
	case map[string]interface{}:
		a, ok := actual.(map[string]interface{})
		if !ok {
			c.add(path, expected, actual, fmt.Sprintf("Type mismatch: Expected %s %s but received %s %s",
				typeName(expected), valueString(expected), typeName(actual), valueString(actual)))
			return
		}
		c.compareMaps(path, e, a)
	case []interface{}:
		a, ok := actual.([]interface{})
		if !ok {
			c.add(path, expected, actual, fmt.Sprintf("Type mismatch: Expected %s %s but received %s %s",
				typeName(expected), valueString(expected), typeName(actual), valueString(actual)))
			return
		}
		c.compareLists(path, e, a)
	default:
		if !deepEqual(expected, actual) {
			c.add(path, expected, actual, fmt.Sprintf("Expected %s to be equal to %s", valueString(expected), valueString(actual)))
		}
	}
}

func (c *jsonComparison) compareMaps(path Path, expected, actual map[string]interface{}) {
	for _, k := range sortedKeys(expected) {
		if _, ok := actual[k]; !ok {
			c.mismatches = append(c.mismatches, Mismatch{
				Type:     BodyMismatch,
				Key:      path.Field(k).String(),
				Expected: plainString(expected[k]),
				Message:  fmt.Sprintf("Actual map is missing the key '%s'", k),
			})
		}
	}

	if c.config == NoUnexpectedKeys {
		for _, k := range sortedKeys(actual) {
			if _, ok := expected[k]; !ok {
				c.mismatches = append(c.mismatches, Mismatch{
					Type:    BodyMismatch,
					Key:     path.Field(k).String(),
					Actual:  plainString(actual[k]),
					Message: fmt.Sprintf("Expected a Map with keys [%s] but received the unexpected key '%s'",
						strings.Join(sortedKeys(expected), ", "), k),
				})
			}
		}
	}

	for _, k := range sortedKeys(expected) {
		if a, ok := actual[k]; ok {
			c.compare(path.Field(k), expected[k], a)
		}
	}
}

// compareMapValues ignores keys and compares every actual entry against the
// expected entry of the same key, or the first expected entry.
func (c *jsonComparison) compareMapValues(path Path, expected, actual map[string]interface{}) {
	keys := sortedKeys(expected)
	if len(keys) == 0 {
		return
	}
	for _, k := range sortedKeys(actual) {
		template, ok := expected[k]
		if !ok {
			template = expected[keys[0]]
		}
		c.compare(path.Field(k), template, actual[k])
	}
}

func (c *jsonComparison) compareLists(path Path, expected, actual []interface{}) {
	if len(expected) != len(actual) {
		c.add(path, expected, actual, fmt.Sprintf("Expected a List with %d elements but received %d elements",
			len(expected), len(actual)))
	}
	n := len(expected)
	if len(actual) < n {
		n = len(actual)
	}
	for i := 0; i < n; i++ {
		c.compare(path.Index(i), expected[i], actual[i])
	}
}
