package matching

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"
)

const regexMatchTimeout = time.Second

var compiledRegexes sync.Map

// CompileRegex compiles a pattern for full-string matching. Patterns come from
// consumers written in other languages, so Perl-style constructs such as
// lookahead are accepted.
func CompileRegex(pattern string) (*regexp2.Regexp, error) {
	if re, ok := compiledRegexes.Load(pattern); ok {
		return re.(*regexp2.Regexp), nil
	}
	re, err := regexp2.Compile(`^(?:`+pattern+`)$`, regexp2.None)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid regex %q", pattern)
	}
	re.MatchTimeout = regexMatchTimeout
	compiledRegexes.Store(pattern, re)
	return re, nil
}

func regexMatches(pattern, value string) (bool, error) {
	re, err := CompileRegex(pattern)
	if err != nil {
		return false, err
	}
	ok, err := re.MatchString(value)
	if err != nil {
		return false, errors.Wrapf(err, "evaluating regex %q", pattern)
	}
	return ok, nil
}

// Evaluate applies every rule of the list to the actual value. It returns the
// mismatch messages; an empty result is a match. Errors are evaluation failures,
// not mismatches.
func (l *RuleList) Evaluate(expected, actual interface{}) ([]string, error) {
	var messages []string
	for _, rule := range l.Rules {
		msg, err := rule.Evaluate(expected, actual)
		if err != nil {
			return nil, err
		}
		if msg == "" {
			if l.Combine == CombineOr {
				return nil, nil
			}
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Evaluate checks a single rule, returning a mismatch message or "".
func (r Rule) Evaluate(expected, actual interface{}) (string, error) {
	switch r.Match {
	case MatchEquality:
		if !deepEqual(expected, actual) {
			return fmt.Sprintf("Expected %s to be equal to %s", valueString(expected), valueString(actual)), nil
		}
	case MatchRegex:
		if _, isMap := actual.(map[string]interface{}); isMap || actual == nil {
			return fmt.Sprintf("Expected %s to match '%s'", valueString(actual), r.Regex), nil
		}
		if _, isList := actual.([]interface{}); isList {
			return fmt.Sprintf("Expected %s to match '%s'", valueString(actual), r.Regex), nil
		}
		ok, err := regexMatches(r.Regex, plainString(actual))
		if err != nil {
			return "", err
		}
		if !ok {
			return fmt.Sprintf("Expected '%s' to match '%s'", plainString(actual), r.Regex), nil
		}
	case MatchType, MatchMin, MatchMax:
		if typeClass(expected) != typeClass(actual) {
			return fmt.Sprintf("Expected %s (%s) to be the same type as %s (%s)",
				valueString(actual), typeName(actual), valueString(expected), typeName(expected)), nil
		}
		return r.checkSize(actual), nil
	case MatchInteger:
		if !isInteger(actual) {
			return fmt.Sprintf("Expected %s to be an integer", valueString(actual)), nil
		}
	case MatchDecimal:
		if !isDecimal(actual) {
			return fmt.Sprintf("Expected %s to be a decimal number", valueString(actual)), nil
		}
	case MatchNumber:
		if !isNumber(actual) {
			return fmt.Sprintf("Expected %s to be a number", valueString(actual)), nil
		}
	case MatchBoolean:
		if !isBoolean(actual) {
			return fmt.Sprintf("Expected %s to be a boolean", valueString(actual)), nil
		}
	case MatchNull:
		if actual != nil {
			return fmt.Sprintf("Expected %s to be null", valueString(actual)), nil
		}
	case MatchInclude:
		return r.checkInclude(expected, actual), nil
	case MatchValues:
		if _, ok := actual.(map[string]interface{}); !ok {
			if typeClass(expected) != typeClass(actual) {
				return fmt.Sprintf("Expected %s (%s) to be the same type as %s (%s)",
					valueString(actual), typeName(actual), valueString(expected), typeName(expected)), nil
			}
		}
	case MatchNotEmpty:
		if typeClass(expected) != typeClass(actual) {
			return fmt.Sprintf("Expected %s (%s) to be the same type as %s (%s)",
				valueString(actual), typeName(actual), valueString(expected), typeName(expected)), nil
		}
		if n, ok := sizeOf(actual); ok && n == 0 || actual == nil {
			return fmt.Sprintf("Expected %s to not be empty", valueString(actual)), nil
		}
	case MatchContentType:
		expectedType := plainString(r.Value)
		detected := DetectContentType([]byte(plainString(actual)))
		if !SameMediaType(expectedType, detected) {
			return fmt.Sprintf("Expected content with type '%s' but was '%s'", expectedType, detected), nil
		}
	default:
		return "", errors.Errorf("unsupported matching rule %q", r.Match)
	}
	return "", nil
}

func (r Rule) checkSize(actual interface{}) string {
	if r.Min == nil && r.Max == nil {
		return ""
	}
	list, ok := actual.([]interface{})
	if !ok {
		return ""
	}
	if r.Min != nil && len(list) < *r.Min {
		return fmt.Sprintf("Expected %s (size %d) to have minimum size of %d", valueString(actual), len(list), *r.Min)
	}
	if r.Max != nil && len(list) > *r.Max {
		return fmt.Sprintf("Expected %s (size %d) to have maximum size of %d", valueString(actual), len(list), *r.Max)
	}
	return ""
}

func (r Rule) checkInclude(expected, actual interface{}) string {
	want := r.Value
	if want == nil {
		want = expected
	}
	switch a := actual.(type) {
	case string:
		if !strings.Contains(a, plainString(want)) {
			return fmt.Sprintf("Expected '%s' to include '%s'", a, plainString(want))
		}
		return ""
	case []interface{}:
		wantList, ok := want.([]interface{})
		if !ok {
			wantList = []interface{}{want}
		}
		for _, w := range wantList {
			found := false
			for _, item := range a {
				if deepEqual(w, item) {
					found = true
					break
				}
			}
			if !found {
				return fmt.Sprintf("Expected %s to include %s", valueString(actual), valueString(w))
			}
		}
		return ""
	case map[string]interface{}:
		wantMap, ok := want.(map[string]interface{})
		if !ok {
			return fmt.Sprintf("Expected %s to include %s", valueString(actual), valueString(want))
		}
		for _, k := range sortedKeys(wantMap) {
			if v, present := a[k]; !present || !deepEqual(wantMap[k], v) {
				return fmt.Sprintf("Expected %s to include %s", valueString(actual), valueString(want))
			}
		}
		return ""
	}
	if !strings.Contains(plainString(actual), plainString(want)) {
		return fmt.Sprintf("Expected %s to include '%s'", valueString(actual), plainString(want))
	}
	return ""
}

func isInteger(v interface{}) bool {
	switch n := v.(type) {
	case json.Number:
		return isIntegerLiteral(string(n))
	case string:
		return isIntegerLiteral(n)
	}
	return false
}

func isDecimal(v interface{}) bool {
	switch n := v.(type) {
	case json.Number:
		return isDecimalLiteral(string(n))
	case string:
		return isDecimalLiteral(n)
	}
	return false
}

func isNumber(v interface{}) bool {
	switch n := v.(type) {
	case json.Number:
		return true
	case string:
		return isNumberLiteral(n)
	}
	return false
}

func isBoolean(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return true
	case string:
		return b == "true" || b == "false"
	}
	return false
}
