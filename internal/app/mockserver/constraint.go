package mockserver

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/PaesslerAG/jsonpath"
	log "github.com/sirupsen/logrus"

	"github.com/form3tech-oss/pact-mock/internal/app/matching"
	"github.com/form3tech-oss/pact-mock/internal/app/pact"
)

const fmtLen = "_length_"

func checkConstraints(constraints []pact.Constraint, request requestDocument) []matching.Mismatch {
	var mismatches []matching.Mismatch
	for _, c := range constraints {
		if m := checkConstraint(c, request); m != nil {
			mismatches = append(mismatches, *m)
		}
	}
	return mismatches
}

func checkConstraint(c pact.Constraint, request requestDocument) *matching.Mismatch {
	val, err := jsonpath.Get(request.encodeValues(c.Path), map[string]interface{}(request))
	if err != nil {
		log.WithField("path", c.Path).Debug(err)
	}

	if c.Format == fmtLen {
		return checkLength(c, val, err)
	}

	if _, ok := val.([]interface{}); ok {
		log.Infof("skipping matching on list value for path '%s'", c.Path)
		return nil
	}

	actual := ""
	if err == nil {
		actual = fmt.Sprintf("%v", val)
	}
	expected := fmt.Sprintf(c.Format, c.Values...)
	if actual == expected {
		return nil
	}
	return &matching.Mismatch{
		Type:     matching.ConstraintMismatch,
		Key:      c.Path,
		Expected: expected,
		Actual:   actual,
		Message:  fmt.Sprintf("value '%s' at path '%s' does not match constraint '%s'", actual, c.Path, expected),
	}
}

func checkLength(c pact.Constraint, val interface{}, lookupErr error) *matching.Mismatch {
	violation := func(actual, message string, a ...interface{}) *matching.Mismatch {
		return &matching.Mismatch{
			Type:    matching.ConstraintMismatch,
			Key:     c.Path,
			Actual:  actual,
			Message: fmt.Sprintf(message, a...),
		}
	}

	if len(c.Values) != 1 {
		return violation("", "expected single positive integer value for path %q length constraint, but there are %v expected values",
			c.Path, len(c.Values))
	}
	expected, ok := lengthValue(c.Values[0])
	if !ok {
		return violation("", "expected value for %q length constraint must be a positive integer", c.Path)
	}

	list, ok := val.([]interface{})
	if lookupErr != nil || !ok {
		return violation("", "value at path %q must be an array due to length constraint", c.Path)
	}
	if expected != len(list) {
		m := violation(fmt.Sprint(len(list)), "value of length %v at path %q does not match length constraint %v",
			len(list), c.Path, expected)
		m.Expected = fmt.Sprint(expected)
		return m
	}
	return nil
}

func lengthValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n >= 0
	case float64:
		return int(n), n >= 0 && n == math.Trunc(n)
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil && i >= 0
	}
	return 0, false
}
