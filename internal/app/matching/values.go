package matching

import (
	"bytes"
	"encoding/json"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// DecodeJSON parses a JSON document keeping numbers as json.Number so integers
// and decimals stay distinguishable.
func DecodeJSON(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, &json.SyntaxError{Offset: dec.InputOffset()}
	}
	return v, nil
}

func typeName(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return "Null"
	case string:
		return "String"
	case bool:
		return "Boolean"
	case json.Number:
		if isIntegerLiteral(string(n)) {
			return "Integer"
		}
		return "Decimal"
	case float64, float32:
		return "Decimal"
	case int, int64, int32:
		return "Integer"
	case map[string]interface{}:
		return "Map"
	case []interface{}:
		return "List"
	}
	return "Unknown"
}

func typeClass(v interface{}) string {
	switch typeName(v) {
	case "Integer", "Decimal":
		return "Number"
	}
	return typeName(v)
}

// valueString renders a value for mismatch messages: strings single quoted,
// everything else as JSON.
func valueString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return "'" + s + "'"
	case json.Number:
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "<unprintable>"
	}
	return string(b)
}

// plainString renders a value without quoting strings.
func plainString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func isIntegerLiteral(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isDecimalLiteral(s string) bool {
	if !strings.ContainsAny(s, ".eE") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isNumberLiteral(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func numbersEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	x, ok1 := new(big.Float).SetString(string(a))
	y, ok2 := new(big.Float).SetString(string(b))
	if !ok1 || !ok2 {
		return false
	}
	return x.Cmp(y) == 0
}

func deepEqual(expected, actual interface{}) bool {
	switch e := expected.(type) {
	case nil:
		return actual == nil
	case string:
		a, ok := actual.(string)
		return ok && a == e
	case bool:
		a, ok := actual.(bool)
		return ok && a == e
	case json.Number:
		a, ok := actual.(json.Number)
		return ok && numbersEqual(e, a)
	case map[string]interface{}:
		a, ok := actual.(map[string]interface{})
		if !ok || len(a) != len(e) {
			return false
		}
		for k, v := range e {
			av, present := a[k]
			if !present || !deepEqual(v, av) {
				return false
			}
		}
		return true
	case []interface{}:
		a, ok := actual.([]interface{})
		if !ok || len(a) != len(e) {
			return false
		}
		for i := range e {
			if !deepEqual(e[i], a[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sizeOf(v interface{}) (int, bool) {
	switch c := v.(type) {
	case []interface{}:
		return len(c), true
	case map[string]interface{}:
		return len(c), true
	case string:
		return len(c), true
	}
	return 0, false
}
