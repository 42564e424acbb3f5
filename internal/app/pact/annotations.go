package pact

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/form3tech-oss/pact-mock/internal/app/matching"
	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
)

const (
	matcherTypeKey   = "pact:matcher:type"
	generatorTypeKey = "pact:generator:type"
	jsonClassKey     = "json_class"
)

// compileJSONBody strips matcher annotations from a JSON body in a single pass,
// registering the rules they describe under their body paths. The returned
// document holds the example values only.
func compileJSONBody(data []byte, rules *matching.Rules) ([]byte, error) {
	v, err := matching.DecodeJSON(data)
	if err != nil {
		return nil, pacterror.MalformedBody(err, "body is not valid JSON")
	}
	stripped, err := compileValue(v, "$", rules)
	if err != nil {
		return nil, err
	}
	out, err := encodeBody(stripped)
	if err != nil {
		return nil, pacterror.MalformedBody(err, "re-encoding body")
	}
	return out, nil
}

// encodeBody writes a JSON body with <, > and & left as they are.
func encodeBody(v interface{}) ([]byte, error) {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(out.Bytes(), []byte("\n")), nil
}

func compileValue(v interface{}, path string, rules *matching.Rules) (interface{}, error) {
	switch value := v.(type) {
	case map[string]interface{}:
		if _, ok := value[matcherTypeKey]; ok {
			return compileAnnotation(value, path, rules)
		}
		if class, ok := value[jsonClassKey].(string); ok {
			return compileRubyMatcher(class, value, path, rules)
		}
		out := make(map[string]interface{}, len(value))
		for k, child := range value {
			if k == generatorTypeKey {
				continue
			}
			compiled, err := compileValue(child, matching.FieldExpr(path, k), rules)
			if err != nil {
				return nil, err
			}
			out[k] = compiled
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, child := range value {
			compiled, err := compileValue(child, matching.IndexExpr(path, i), rules)
			if err != nil {
				return nil, err
			}
			out[i] = compiled
		}
		return out, nil
	}
	return v, nil
}

func compileAnnotation(annotation map[string]interface{}, path string, rules *matching.Rules) (interface{}, error) {
	matcherType, ok := annotation[matcherTypeKey].(string)
	if !ok {
		return nil, pacterror.MalformedBody(nil, "matcher type at %s must be a string", path)
	}
	obj := map[string]interface{}{"match": matcherType}
	for _, key := range []string{"regex", "min", "max"} {
		if v, ok := annotation[key]; ok {
			obj[key] = v
		}
	}
	if matcherType == string(matching.MatchInclude) || matcherType == string(matching.MatchContentType) {
		obj["value"] = annotation["value"]
	}

	rule, err := matching.ParseRule(obj)
	if err != nil {
		return nil, pacterror.MalformedBody(err, "invalid matcher at %s", path)
	}
	rules.Add(matching.CategoryBody, path, rule)

	example := annotation["value"]
	if list, isList := example.([]interface{}); isList && isTypeLike(rule) {
		out := make([]interface{}, len(list))
		for i, item := range list {
			compiled, err := compileValue(item, matching.WildcardExpr(path), rules)
			if err != nil {
				return nil, err
			}
			out[i] = compiled
		}
		return out, nil
	}
	return compileValue(example, path, rules)
}

func isTypeLike(rule matching.Rule) bool {
	switch rule.Match {
	case matching.MatchType, matching.MatchMin, matching.MatchMax:
		return true
	}
	return false
}

// compileRubyMatcher handles the json_class matchers produced by the Ruby based
// pact DSLs: Pact::SomethingLike, Pact::ArrayLike and Pact::Term.
func compileRubyMatcher(class string, m map[string]interface{}, path string, rules *matching.Rules) (interface{}, error) {
	switch class {
	case "Pact::SomethingLike":
		rules.Add(matching.CategoryBody, path, matching.Rule{Match: matching.MatchType})
		return compileValue(m["contents"], path, rules)

	case "Pact::ArrayLike":
		obj := map[string]interface{}{"match": string(matching.MatchType), "min": json.Number("1")}
		if n, ok := m["min"]; ok {
			obj["min"] = n
		}
		rule, err := matching.ParseRule(obj)
		if err != nil {
			return nil, pacterror.MalformedBody(err, "invalid Pact::ArrayLike at %s", path)
		}
		rules.Add(matching.CategoryBody, path, rule)
		item, err := compileValue(m["contents"], matching.WildcardExpr(path), rules)
		if err != nil {
			return nil, err
		}
		count := *rule.Min
		if count < 1 {
			count = 1
		}
		out := make([]interface{}, count)
		for i := range out {
			out[i] = item
		}
		return out, nil

	case "Pact::Term":
		data, _ := m["data"].(map[string]interface{})
		matcher, _ := data["matcher"].(map[string]interface{})
		regex, ok := matcher["s"].(string)
		if !ok {
			return nil, pacterror.MalformedBody(nil, "Pact::Term at %s has no regex", path)
		}
		rules.Add(matching.CategoryBody, path, matching.Rule{Match: matching.MatchRegex, Regex: regex})
		return data["generate"], nil
	}
	return nil, pacterror.MalformedBody(nil, "unsupported json_class %q at %s", class, path)
}

// compileString reads a header, query or path value that may itself be a
// matcher annotation. Plain values are returned unchanged with no rules.
func compileString(s string) (string, *matching.RuleList, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return s, nil, nil
	}
	v, err := matching.DecodeJSON([]byte(trimmed))
	if err != nil {
		return s, nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return s, nil, nil
	}
	_, annotated := m[matcherTypeKey]
	_, ruby := m[jsonClassKey]
	if !annotated && !ruby {
		return s, nil, nil
	}

	rules := matching.NewRules()
	example, err := compileValue(m, "$", rules)
	if err != nil {
		return "", nil, err
	}
	return exampleString(example), rules.Get(matching.CategoryBody, "$"), nil
}

func exampleString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
