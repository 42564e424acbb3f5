package matching

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseRulesV3 reads the `matchingRules` of a request or response written with
// the V3 layout: {"body": {"$.a": {"matchers": [...], "combine": "AND"}}, ...}.
func ParseRulesV3(raw map[string]interface{}) (*Rules, error) {
	rules := NewRules()
	for name, value := range raw {
		category := Category(name)
		if !isCategory(category) {
			return nil, errors.Errorf("unknown matching rule category %q", name)
		}
		entries, ok := value.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("matching rules for category %q must be an object", name)
		}

		// The path category holds its rule list directly.
		if _, direct := entries["matchers"]; direct && category == CategoryPath {
			list, err := parseRuleList(entries)
			if err != nil {
				return nil, errors.Wrap(err, "path")
			}
			rules.Set(category, "", list)
			continue
		}

		for key, entry := range entries {
			obj, ok := entry.(map[string]interface{})
			if !ok {
				return nil, errors.Errorf("matching rule %s/%s must be an object", name, key)
			}
			list, err := parseRuleList(obj)
			if err != nil {
				return nil, errors.Wrapf(err, "%s/%s", name, key)
			}
			if category == CategoryBody {
				key = normaliseBodyKey(key)
			}
			rules.Set(category, key, list)
		}
	}
	return rules, nil
}

// ParseRulesV2 reads the flat V2 layout: {"$.body.a": {"match": "type"},
// "$.headers.Accept": {"regex": "..."}, "$.path": {...}, "$.query.q": {...}}.
func ParseRulesV2(raw map[string]interface{}) (*Rules, error) {
	rules := NewRules()
	for key, value := range raw {
		obj, ok := value.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("matching rule %q must be an object", key)
		}
		rule, err := ParseRule(obj)
		if err != nil {
			return nil, errors.Wrapf(err, "matching rule %q", key)
		}

		switch {
		case key == "$.path":
			rules.Add(CategoryPath, "", rule)
		case strings.HasPrefix(key, "$.body"):
			rules.Add(CategoryBody, "$"+strings.TrimPrefix(key, "$.body"), rule)
		case strings.HasPrefix(key, "$.headers"):
			rules.Add(CategoryHeader, v2Name(strings.TrimPrefix(key, "$.headers")), rule)
		case strings.HasPrefix(key, "$.header"):
			rules.Add(CategoryHeader, v2Name(strings.TrimPrefix(key, "$.header")), rule)
		case strings.HasPrefix(key, "$.query"):
			rules.Add(CategoryQuery, v2Name(strings.TrimPrefix(key, "$.query")), rule)
		default:
			return nil, errors.Errorf("unsupported matching rule path %q", key)
		}
	}
	return rules, nil
}

// v2Name extracts the name from `.name` or `['name']`.
func v2Name(suffix string) string {
	if strings.HasPrefix(suffix, "['") && strings.HasSuffix(suffix, "']") {
		return suffix[2 : len(suffix)-2]
	}
	return strings.TrimPrefix(suffix, ".")
}

// normaliseBodyKey accepts keys written without the root, as some V3 writers do.
func normaliseBodyKey(key string) string {
	switch {
	case key == "$", strings.HasPrefix(key, "$.") || strings.HasPrefix(key, "$["):
		return key
	case strings.HasPrefix(key, "["):
		return "$" + key
	}
	return "$." + key
}

func isCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func parseRuleList(obj map[string]interface{}) (*RuleList, error) {
	list := NewRuleList()
	if combine, ok := obj["combine"].(string); ok {
		switch Combine(strings.ToUpper(combine)) {
		case CombineAnd:
		case CombineOr:
			list.Combine = CombineOr
		default:
			return nil, errors.Errorf("unknown rule combination %q", combine)
		}
	}

	matchers, ok := obj["matchers"].([]interface{})
	if !ok {
		// Some writers put a single V2 style rule under a V3 key.
		rule, err := ParseRule(obj)
		if err != nil {
			return nil, err
		}
		list.Rules = append(list.Rules, rule)
		return list, nil
	}
	for _, m := range matchers {
		mobj, ok := m.(map[string]interface{})
		if !ok {
			return nil, errors.New("matcher must be an object")
		}
		rule, err := ParseRule(mobj)
		if err != nil {
			return nil, err
		}
		list.Rules = append(list.Rules, rule)
	}
	return list, nil
}

// ParseRule reads one matcher object: {"match": "regex", "regex": "..."}. A
// missing match type is inferred from regex or min/max as in V2 files.
func ParseRule(obj map[string]interface{}) (Rule, error) {
	var rule Rule
	match, _ := obj["match"].(string)

	if regex, ok := obj["regex"].(string); ok {
		rule.Regex = regex
		if match == "" {
			match = string(MatchRegex)
		}
	}
	if v, ok := obj["min"]; ok {
		n, err := toInt(v)
		if err != nil {
			return rule, errors.Wrap(err, "min")
		}
		rule.Min = &n
	}
	if v, ok := obj["max"]; ok {
		n, err := toInt(v)
		if err != nil {
			return rule, errors.Wrap(err, "max")
		}
		rule.Max = &n
	}
	if match == "" && (rule.Min != nil || rule.Max != nil) {
		match = string(MatchType)
	}
	if match == "" {
		return rule, errors.New("matcher has no match type")
	}
	if !IsKnownRuleType(match) {
		return rule, errors.Errorf("unknown matcher type %q", match)
	}
	rule.Match = RuleType(match)

	switch rule.Match {
	case MatchRegex:
		if rule.Regex == "" {
			return rule, errors.New("regex matcher has no regex")
		}
	case MatchMin:
		if rule.Min == nil {
			return rule, errors.New("min matcher has no min")
		}
	case MatchMax:
		if rule.Max == nil {
			return rule, errors.New("max matcher has no max")
		}
	case MatchInclude, MatchContentType:
		rule.Value = obj["value"]
	}
	return rule, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case json.Number:
		return strconv.Atoi(n.String())
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, errors.Errorf("expected a number but got %T", v)
}

func ruleToMap(r Rule, v2 bool) map[string]interface{} {
	m := map[string]interface{}{"match": string(r.Match)}
	if v2 && (r.Match == MatchMin || r.Match == MatchMax) {
		m["match"] = string(MatchType)
	}
	if r.Regex != "" {
		m["regex"] = r.Regex
	}
	if r.Min != nil {
		m["min"] = *r.Min
	}
	if r.Max != nil {
		m["max"] = *r.Max
	}
	if r.Value != nil {
		m["value"] = r.Value
	}
	return m
}

func ruleListToMap(l *RuleList) map[string]interface{} {
	matchers := make([]interface{}, 0, len(l.Rules))
	for _, r := range l.Rules {
		matchers = append(matchers, ruleToMap(r, false))
	}
	m := map[string]interface{}{"matchers": matchers}
	if l.Combine == CombineOr {
		m["combine"] = string(CombineOr)
	}
	return m
}

// MarshalV3 renders the rules in the grouped V3 layout. Empty categories are
// omitted and nil is returned when there are no rules at all.
func (r *Rules) MarshalV3() map[string]interface{} {
	if r.IsEmpty() {
		return nil
	}
	out := map[string]interface{}{}
	for _, category := range Categories {
		cat := r.Category(category)
		if len(cat) == 0 {
			continue
		}
		if category == CategoryPath {
			if list, ok := cat[""]; ok {
				out[string(category)] = ruleListToMap(list)
			}
			continue
		}
		entries := map[string]interface{}{}
		for key, list := range cat {
			entries[key] = ruleListToMap(list)
		}
		out[string(category)] = entries
	}
	return out
}

// MarshalV2 renders the rules in the flat V2 layout. V2 has a single rule per
// path, so only the first rule of each list is written.
func (r *Rules) MarshalV2() map[string]interface{} {
	if r.IsEmpty() {
		return nil
	}
	out := map[string]interface{}{}
	for _, category := range Categories {
		for key, list := range r.Category(category) {
			if len(list.Rules) == 0 {
				continue
			}
			out[v2Key(category, key)] = ruleToMap(list.Rules[0], true)
		}
	}
	return out
}

func v2Key(category Category, key string) string {
	switch category {
	case CategoryPath:
		return "$.path"
	case CategoryBody:
		return "$.body" + strings.TrimPrefix(key, "$")
	case CategoryHeader:
		return FieldExpr("$.headers", key)
	case CategoryQuery:
		return FieldExpr("$.query", key)
	}
	return fmt.Sprintf("$.%s.%s", category, key)
}
