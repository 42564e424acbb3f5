package matching

import (
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

type RuleType string

const (
	MatchEquality    RuleType = "equality"
	MatchRegex       RuleType = "regex"
	MatchType        RuleType = "type"
	MatchMin         RuleType = "min"
	MatchMax         RuleType = "max"
	MatchInclude     RuleType = "include"
	MatchInteger     RuleType = "integer"
	MatchDecimal     RuleType = "decimal"
	MatchNumber      RuleType = "number"
	MatchBoolean     RuleType = "boolean"
	MatchNull        RuleType = "null"
	MatchContentType RuleType = "contentType"
	MatchValues      RuleType = "values"
	MatchNotEmpty    RuleType = "notEmpty"
)

var knownRuleTypes = map[RuleType]bool{
	MatchEquality: true, MatchRegex: true, MatchType: true, MatchMin: true, MatchMax: true,
	MatchInclude: true, MatchInteger: true, MatchDecimal: true, MatchNumber: true, MatchBoolean: true,
	MatchNull: true, MatchContentType: true, MatchValues: true, MatchNotEmpty: true,
}

func IsKnownRuleType(t string) bool {
	return knownRuleTypes[RuleType(t)]
}

// Rule is a single matcher. Regex is used by regex rules, Min/Max by type, min and
// max rules, Value by include and contentType rules.
type Rule struct {
	Match RuleType
	Regex string
	Min   *int
	Max   *int
	Value interface{}
}

// cascades reports whether children of a container keep being compared
// structurally under this rule instead of the rule consuming the whole value.
func (r Rule) cascades() bool {
	switch r.Match {
	case MatchType, MatchMin, MatchMax, MatchValues, MatchNotEmpty:
		return true
	}
	return false
}

type Combine string

const (
	CombineAnd Combine = "AND"
	CombineOr  Combine = "OR"
)

type RuleList struct {
	Rules   []Rule
	Combine Combine
}

func NewRuleList(rules ...Rule) *RuleList {
	return &RuleList{Rules: rules, Combine: CombineAnd}
}

func (l *RuleList) cascades() bool {
	for _, r := range l.Rules {
		if r.cascades() {
			return true
		}
	}
	return false
}

func (l *RuleList) has(t RuleType) bool {
	for _, r := range l.Rules {
		if r.Match == t {
			return true
		}
	}
	return false
}

func (l *RuleList) clone() *RuleList {
	return &RuleList{Rules: append([]Rule(nil), l.Rules...), Combine: l.Combine}
}

type Category string

const (
	CategoryPath   Category = "path"
	CategoryQuery  Category = "query"
	CategoryHeader Category = "header"
	CategoryBody   Category = "body"
)

var Categories = []Category{CategoryPath, CategoryQuery, CategoryHeader, CategoryBody}

// Rules holds the matching rules of one side of an interaction. Body rules are
// keyed by path expression ($.a.b), header and query rules by name, and the path
// category uses the empty key.
type Rules struct {
	categories map[Category]map[string]*RuleList
}

func NewRules() *Rules {
	return &Rules{categories: map[Category]map[string]*RuleList{}}
}

func (r *Rules) Add(category Category, key string, rule Rule) {
	if r.categories == nil {
		r.categories = map[Category]map[string]*RuleList{}
	}
	cat, ok := r.categories[category]
	if !ok {
		cat = map[string]*RuleList{}
		r.categories[category] = cat
	}
	if category == CategoryHeader {
		key = r.headerKey(key)
	}
	list, ok := cat[key]
	if !ok {
		list = NewRuleList()
		cat[key] = list
	}
	list.Rules = append(list.Rules, rule)
}

// Set replaces the rule list at key.
func (r *Rules) Set(category Category, key string, list *RuleList) {
	if r.categories == nil {
		r.categories = map[Category]map[string]*RuleList{}
	}
	cat, ok := r.categories[category]
	if !ok {
		cat = map[string]*RuleList{}
		r.categories[category] = cat
	}
	if category == CategoryHeader {
		key = r.headerKey(key)
	}
	cat[key] = list
}

// headerKey reuses an existing key that differs only by case.
func (r *Rules) headerKey(name string) string {
	for k := range r.categories[CategoryHeader] {
		if strings.EqualFold(k, name) {
			return k
		}
	}
	return name
}

func (r *Rules) Get(category Category, key string) *RuleList {
	if r == nil {
		return nil
	}
	cat := r.categories[category]
	if category == CategoryHeader {
		for k, v := range cat {
			if strings.EqualFold(k, key) {
				return v
			}
		}
		return nil
	}
	return cat[key]
}

func (r *Rules) Category(category Category) map[string]*RuleList {
	if r == nil {
		return nil
	}
	return r.categories[category]
}

// Remove deletes the rules of one key. Header keys are case-insensitive.
func (r *Rules) Remove(category Category, key string) {
	if r == nil {
		return
	}
	if category == CategoryHeader {
		key = r.headerKey(key)
	}
	delete(r.categories[category], key)
}

func (r *Rules) ClearCategory(category Category) {
	if r == nil {
		return
	}
	delete(r.categories, category)
}

func (r *Rules) IsEmpty() bool {
	if r == nil {
		return true
	}
	for _, cat := range r.categories {
		if len(cat) > 0 {
			return false
		}
	}
	return true
}

// Keys returns the sorted keys of a category.
func (r *Rules) Keys(category Category) []string {
	cat := r.Category(category)
	keys := make([]string, 0, len(cat))
	for k := range cat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Rules) Clone() *Rules {
	out := NewRules()
	if r == nil {
		return out
	}
	for name, cat := range r.categories {
		copied := make(map[string]*RuleList, len(cat))
		for k, v := range cat {
			copied[k] = v.clone()
		}
		out.categories[name] = copied
	}
	return out
}

// resolve selects the best body rule list for a location, or nil when no rule
// path applies and exact equality is required.
func resolve(rules map[string]*RuleList, path Path) *RuleList {
	var (
		best       *RuleList
		bestWeight int
		bestLen    int
		bestKey    string
	)
	for key, list := range rules {
		expr, parsed := lookupRuleExpr(key)
		if expr.err != nil {
			if parsed {
				log.WithField("path", key).Warn(expr.err)
			}
			continue
		}
		tokens := expr.tokens
		w := path.weight(tokens)
		if w == 0 {
			continue
		}
		if w > bestWeight ||
			(w == bestWeight && len(tokens) > bestLen) ||
			(w == bestWeight && len(tokens) == bestLen && key < bestKey) {
			best, bestWeight, bestLen, bestKey = list, w, len(tokens), key
		}
	}
	return best
}
