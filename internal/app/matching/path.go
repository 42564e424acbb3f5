package matching

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ohler55/ojg/jp"
	"github.com/pkg/errors"
)

// Path is a concrete location inside an actual value, starting at the root ($).
type Path []Segment

type Segment struct {
	Field   string
	Index   int
	IsIndex bool
}

var plainFieldName = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func RootPath() Path {
	return Path{}
}

func (p Path) Field(name string) Path {
	next := make(Path, len(p), len(p)+1)
	copy(next, p)
	return append(next, Segment{Field: name})
}

func (p Path) Index(i int) Path {
	next := make(Path, len(p), len(p)+1)
	copy(next, p)
	return append(next, Segment{Index: i, IsIndex: true})
}

func (p Path) String() string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, s := range p {
		if s.IsIndex {
			sb.WriteString("[" + strconv.Itoa(s.Index) + "]")
			continue
		}
		sb.WriteString(fieldSuffix(s.Field))
	}
	return sb.String()
}

func fieldSuffix(name string) string {
	if plainFieldName.MatchString(name) {
		return "." + name
	}
	return "['" + strings.ReplaceAll(name, "'", "\\'") + "']"
}

// FieldExpr, IndexExpr and WildcardExpr build rule path expressions.
func FieldExpr(base, name string) string {
	return base + fieldSuffix(name)
}

func IndexExpr(base string, i int) string {
	return base + "[" + strconv.Itoa(i) + "]"
}

func WildcardExpr(base string) string {
	return base + "[*]"
}

type tokenKind int

const (
	tokenRoot tokenKind = iota
	tokenField
	tokenIndex
	tokenWildcard
)

type pathToken struct {
	kind  tokenKind
	name  string
	index int
}

type ruleExpr struct {
	tokens []pathToken
	err    error
}

// ruleExprs holds every rule path parsed so far, keyed by expression.
var ruleExprs sync.Map

// lookupRuleExpr parses expr on first use. parsed is true only for the call
// that parsed it.
func lookupRuleExpr(expr string) (e ruleExpr, parsed bool) {
	if v, ok := ruleExprs.Load(expr); ok {
		return v.(ruleExpr), false
	}
	tokens, err := parseRuleExpr(expr)
	v, loaded := ruleExprs.LoadOrStore(expr, ruleExpr{tokens: tokens, err: err})
	return v.(ruleExpr), !loaded
}

// parseRuleExpr turns a rule path such as `$.items[*].id` into tokens. Only the
// subset of JSONPath used by contract files is accepted.
func parseRuleExpr(expr string) ([]pathToken, error) {
	if !strings.HasPrefix(expr, "$") {
		expr = "$." + expr
	}
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid rule path %q", expr)
	}

	tokens := make([]pathToken, 0, len(x))
	for _, frag := range x {
		switch f := frag.(type) {
		case jp.Root:
			tokens = append(tokens, pathToken{kind: tokenRoot})
		case jp.Bracket:
			continue
		case jp.Child:
			tokens = append(tokens, pathToken{kind: tokenField, name: string(f)})
		case jp.Nth:
			tokens = append(tokens, pathToken{kind: tokenIndex, index: int(f)})
		case jp.Wildcard:
			tokens = append(tokens, pathToken{kind: tokenWildcard})
		default:
			return nil, errors.Errorf("unsupported rule path fragment %T in %q", frag, expr)
		}
	}
	if len(tokens) == 0 || tokens[0].kind != tokenRoot {
		return nil, errors.Errorf("rule path %q must start at the root", expr)
	}
	return tokens, nil
}

// weight scores how well a rule path applies to the location p. Tokens are
// compared pairwise (exact = 2, wildcard = 1, otherwise 0) and multiplied. A rule
// path shorter than the location still applies, so rules cascade to children.
func (p Path) weight(tokens []pathToken) int {
	if len(tokens)-1 > len(p) {
		return 0
	}
	w := 2
	for i, t := range tokens[1:] {
		w *= tokenWeight(t, p[i])
		if w == 0 {
			return 0
		}
	}
	return w
}

func tokenWeight(t pathToken, s Segment) int {
	switch t.kind {
	case tokenWildcard:
		return 1
	case tokenField:
		if !s.IsIndex && t.name == s.Field {
			return 2
		}
		if s.IsIndex && t.name == strconv.Itoa(s.Index) {
			return 2
		}
	case tokenIndex:
		if s.IsIndex && t.index == s.Index {
			return 2
		}
	}
	return 0
}
