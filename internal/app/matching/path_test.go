package matching

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulePathsAreParsedOnce(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	rules := map[string]*RuleList{
		"$.dogs[*].name": NewRuleList(Rule{Match: MatchType}),
		"$..colour":      NewRuleList(Rule{Match: MatchType}),
	}
	location := RootPath().Field("dogs").Index(1).Field("name")

	for i := 0; i < 3; i++ {
		assert.Same(t, rules["$.dogs[*].name"], resolve(rules, location))
	}

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Data["path"] == "$..colour" {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings, "an invalid rule path is reported once")

	first, _ := lookupRuleExpr("$.dogs[*].name")
	second, parsed := lookupRuleExpr("$.dogs[*].name")
	require.NoError(t, first.err)
	assert.False(t, parsed)
	assert.Equal(t, first.tokens, second.tokens)
}
