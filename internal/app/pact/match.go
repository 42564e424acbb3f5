package pact

import (
	"github.com/form3tech-oss/pact-mock/internal/app/matching"
)

// MatchesRoute reports whether a request with this method and path is aimed at
// the interaction. Path rules are honoured.
func (i *Interaction) MatchesRoute(method, path string) bool {
	return len(matching.CompareMethod(i.Request.Method, method)) == 0 &&
		len(matching.ComparePath(i.Request.Path, path, i.Request.Rules.Get(matching.CategoryPath, ""))) == 0
}

// MatchRequest compares an actual request with the interaction's expected
// request and returns every mismatch found. Request bodies may not carry keys
// the expectation does not name.
func (i *Interaction) MatchRequest(actual Request) []matching.Mismatch {
	expected := i.Request
	rules := expected.Rules

	var mismatches []matching.Mismatch
	mismatches = append(mismatches, matching.CompareMethod(expected.Method, actual.Method)...)
	mismatches = append(mismatches, matching.ComparePath(expected.Path, actual.Path, rules.Get(matching.CategoryPath, ""))...)
	mismatches = append(mismatches, matching.CompareQuery(expected.Query, actual.Query, rules.Category(matching.CategoryQuery))...)
	mismatches = append(mismatches, matching.CompareHeaders(expected.Headers, actual.Headers, rules.Category(matching.CategoryHeader))...)

	expectedBody := expected.Body
	expectedBody.ContentType = expected.ContentType()
	actualBody := matching.Body{
		Content:     actual.Body.Content,
		ContentType: matching.LookupHeader(actual.Headers, "Content-Type"),
	}
	mismatches = append(mismatches, matching.CompareBody(expectedBody, actualBody,
		rules.Category(matching.CategoryBody), matching.NoUnexpectedKeys)...)
	return mismatches
}
