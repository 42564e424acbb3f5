package matching

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"sort"

	"github.com/pkg/errors"
)

// Body is a payload together with the content type it is compared as.
type Body struct {
	Content     []byte
	ContentType string
	// Present distinguishes an expected empty body from no expectation at all.
	Present bool
}

func (b Body) resolvedContentType() string {
	if b.ContentType != "" {
		return b.ContentType
	}
	if len(b.Content) == 0 {
		return ""
	}
	return DetectContentType(b.Content)
}

func bodyPointer(content []byte) *string {
	if len(content) == 0 {
		return nil
	}
	s := BodyString(content)
	return &s
}

// CompareBody compares an actual body with the expectation, dispatching on the
// expected content type. No expectation matches any body.
func CompareBody(expected, actual Body, rules map[string]*RuleList, config DiffConfig) []Mismatch {
	if !expected.Present {
		return nil
	}
	if len(expected.Content) == 0 && len(actual.Content) == 0 {
		return nil
	}

	expectedType := expected.resolvedContentType()
	actualType := actual.resolvedContentType()
	if expectedType != "" && actualType != "" && !SameMediaType(expectedType, actualType) {
		return []Mismatch{{
			Type:         BodyTypeMismatch,
			Expected:     BaseMediaType(expectedType),
			Actual:       BaseMediaType(actualType),
			Message:      fmt.Sprintf("Expected body with content type %s but was %s", BaseMediaType(expectedType), BaseMediaType(actualType)),
			ExpectedBody: bodyPointer(expected.Content),
			ActualBody:   bodyPointer(actual.Content),
		}}
	}

	if len(actual.Content) == 0 {
		return []Mismatch{{
			Type:     BodyMismatch,
			Key:      "$",
			Expected: BodyString(expected.Content),
			Message:  fmt.Sprintf("Expected body '%s' but was missing", BodyString(expected.Content)),
		}}
	}

	if root := rules["$"]; root != nil && !IsJSON(expectedType) {
		return compareWhole(expected.Content, actual.Content, root)
	}

	switch base := BaseMediaType(expectedType); {
	case IsJSON(base):
		return CompareJSON(expected.Content, actual.Content, rules, config)
	case base == MediaTypeForm:
		return compareFormBodies(expected.Content, actual.Content, rules)
	case base == MediaTypeMultipart:
		return compareMultipart(expected, actual, rules)
	case IsTextual(base):
		if !bytes.Equal(expected.Content, actual.Content) {
			return []Mismatch{{
				Type:     BodyMismatch,
				Key:      "$",
				Expected: string(expected.Content),
				Actual:   BodyString(actual.Content),
				Message: fmt.Sprintf("Expected body '%s' to match '%s' using equality but did not match",
					string(expected.Content), BodyString(actual.Content)),
			}}
		}
		return nil
	}

	if !bytes.Equal(expected.Content, actual.Content) {
		return []Mismatch{{
			Type:     BodyMismatch,
			Key:      "$",
			Expected: BodyString(expected.Content),
			Actual:   BodyString(actual.Content),
			Message: fmt.Sprintf("Actual body [%d bytes] is not equal to the expected body [%d bytes]",
				len(actual.Content), len(expected.Content)),
		}}
	}
	return nil
}

// compareWhole applies a rule at the root of a non-structured body, e.g. a
// contentType or regex rule on a binary or text payload.
func compareWhole(expected, actual []byte, rules *RuleList) []Mismatch {
	messages, err := rules.Evaluate(string(expected), string(actual))
	if err != nil {
		return []Mismatch{internalMismatch("$", err)}
	}
	var mismatches []Mismatch
	for _, msg := range messages {
		mismatches = append(mismatches, Mismatch{
			Type:     BodyMismatch,
			Key:      "$",
			Expected: BodyString(expected),
			Actual:   BodyString(actual),
			Message:  msg,
		})
	}
	return mismatches
}

func compareFormBodies(expected, actual []byte, rules map[string]*RuleList) []Mismatch {
	e, err := url.ParseQuery(string(expected))
	if err != nil {
		return []Mismatch{internalMismatch("$", errors.Wrap(err, "parsing expected form body"))}
	}
	a, err := url.ParseQuery(string(actual))
	if err != nil {
		return []Mismatch{{
			Type:     BodyMismatch,
			Key:      "$",
			Expected: string(expected),
			Actual:   BodyString(actual),
			Message:  fmt.Sprintf("Failed to parse the actual form body: '%s'", err),
		}}
	}
	return CompareForm(e, a, rules)
}

// parseMultipart reads the named parts of a multipart body. Only the first part
// of each name is kept.
func parseMultipart(contentType string, body []byte) (map[string][]byte, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, errors.Wrap(err, "parsing multipart content type")
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, errors.New("multipart content type has no boundary")
	}

	parts := map[string][]byte{}
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		p, err := reader.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading multipart body")
		}
		content, err := io.ReadAll(p)
		if err != nil {
			return nil, errors.Wrap(err, "reading multipart part")
		}
		name := p.FormName()
		if _, seen := parts[name]; !seen {
			parts[name] = content
		}
	}
}

func compareMultipart(expected, actual Body, rules map[string]*RuleList) []Mismatch {
	e, err := parseMultipart(expected.resolvedContentType(), expected.Content)
	if err != nil {
		return []Mismatch{internalMismatch("$", err)}
	}
	a, err := parseMultipart(actual.resolvedContentType(), actual.Content)
	if err != nil {
		return []Mismatch{{
			Type:     BodyMismatch,
			Key:      "$",
			Expected: BodyString(expected.Content),
			Actual:   BodyString(actual.Content),
			Message:  fmt.Sprintf("Failed to parse the actual multipart body: '%s'", err),
		}}
	}

	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)

	var mismatches []Mismatch
	for _, name := range names {
		key := FieldExpr("$", name)
		want := e[name]
		got, ok := a[name]
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Type:     BodyMismatch,
				Key:      key,
				Expected: BodyString(want),
				Message:  fmt.Sprintf("Expected a multipart part named '%s' but was missing", name),
			})
			continue
		}
		if list := resolve(rules, RootPath().Field(name)); list != nil {
			for _, m := range compareWhole(want, got, list) {
				m.Key = key
				mismatches = append(mismatches, m)
			}
			continue
		}
		if !bytes.Equal(want, got) {
			mismatches = append(mismatches, Mismatch{
				Type:     BodyMismatch,
				Key:      key,
				Expected: BodyString(want),
				Actual:   BodyString(got),
				Message:  fmt.Sprintf("Expected multipart part '%s' to be equal to the expected content", name),
			})
		}
	}
	return mismatches
}
