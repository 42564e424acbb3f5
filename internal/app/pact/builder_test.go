package pact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pact-foundation/pact-go/dsl"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/form3tech-oss/pact-mock/internal/app/matching"
	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
)

func like(value interface{}) map[string]interface{} {
	return map[string]interface{}{
		"pact:matcher:type": "type",
		"value":             value,
	}
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func newDocument(t *testing.T) *Document {
	t.Helper()
	doc, err := New("foo-consumer", "bar-provider", V3)
	require.NoError(t, err)
	return doc
}

func TestNewValidatesIdentity(t *testing.T) {
	tests := []struct {
		name     string
		consumer string
		provider string
		version  SpecificationVersion
	}{
		{name: "no consumer", provider: "p", version: V3},
		{name: "no provider", consumer: "c", version: V3},
		{name: "unsupported version", consumer: "c", provider: "p", version: V4},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.consumer, tt.provider, tt.version)
			assert.True(t, errors.Is(err, pacterror.ErrConfiguration), "got %v", err)
		})
	}
}

func TestSpecificationVersionFixedOnceInteractionsExist(t *testing.T) {
	doc := newDocument(t)
	require.NoError(t, doc.SetSpecificationVersion(V2))

	doc.NewInteraction("a")

	assert.Error(t, doc.SetSpecificationVersion(V3))
	assert.NoError(t, doc.SetSpecificationVersion(V2))
	assert.Equal(t, V2, doc.SpecificationVersion())
}

func TestHeaderAndQuerySlots(t *testing.T) {
	doc := newDocument(t)
	b := doc.NewInteraction("slots").
		WithRequestHeader("x-special-header", 0, "one").
		WithRequestHeader("X-Special-Header", 0, "two").
		WithRequestHeader("x-special-header", 1, "three").
		WithQuery("q", 0, "a").
		WithQuery("q", 5, "b").
		WithQuery("q", 0, "c")

	i := b.Interaction()
	assert.Equal(t, map[string][]string{"x-special-header": {"two", "three"}}, i.Request.Headers)
	assert.Equal(t, map[string][]string{"q": {"c", "b"}}, i.Request.Query)
}

func TestBinaryBodyKeepsExplicitContentTypeHeader(t *testing.T) {
	doc := newDocument(t)
	b := doc.NewInteraction("binary").
		WithRequest("post", "/dogs/1234").
		WithRequestHeader("content-type", 0, "application/octet-stream")

	require.NoError(t, b.WithRequestBinaryBody([]byte{0x1f, 0x8b, 0x08}, "application/gzip"))

	i := b.Interaction()
	assert.Equal(t, "POST", i.Request.Method)
	assert.Equal(t, []string{"application/octet-stream"}, i.Request.Headers["content-type"])
	assert.Equal(t, "application/gzip", i.Request.Body.ContentType)
	assert.Equal(t, "application/octet-stream", i.Request.ContentType())
	assert.Equal(t, []byte{0x1f, 0x8b, 0x08}, i.Request.Body.Content)
}

func TestJSONBodyAnnotationsAreCompiled(t *testing.T) {
	doc := newDocument(t)
	b := doc.NewInteraction("json")

	body := mustJSON(t, map[string]interface{}{
		"name":  like("fido"),
		"age":   like(23),
		"alive": like(true),
		"tags": map[string]interface{}{
			"pact:matcher:type": "type",
			"min":               1,
			"value":             []interface{}{map[string]interface{}{"id": map[string]interface{}{"pact:matcher:type": "regex", "regex": `\d+`, "value": "12"}}},
		},
		"seed": map[string]interface{}{"pact:generator:type": "RandomInt", "n": 1},
	})
	require.NoError(t, b.WithResponseBody(body, "application/json"))

	i := b.Interaction()
	assert.JSONEq(t, `{"name":"fido","age":23,"alive":true,"tags":[{"id":"12"}],"seed":{"n":1}}`, string(i.Response.Body.Content))
	assert.Equal(t, []string{"application/json"}, i.Response.Headers["Content-Type"])

	rules := i.Response.Rules
	assert.Equal(t, matching.NewRuleList(matching.Rule{Match: matching.MatchType}), rules.Get(matching.CategoryBody, "$.age"))
	one := 1
	assert.Equal(t, matching.NewRuleList(matching.Rule{Match: matching.MatchType, Min: &one}), rules.Get(matching.CategoryBody, "$.tags"))
	assert.Equal(t, matching.NewRuleList(matching.Rule{Match: matching.MatchRegex, Regex: `\d+`}), rules.Get(matching.CategoryBody, "$.tags[*].id"))
}

func TestRubyMatchersFromPactGo(t *testing.T) {
	doc := newDocument(t)
	b := doc.NewInteraction("ruby")

	body := mustJSON(t, dsl.MapMatcher{
		"name":  dsl.Like("fido"),
		"id":    dsl.Term("1234", `\d+`),
		"items": dsl.EachLike(dsl.MapMatcher{"n": dsl.Like(1)}, 2),
	})
	require.NoError(t, b.WithRequestBody(body, "application/json"))

	i := b.Interaction()
	assert.JSONEq(t, `{"name":"fido","id":"1234","items":[{"n":1},{"n":1}]}`, string(i.Request.Body.Content))

	rules := i.Request.Rules
	assert.Equal(t, matching.MatchType, rules.Get(matching.CategoryBody, "$.name").Rules[0].Match)
	assert.Equal(t, `\d+`, rules.Get(matching.CategoryBody, "$.id").Rules[0].Regex)
	assert.Equal(t, 2, *rules.Get(matching.CategoryBody, "$.items").Rules[0].Min)
	assert.Equal(t, matching.MatchType, rules.Get(matching.CategoryBody, "$.items[*].n").Rules[0].Match)
}

func TestMalformedJSONBody(t *testing.T) {
	doc := newDocument(t)
	b := doc.NewInteraction("broken")

	err := b.WithRequestBody(`{"name": `, "application/json")

	assert.True(t, errors.Is(err, pacterror.ErrMalformedBody), "got %v", err)
	assert.False(t, b.Interaction().Request.Body.Present)
}

func TestMalformedAnnotation(t *testing.T) {
	doc := newDocument(t)
	b := doc.NewInteraction("broken")

	err := b.WithRequestBody(`{"a": {"pact:matcher:type": "fuzzy", "value": 1}}`, "application/json")

	assert.True(t, errors.Is(err, pacterror.ErrMalformedBody), "got %v", err)
}

func TestBodySetTwiceLastWriteWins(t *testing.T) {
	doc := newDocument(t)
	b := doc.NewInteraction("twice")

	require.NoError(t, b.WithResponseBody(mustJSON(t, map[string]interface{}{"a": like(1)}), "application/json"))
	require.NoError(t, b.WithResponseBody(`{"b":2}`, "application/json"))

	i := b.Interaction()
	assert.JSONEq(t, `{"b":2}`, string(i.Response.Body.Content))
	assert.Nil(t, i.Response.Rules.Get(matching.CategoryBody, "$.a"))
}

func TestBodySetTwiceReplacesItsContentType(t *testing.T) {
	file := filepath.Join(t.TempDir(), "dog.txt")
	require.NoError(t, os.WriteFile(file, []byte("fido"), 0o600))

	tests := []struct {
		name        string
		build       func(b *InteractionBuilder) error
		contentType string
	}{
		{
			name: "json then form",
			build: func(b *InteractionBuilder) error {
				if err := b.WithRequestBody(`{"a":1}`, "application/json"); err != nil {
					return err
				}
				return b.WithRequestBody("a=b", "application/x-www-form-urlencoded")
			},
			contentType: "application/x-www-form-urlencoded",
		},
		{
			name: "json then binary",
			build: func(b *InteractionBuilder) error {
				if err := b.WithRequestBody(`{"a":1}`, "application/json"); err != nil {
					return err
				}
				return b.WithRequestBinaryBody([]byte{0x1f, 0x8b}, "application/gzip")
			},
			contentType: "application/gzip",
		},
		{
			name: "multipart then json",
			build: func(b *InteractionBuilder) error {
				if err := b.WithRequestMultipartBody("text/plain", file, "my_file"); err != nil {
					return err
				}
				return b.WithRequestBody(`{"a":1}`, "application/json")
			},
			contentType: "application/json",
		},
		{
			name: "explicit header wins",
			build: func(b *InteractionBuilder) error {
				if err := b.WithRequestBody(`{"a":1}`, "application/json"); err != nil {
					return err
				}
				b.WithRequestHeader("Content-Type", 0, "text/x-dog")
				return b.WithRequestBody("a=b", "application/x-www-form-urlencoded")
			},
			contentType: "text/x-dog",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			b := newDocument(t).NewInteraction("twice").WithRequest("POST", "/dogs")
			require.NoError(t, tt.build(b))

			i := b.Interaction()
			assert.Equal(t, map[string][]string{"Content-Type": {tt.contentType}}, i.Request.Headers)
			assert.Equal(t, tt.contentType, i.Request.ContentType())
			assert.Nil(t, i.Request.Rules.Get(matching.CategoryHeader, "Content-Type"))
		})
	}
}

func TestBinaryBodyWithoutContentType(t *testing.T) {
	b := newDocument(t).NewInteraction("binary").WithRequest("POST", "/dogs")
	require.NoError(t, b.WithRequestBinaryBody([]byte{0x1f, 0x8b, 0x08, 0x00, 0xff, 0xfe}, ""))

	i := b.Interaction()
	assert.Equal(t, []string{"application/octet-stream"}, i.Request.Headers["Content-Type"])
	assert.Equal(t, "application/octet-stream", i.Request.Body.ContentType)
}

func TestAnnotatedHeaderQueryAndPath(t *testing.T) {
	doc := newDocument(t)
	regex := func(value, pattern string) string {
		return mustJSON(t, map[string]interface{}{"pact:matcher:type": "regex", "regex": pattern, "value": value})
	}
	b := doc.NewInteraction("annotated").
		WithRequest("GET", regex("/dogs/1", `/dogs/\d+`)).
		WithRequestHeader("Authorization", 0, regex("Bearer abc", `Bearer \w+`)).
		WithQuery("page", 0, mustJSON(t, dsl.Term("1", `\d+`)))

	i := b.Interaction()
	assert.Equal(t, "/dogs/1", i.Request.Path)
	assert.Equal(t, []string{"Bearer abc"}, i.Request.Headers["Authorization"])
	assert.Equal(t, []string{"1"}, i.Request.Query["page"])
	assert.Equal(t, `/dogs/\d+`, i.Request.Rules.Get(matching.CategoryPath, "").Rules[0].Regex)
	assert.Equal(t, `Bearer \w+`, i.Request.Rules.Get(matching.CategoryHeader, "authorization").Rules[0].Regex)
	assert.Equal(t, `\d+`, i.Request.Rules.Get(matching.CategoryQuery, "page").Rules[0].Regex)

	assert.True(t, i.MatchesRoute("GET", "/dogs/42"))
	assert.False(t, i.MatchesRoute("GET", "/cats/42"))
}

func TestProviderStates(t *testing.T) {
	doc := newDocument(t)
	b := doc.NewInteraction("states").
		Given("fido exists").
		GivenWithParam("user exists", "id", 1).
		GivenWithParam("user exists", "name", "bob")

	assert.Equal(t, []ProviderState{
		{Name: "fido exists"},
		{Name: "user exists", Params: map[string]interface{}{"id": 1, "name": "bob"}},
	}, b.Interaction().ProviderStates)
}

func TestMultipartBody(t *testing.T) {
	file := filepath.Join(t.TempDir(), "monkeypatch.rb")
	require.NoError(t, os.WriteFile(file, []byte("puts 'hello'\n"), 0o600))

	doc := newDocument(t)
	b := doc.NewInteraction("multipart")
	require.NoError(t, b.WithRequestMultipartBody("text/plain", file, "my_file"))

	i := b.Interaction()
	contentType := i.Request.Headers["Content-Type"][0]
	assert.Regexp(t, `^multipart/form-data; boundary=`, contentType)
	assert.Contains(t, string(i.Request.Body.Content), `name="my_file"; filename="monkeypatch.rb"`)
	assert.Equal(t, `multipart/form-data;(\s*charset=[^;]*;)?\s*boundary=.*`,
		i.Request.Rules.Get(matching.CategoryHeader, "content-type").Rules[0].Regex)
	assert.Equal(t, matching.NewRuleList(matching.Rule{Match: matching.MatchContentType, Value: "text/plain"}),
		i.Request.Rules.Get(matching.CategoryBody, "$.my_file"))

	err := b.WithRequestMultipartBody("text/plain", filepath.Join(t.TempDir(), "missing"), "my_file")
	assert.True(t, errors.Is(err, pacterror.ErrIO), "got %v", err)
}

func TestSnapshotIsIndependent(t *testing.T) {
	doc := newDocument(t)
	b := doc.NewInteraction("snap").WithStatus(201)

	snapshot := doc.Snapshot()
	b.WithStatus(404)

	assert.Equal(t, 201, snapshot.Interactions()[0].Response.Status)
	assert.Equal(t, 404, doc.Interactions()[0].Response.Status)
}

func TestValidate(t *testing.T) {
	doc := newDocument(t)
	doc.NewInteraction("ok")
	require.NoError(t, doc.Validate())

	doc.NewInteraction("bad status").WithStatus(42)
	assert.True(t, errors.Is(doc.Validate(), pacterror.ErrConfiguration))
}
