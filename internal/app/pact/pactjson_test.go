package pact

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/form3tech-oss/pact-mock/internal/app/matching"
)

func scenarioDocument(t *testing.T, version SpecificationVersion) *Document {
	t.Helper()
	doc, err := New("foo-consumer", "bar-provider", version)
	require.NoError(t, err)

	b := doc.NewInteraction("some description").
		UponReceiving("a request to get a dog with binary data").
		Given("fido exists").
		WithRequest("POST", "/dogs/1234").
		WithRequestHeader("x-special-header", 0, "header").
		WithRequestHeader("content-type", 0, "application/octet-stream").
		WithQuery("someParam", 0, "someValue").
		WithResponseHeader("x-special-response-header", 0, "header").
		WithStatus(200)
	require.NoError(t, b.WithRequestBinaryBody([]byte{0x1f, 0x8b, 0x08, 0x00}, "application/gzip"))
	require.NoError(t, b.WithResponseBody(mustJSON(t, map[string]interface{}{
		"name":  like("fido"),
		"age":   like(23),
		"alive": like(true),
	}), "application/json"))
	return doc
}

func TestMarshalV3(t *testing.T) {
	data, err := json.Marshal(scenarioDocument(t, V3))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"consumer": {"name": "foo-consumer"},
		"provider": {"name": "bar-provider"},
		"interactions": [{
			"description": "a request to get a dog with binary data",
			"providerStates": [{"name": "fido exists"}],
			"request": {
				"method": "POST",
				"path": "/dogs/1234",
				"query": {"someParam": ["someValue"]},
				"headers": {"content-type": "application/octet-stream", "x-special-header": "header"},
				"body": "H4sIAA=="
			},
			"response": {
				"status": 200,
				"headers": {"Content-Type": "application/json", "x-special-response-header": "header"},
				"body": {"name": "fido", "age": 23, "alive": true},
				"matchingRules": {
					"body": {
						"$.name": {"matchers": [{"match": "type"}]},
						"$.age": {"matchers": [{"match": "type"}]},
						"$.alive": {"matchers": [{"match": "type"}]}
					}
				}
			}
		}],
		"metadata": {"pactSpecification": {"version": "3.0.0"}}
	}`, string(data))
}

func TestMarshalV2(t *testing.T) {
	data, err := json.Marshal(scenarioDocument(t, V2))
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	interaction := doc["interactions"].([]interface{})[0].(map[string]interface{})
	request := interaction["request"].(map[string]interface{})
	response := interaction["response"].(map[string]interface{})

	assert.Equal(t, "fido exists", interaction["providerState"])
	assert.Equal(t, "someParam=someValue", request["query"])
	assert.Equal(t, map[string]interface{}{
		"$.body.name":  map[string]interface{}{"match": "type"},
		"$.body.age":   map[string]interface{}{"match": "type"},
		"$.body.alive": map[string]interface{}{"match": "type"},
	}, response["matchingRules"])
	assert.Equal(t, map[string]interface{}{"version": "2.0.0"},
		doc["metadata"].(map[string]interface{})["pactSpecification"])
}

func TestRoundTrip(t *testing.T) {
	for _, version := range []SpecificationVersion{V2, V3} {
		version := version
		t.Run(version.String(), func(t *testing.T) {
			original := scenarioDocument(t, version)
			data, err := json.Marshal(original)
			require.NoError(t, err)

			read, err := UnmarshalDocument(data)
			require.NoError(t, err)

			assert.Equal(t, original.Consumer(), read.Consumer())
			assert.Equal(t, original.Provider(), read.Provider())
			assert.Equal(t, version, read.SpecificationVersion())

			want := original.Interactions()
			got := read.Interactions()
			require.Len(t, got, len(want))
			for n := range want {
				assert.Equal(t, want[n].Key(), got[n].Key())
				assert.Equal(t, want[n].Request.Method, got[n].Request.Method)
				assert.Equal(t, want[n].Request.Path, got[n].Request.Path)
				assert.Equal(t, want[n].Request.Query, got[n].Request.Query)
				assert.Equal(t, want[n].Request.Headers, got[n].Request.Headers)
				assert.Equal(t, want[n].Request.Body.Content, got[n].Request.Body.Content)
				assert.Equal(t, want[n].Response.Status, got[n].Response.Status)
				assert.JSONEq(t, string(want[n].Response.Body.Content), string(got[n].Response.Body.Content))
				assert.Equal(t, want[n].Response.Rules.Keys(matching.CategoryBody), got[n].Response.Rules.Keys(matching.CategoryBody))
			}

			again, err := json.Marshal(read)
			require.NoError(t, err)
			assert.JSONEq(t, string(data), string(again))
		})
	}
}

func roundTrip(t *testing.T, doc *Document) *Interaction {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	read, err := UnmarshalDocument(data)
	require.NoError(t, err)
	interactions := read.Interactions()
	require.Len(t, interactions, 1)
	return interactions[0]
}

func TestBinaryBodyWithoutContentTypeRoundTrips(t *testing.T) {
	body := []byte{0x1f, 0x8b, 0x08, 0x00, 0xff, 0xfe}
	doc := newDocument(t)
	require.NoError(t, doc.NewInteraction("binary").WithRequest("POST", "/dogs").WithRequestBinaryBody(body, ""))

	i := roundTrip(t, doc)
	assert.Equal(t, body, i.Request.Body.Content)
	assert.Equal(t, "application/octet-stream", i.Request.ContentType())
}

func TestHeaderValuesRoundTrip(t *testing.T) {
	doc := newDocument(t)
	doc.NewInteraction("headers").
		WithRequestHeader("Accept", 0, "application/json").
		WithRequestHeader("Accept", 1, "text/plain").
		WithResponseHeader("Date", 0, "Tue, 15 Nov 1994 08:12:31 GMT")

	i := roundTrip(t, doc)
	assert.Equal(t, []string{"application/json", "text/plain"}, i.Request.Headers["Accept"])
	assert.Equal(t, []string{"Tue, 15 Nov 1994 08:12:31 GMT"}, i.Response.Headers["Date"])
}

func TestJSONBodyKeepsHTMLCharacters(t *testing.T) {
	doc := newDocument(t)
	b := doc.NewInteraction("html").WithStatus(200)
	require.NoError(t, b.WithResponseBody(`{"s":"<b>&"}`, "application/json"))

	assert.Equal(t, `{"s":"<b>&"}`, string(b.Interaction().Response.Body.Content))
	assert.Equal(t, `{"s":"<b>&"}`, string(roundTrip(t, doc).Response.Body.Content))
}

func TestUnmarshalV2Interaction(t *testing.T) {
	data := []byte(`{
		"consumer": {"name": "c"},
		"provider": {"name": "p"},
		"interactions": [{
			"description": "A request to create an address",
			"providerState": "an address can be created",
			"request": {
				"method": "post",
				"path": "/addresses",
				"query": "a=1&a=2",
				"headers": {"Content-Type": "application/json"},
				"body": {"street": "main"},
				"matchingRules": {"$.body.street": {"match": "type"}, "$.path": {"regex": "/addresses"}}
			},
			"response": {"status": 201}
		}],
		"metadata": {"pactSpecification": {"version": "2.0.0"}}
	}`)

	doc, err := UnmarshalDocument(data)
	require.NoError(t, err)

	assert.Equal(t, V2, doc.SpecificationVersion())
	i := doc.Interactions()[0]
	assert.Equal(t, "POST", i.Request.Method)
	assert.Equal(t, map[string][]string{"a": {"1", "2"}}, i.Request.Query)
	assert.Equal(t, []ProviderState{{Name: "an address can be created"}}, i.ProviderStates)
	assert.JSONEq(t, `{"street":"main"}`, string(i.Request.Body.Content))
	assert.NotNil(t, i.Request.Rules.Get(matching.CategoryBody, "$.street"))
	assert.NotNil(t, i.Request.Rules.Get(matching.CategoryPath, ""))
	assert.Equal(t, 201, i.Response.Status)
	assert.False(t, i.Response.Body.Present)
}

func TestUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{`},
		{name: "no consumer", data: `{"provider": {"name": "p"}}`},
		{name: "interaction without description", data: `{"consumer": {"name": "c"}, "provider": {"name": "p"}, "interactions": [{}]}`},
		{name: "bad rules", data: `{"consumer": {"name": "c"}, "provider": {"name": "p"}, "interactions": [
			{"description": "d", "request": {"method": "GET", "path": "/", "matchingRules": {"body": {"$.a": {"matchers": [{"match": "nope"}]}}}}}]}`},
		{name: "unsupported version", data: `{"consumer": {"name": "c"}, "provider": {"name": "p"}, "metadata": {"pactSpecification": {"version": "4.0"}}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalDocument([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}
