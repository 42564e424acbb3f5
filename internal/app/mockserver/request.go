package mockserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/form3tech-oss/pact-mock/internal/app/matching"
	"github.com/form3tech-oss/pact-mock/internal/app/pact"
)

// requestDocument is the view of a received request that constraints are
// evaluated against: path, query, headers and body.
type requestDocument map[string]interface{}

func newRequestDocument(r pact.Request) requestDocument {
	headers := make(map[string]interface{}, len(r.Headers))
	for name, values := range r.Headers {
		if len(values) > 0 {
			headers[http.CanonicalHeaderKey(name)] = values[0]
		}
	}

	return requestDocument{
		"method":  r.Method,
		"path":    r.Path,
		"query":   parseQueryValues(r.Query),
		"headers": headers,
		"body":    parseBody(r),
	}
}

func parseBody(r pact.Request) interface{} {
	contentType := matching.LookupHeader(r.Headers, "Content-Type")
	if contentType == "" {
		contentType = matching.DetectContentType(r.Body.Content)
	}
	if !matching.IsJSON(contentType) {
		return string(r.Body.Content)
	}

	if len(r.Body.Content) == 0 {
		return map[string]interface{}{}
	}
	var body interface{}
	if err := json.Unmarshal(r.Body.Content, &body); err != nil {
		return string(r.Body.Content)
	}
	return body
}

func parseQueryValues(query map[string][]string) map[string]interface{} {
	queryValues := make(map[string]interface{})
	for q, v := range query {
		if len(v) > 0 {
			escapeValue(queryValues, q, v[0])
		}
	}
	return queryValues
}

// encodeValues quotes query keys used as brackets so that `$.query.a[b]`
// addresses the nested parameter a[b].
func (r requestDocument) encodeValues(val string) string {
	query := r["query"].(map[string]interface{})
	return encodeMapValues(query, val)
}

func encodeMapValues(m map[string]interface{}, val string) string {
	result := val
	for k, v := range m {
		result = strings.ReplaceAll(result, "["+k+"]", "[\""+k+"\"]")
		if nested, ok := v.(map[string]interface{}); ok {
			result = encodeMapValues(nested, result)
		}
	}
	return result
}

func escapeValue(values map[string]interface{}, query, val string) {
	open := strings.Index(query, "[")
	if open < 0 {
		values[query] = val
		return
	}

	key := query[:open]
	rest := query[open+1:]
	closing := strings.Index(rest, "]")
	if closing < 0 {
		values[query] = val
		return
	}

	valueMap, ok := values[key].(map[string]interface{})
	if !ok {
		valueMap = make(map[string]interface{})
		values[key] = valueMap
	}
	escapeValue(valueMap, rest[:closing]+rest[closing+1:], val)
}
