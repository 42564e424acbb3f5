package pact

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/form3tech-oss/pact-mock/internal/app/matching"
	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
)

// MarshalJSON writes the document in the contract file format of its
// specification version.
func (d *Document) MarshalJSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	interactions := make([]interface{}, 0, len(d.interactions))
	for _, i := range d.interactions {
		interactions = append(interactions, MarshalInteraction(i, d.version))
	}
	return json.Marshal(map[string]interface{}{
		"consumer":     map[string]interface{}{"name": d.consumer},
		"provider":     map[string]interface{}{"name": d.provider},
		"interactions": interactions,
		"metadata":     Metadata(d.version),
	})
}

func Metadata(version SpecificationVersion) map[string]interface{} {
	return map[string]interface{}{
		"pactSpecification": map[string]interface{}{"version": version.String()},
	}
}

// MarshalInteraction renders one interaction as a JSON-ready map.
func MarshalInteraction(i *Interaction, version SpecificationVersion) map[string]interface{} {
	out := map[string]interface{}{
		"description": i.Description,
		"request":     MarshalRequest(i.Request, version),
		"response":    marshalResponse(i.Response, version),
	}
	if len(i.ProviderStates) > 0 {
		if version >= V3 {
			states := make([]interface{}, 0, len(i.ProviderStates))
			for _, s := range i.ProviderStates {
				state := map[string]interface{}{"name": s.Name}
				if len(s.Params) > 0 {
					state["params"] = s.Params
				}
				states = append(states, state)
			}
			out["providerStates"] = states
		} else {
			out["providerState"] = i.ProviderStates[0].Name
		}
	}
	return out
}

// MarshalRequest renders a request as it appears in a contract file.
func MarshalRequest(r Request, version SpecificationVersion) map[string]interface{} {
	out := map[string]interface{}{
		"method": r.Method,
		"path":   r.Path,
	}
	if len(r.Query) > 0 {
		if version >= V3 {
			out["query"] = r.Query
		} else {
			out["query"] = encodeQuery(r.Query)
		}
	}
	if len(r.Headers) > 0 {
		out["headers"] = marshalHeaders(r.Headers)
	}
	if r.Body.Present {
		out["body"] = marshalBody(r.Body, r.ContentType())
	}
	if rules := marshalRules(r.Rules, version); rules != nil {
		out["matchingRules"] = rules
	}
	return out
}

func marshalResponse(r Response, version SpecificationVersion) map[string]interface{} {
	out := map[string]interface{}{
		"status": r.Status,
	}
	if len(r.Headers) > 0 {
		out["headers"] = marshalHeaders(r.Headers)
	}
	if r.Body.Present {
		out["body"] = marshalBody(r.Body, r.ContentType())
	}
	if rules := marshalRules(r.Rules, version); rules != nil {
		out["matchingRules"] = rules
	}
	return out
}

func marshalRules(rules *matching.Rules, version SpecificationVersion) map[string]interface{} {
	switch {
	case version >= V3:
		return rules.MarshalV3()
	case version == V2:
		return rules.MarshalV2()
	}
	return nil
}

func marshalHeaders(headers map[string][]string) map[string]interface{} {
	out := make(map[string]interface{}, len(headers))
	for _, name := range sortedHeaderNames(headers) {
		out[name] = strings.Join(headers[name], ", ")
	}
	return out
}

func encodeQuery(query map[string][]string) string {
	names := make([]string, 0, len(query))
	for k := range query {
		names = append(names, k)
	}
	sort.Strings(names)
	var parts []string
	for _, name := range names {
		for _, v := range query[name] {
			parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// marshalBody writes JSON bodies inline, other textual bodies as strings and
// everything else base64 encoded.
func marshalBody(body matching.Body, contentType string) interface{} {
	if len(body.Content) == 0 {
		return ""
	}
	if matching.IsJSON(contentType) {
		if v, err := matching.DecodeJSON(body.Content); err == nil {
			return v
		}
	}
	if matching.IsTextual(contentType) || (contentType == "" && isPrintable(body.Content)) {
		return string(body.Content)
	}
	return base64.StdEncoding.EncodeToString(body.Content)
}

func isPrintable(content []byte) bool {
	return matching.BodyString(content) == string(content) && matching.DetectContentType(content) != matching.MediaTypeBinary
}

// UnmarshalDocument reads a contract file. The specification version comes from
// the metadata and defaults to V3.
func UnmarshalDocument(data []byte) (*Document, error) {
	v, err := matching.DecodeJSON(data)
	if err != nil {
		return nil, pacterror.MalformedBody(err, "pact file is not valid JSON")
	}
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil, pacterror.MalformedBody(nil, "pact file must be a JSON object")
	}
	return FromMap(raw)
}

// FromMap builds a document from a decoded contract file.
func FromMap(raw map[string]interface{}) (*Document, error) {
	version := V3
	if metadata, ok := raw["metadata"].(map[string]interface{}); ok {
		if s := specificationFromMetadata(metadata); s != "" {
			parsed, err := ParseSpecificationVersion(s)
			if err != nil {
				return nil, err
			}
			version = parsed
		}
	}

	doc, err := New(nameOf(raw["consumer"]), nameOf(raw["provider"]), version)
	if err != nil {
		return nil, err
	}

	interactions, _ := raw["interactions"].([]interface{})
	for n, item := range interactions {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, pacterror.MalformedBody(nil, "interaction %d must be an object", n)
		}
		i, err := UnmarshalInteraction(obj)
		if err != nil {
			return nil, errors.Wrapf(err, "interaction %d", n)
		}
		doc.interactions = append(doc.interactions, i)
	}
	return doc, nil
}

func specificationFromMetadata(metadata map[string]interface{}) string {
	for _, key := range []string{"pactSpecification", "pact-specification"} {
		if spec, ok := metadata[key].(map[string]interface{}); ok {
			if s, ok := spec["version"].(string); ok {
				return s
			}
		}
	}
	if s, ok := metadata["pactSpecificationVersion"].(string); ok {
		return s
	}
	return ""
}

func nameOf(v interface{}) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := m["name"].(string)
	return name
}

// UnmarshalInteraction reads one interaction in either the V2 or the V3 layout.
func UnmarshalInteraction(raw map[string]interface{}) (*Interaction, error) {
	description, ok := raw["description"].(string)
	if !ok {
		return nil, pacterror.MalformedBody(nil, "interaction has no description")
	}
	i := newInteraction(description)

	if states, ok := raw["providerStates"].([]interface{}); ok {
		for _, s := range states {
			obj, ok := s.(map[string]interface{})
			if !ok {
				return nil, pacterror.MalformedBody(nil, "provider state must be an object")
			}
			state := ProviderState{}
			state.Name, _ = obj["name"].(string)
			if params, ok := obj["params"].(map[string]interface{}); ok && len(params) > 0 {
				state.Params = params
			}
			i.ProviderStates = append(i.ProviderStates, state)
		}
	} else if state, ok := raw["providerState"].(string); ok && state != "" {
		i.ProviderStates = []ProviderState{{Name: state}}
	}

	request, ok := raw["request"].(map[string]interface{})
	if !ok {
		return nil, pacterror.MalformedBody(nil, "interaction %q has no request", description)
	}
	if err := unmarshalRequest(request, &i.Request); err != nil {
		return nil, errors.Wrapf(err, "interaction %q request", description)
	}

	if response, ok := raw["response"].(map[string]interface{}); ok {
		if err := unmarshalResponse(response, &i.Response); err != nil {
			return nil, errors.Wrapf(err, "interaction %q response", description)
		}
	}
	return i, nil
}

func unmarshalRequest(raw map[string]interface{}, r *Request) error {
	if method, ok := raw["method"].(string); ok {
		r.Method = strings.ToUpper(method)
	}
	if path, ok := raw["path"].(string); ok {
		r.Path = path
	}

	query, err := unmarshalQuery(raw["query"])
	if err != nil {
		return err
	}
	r.Query = query

	headers, err := unmarshalHeaders(raw["headers"])
	if err != nil {
		return err
	}
	r.Headers = headers

	rules, err := unmarshalRules(raw["matchingRules"])
	if err != nil {
		return err
	}
	r.Rules = rules

	if value, present := raw["body"]; present {
		r.Body = unmarshalBody(value, matching.LookupHeader(headers, "Content-Type"))
	}
	return nil
}

func unmarshalResponse(raw map[string]interface{}, r *Response) error {
	if status, ok := raw["status"]; ok {
		n, err := statusCode(status)
		if err != nil {
			return err
		}
		r.Status = n
	}

	headers, err := unmarshalHeaders(raw["headers"])
	if err != nil {
		return err
	}
	r.Headers = headers

	rules, err := unmarshalRules(raw["matchingRules"])
	if err != nil {
		return err
	}
	r.Rules = rules

	if value, present := raw["body"]; present {
		r.Body = unmarshalBody(value, matching.LookupHeader(headers, "Content-Type"))
	}
	return nil
}

func statusCode(v interface{}) (int, error) {
	switch n := v.(type) {
	case json.Number:
		return strconv.Atoi(n.String())
	case float64:
		return int(n), nil
	case int:
		return n, nil
	}
	return 0, pacterror.MalformedBody(nil, "status must be a number")
}

func unmarshalQuery(v interface{}) (map[string][]string, error) {
	out := map[string][]string{}
	switch q := v.(type) {
	case nil:
	case string:
		values, err := url.ParseQuery(q)
		if err != nil {
			return nil, pacterror.MalformedBody(err, "invalid query string")
		}
		for k, vs := range values {
			out[k] = vs
		}
	case map[string]interface{}:
		for k, value := range q {
			values, err := stringValues(value)
			if err != nil {
				return nil, errors.Wrapf(err, "query parameter %q", k)
			}
			out[k] = values
		}
	default:
		return nil, pacterror.MalformedBody(nil, "query must be a string or an object")
	}
	return out, nil
}

func unmarshalHeaders(v interface{}) (map[string][]string, error) {
	out := map[string][]string{}
	if v == nil {
		return out, nil
	}
	headers, ok := v.(map[string]interface{})
	if !ok {
		return nil, pacterror.MalformedBody(nil, "headers must be an object")
	}
	for k, value := range headers {
		values, err := stringValues(value)
		if err != nil {
			return nil, errors.Wrapf(err, "header %q", k)
		}
		out[k] = matching.SplitHeaderValues(k, values)
	}
	return out, nil
}

func stringValues(v interface{}) ([]string, error) {
	switch value := v.(type) {
	case string:
		return []string{value}, nil
	case []interface{}:
		out := make([]string, 0, len(value))
		for _, item := range value {
			s, ok := item.(string)
			if !ok {
				return nil, pacterror.MalformedBody(nil, "values must be strings")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, pacterror.MalformedBody(nil, "value must be a string or a list of strings")
}

// unmarshalRules detects the layout: V2 keys are JSON paths, V3 keys are
// category names.
func unmarshalRules(v interface{}) (*matching.Rules, error) {
	raw, ok := v.(map[string]interface{})
	if !ok || len(raw) == 0 {
		return matching.NewRules(), nil
	}
	for key := range raw {
		if strings.HasPrefix(key, "$") {
			rules, err := matching.ParseRulesV2(raw)
			return rules, wrapMalformed(err)
		}
	}
	rules, err := matching.ParseRulesV3(raw)
	return rules, wrapMalformed(err)
}

func wrapMalformed(err error) error {
	if err == nil {
		return nil
	}
	return pacterror.MalformedBody(err, "invalid matching rules")
}

func unmarshalBody(value interface{}, contentType string) matching.Body {
	body := matching.Body{Present: true}
	switch v := value.(type) {
	case nil:
	case string:
		body.Content = []byte(v)
		if contentType != "" && !matching.IsTextual(contentType) {
			if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
				body.Content = decoded
			}
		}
	default:
		content, err := encodeBody(v)
		if err == nil {
			body.Content = content
		}
		if contentType == "" {
			contentType = matching.MediaTypeJSON
		}
	}
	body.ContentType = contentType
	return body
}
