package pact

import (
	"encoding/json"
	"sort"

	"github.com/form3tech-oss/pact-mock/internal/app/matching"
)

type ProviderState struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type Request struct {
	Method  string
	Path    string
	Query   map[string][]string
	Headers map[string][]string
	Body    matching.Body
	Rules   *matching.Rules
}

type Response struct {
	Status  int
	Headers map[string][]string
	Body    matching.Body
	Rules   *matching.Rules
}

// Constraint is an extra assertion on incoming requests, evaluated as a
// jsonpath expression against the request. It is not written to pact files.
type Constraint struct {
	Path   string        `json:"path"`
	Format string        `json:"format"`
	Values []interface{} `json:"values"`
}

func (c Constraint) Key() string {
	return c.Path
}

type Interaction struct {
	Description    string
	ProviderStates []ProviderState
	Request        Request
	Response       Response
	Constraints    []Constraint
}

func newInteraction(description string) *Interaction {
	return &Interaction{
		Description: description,
		Request: Request{
			Method:  "GET",
			Path:    "/",
			Query:   map[string][]string{},
			Headers: map[string][]string{},
			Rules:   matching.NewRules(),
		},
		Response: Response{
			Status:  200,
			Headers: map[string][]string{},
			Rules:   matching.NewRules(),
		},
	}
}

// Key identifies an interaction within a pact: the description together with
// the provider states.
func (i *Interaction) Key() string {
	states, _ := json.Marshal(i.ProviderStates)
	return i.Description + "\x00" + string(states)
}

func (i *Interaction) Clone() *Interaction {
	out := &Interaction{
		Description: i.Description,
		Request: Request{
			Method:  i.Request.Method,
			Path:    i.Request.Path,
			Query:   cloneValues(i.Request.Query),
			Headers: cloneValues(i.Request.Headers),
			Body:    cloneBody(i.Request.Body),
			Rules:   i.Request.Rules.Clone(),
		},
		Response: Response{
			Status:  i.Response.Status,
			Headers: cloneValues(i.Response.Headers),
			Body:    cloneBody(i.Response.Body),
			Rules:   i.Response.Rules.Clone(),
		},
		Constraints: append([]Constraint(nil), i.Constraints...),
	}
	for _, s := range i.ProviderStates {
		state := ProviderState{Name: s.Name}
		if s.Params != nil {
			state.Params = make(map[string]interface{}, len(s.Params))
			for k, v := range s.Params {
				state.Params[k] = v
			}
		}
		out.ProviderStates = append(out.ProviderStates, state)
	}
	return out
}

func cloneValues(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func cloneBody(b matching.Body) matching.Body {
	b.Content = append([]byte(nil), b.Content...)
	return b
}

// contentType is the type a request or response body is compared and written
// as: the Content-Type header when present, otherwise the declared body type.
func contentType(headers map[string][]string, body matching.Body) string {
	if ct := matching.LookupHeader(headers, "Content-Type"); ct != "" {
		return ct
	}
	if body.ContentType != "" {
		return body.ContentType
	}
	if len(body.Content) > 0 {
		return matching.DetectContentType(body.Content)
	}
	return ""
}

func (r Request) ContentType() string {
	return contentType(r.Headers, r.Body)
}

func (r Response) ContentType() string {
	return contentType(r.Headers, r.Body)
}

func sortedHeaderNames(headers map[string][]string) []string {
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
