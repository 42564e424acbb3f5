package pact

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/form3tech-oss/pact-mock/internal/app/matching"
	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
)

const multipartContentTypeRegex = `multipart/form-data;(\s*charset=[^;]*;)?\s*boundary=.*`

// InteractionBuilder shapes an interaction already registered in its document.
// Header and query setters address a (name, index) slot: an index below the
// number of values overwrites, any other index appends. Setting a body again
// replaces the previous body and its rules, along with a Content-Type header the
// previous body set. A Content-Type header set explicitly is never replaced.
type InteractionBuilder struct {
	doc         *Document
	interaction *Interaction
	// autoContentType is indexed by side.
	autoContentType [2]bool
}

func (b *InteractionBuilder) update(fn func(i *Interaction)) *InteractionBuilder {
	b.doc.mu.Lock()
	defer b.doc.mu.Unlock()
	fn(b.interaction)
	return b
}

// Interaction returns a copy of the interaction being built.
func (b *InteractionBuilder) Interaction() *Interaction {
	b.doc.mu.RLock()
	defer b.doc.mu.RUnlock()
	return b.interaction.Clone()
}

func (b *InteractionBuilder) UponReceiving(description string) *InteractionBuilder {
	return b.update(func(i *Interaction) {
		i.Description = description
	})
}

func (b *InteractionBuilder) Given(state string) *InteractionBuilder {
	return b.update(func(i *Interaction) {
		i.ProviderStates = append(i.ProviderStates, ProviderState{Name: state})
	})
}

// GivenWithParam adds a parameter to the provider state, creating the state if
// it is not there yet.
func (b *InteractionBuilder) GivenWithParam(state, key string, value interface{}) *InteractionBuilder {
	return b.update(func(i *Interaction) {
		for n := range i.ProviderStates {
			if i.ProviderStates[n].Name == state {
				if i.ProviderStates[n].Params == nil {
					i.ProviderStates[n].Params = map[string]interface{}{}
				}
				i.ProviderStates[n].Params[key] = value
				return
			}
		}
		i.ProviderStates = append(i.ProviderStates, ProviderState{
			Name:   state,
			Params: map[string]interface{}{key: value},
		})
	})
}

// WithRequest sets the method and path. The path may be a matcher annotation.
func (b *InteractionBuilder) WithRequest(method, path string) *InteractionBuilder {
	value, rules := compileOrLiteral(path)
	return b.update(func(i *Interaction) {
		i.Request.Method = strings.ToUpper(method)
		i.Request.Path = value
		if rules != nil {
			i.Request.Rules.Set(matching.CategoryPath, "", rules)
		} else {
			i.Request.Rules.ClearCategory(matching.CategoryPath)
		}
	})
}

func (b *InteractionBuilder) WithRequestHeader(name string, index int, value string) *InteractionBuilder {
	literal, rules := compileOrLiteral(value)
	return b.update(func(i *Interaction) {
		key := setSlot(i.Request.Headers, headerName(i.Request.Headers, name), index, literal)
		if rules != nil {
			i.Request.Rules.Set(matching.CategoryHeader, key, rules)
		}
		b.explicitHeader(requestSide, name)
	})
}

func (b *InteractionBuilder) WithResponseHeader(name string, index int, value string) *InteractionBuilder {
	literal, rules := compileOrLiteral(value)
	return b.update(func(i *Interaction) {
		key := setSlot(i.Response.Headers, headerName(i.Response.Headers, name), index, literal)
		if rules != nil {
			i.Response.Rules.Set(matching.CategoryHeader, key, rules)
		}
		b.explicitHeader(responseSide, name)
	})
}

func (b *InteractionBuilder) WithQuery(name string, index int, value string) *InteractionBuilder {
	literal, rules := compileOrLiteral(value)
	return b.update(func(i *Interaction) {
		setSlot(i.Request.Query, name, index, literal)
		if rules != nil {
			i.Request.Rules.Set(matching.CategoryQuery, name, rules)
		}
	})
}

func (b *InteractionBuilder) WithStatus(status int) *InteractionBuilder {
	return b.update(func(i *Interaction) {
		i.Response.Status = status
	})
}

// WithConstraint adds a jsonpath assertion on incoming requests; the expected
// text is fmt.Sprintf(format, values...).
func (b *InteractionBuilder) WithConstraint(path, format string, values ...interface{}) *InteractionBuilder {
	return b.update(func(i *Interaction) {
		c := Constraint{Path: path, Format: format, Values: values}
		for n := range i.Constraints {
			if i.Constraints[n].Key() == c.Key() {
				i.Constraints[n] = c
				return
			}
		}
		i.Constraints = append(i.Constraints, c)
	})
}

// WithRequestBody sets a textual request body. JSON bodies are scanned for
// matcher annotations.
func (b *InteractionBuilder) WithRequestBody(body, contentType string) error {
	return b.setBody(requestSide, []byte(body), contentType, true)
}

func (b *InteractionBuilder) WithResponseBody(body, contentType string) error {
	return b.setBody(responseSide, []byte(body), contentType, true)
}

func (b *InteractionBuilder) WithRequestBinaryBody(body []byte, contentType string) error {
	return b.setBody(requestSide, body, contentType, false)
}

func (b *InteractionBuilder) WithResponseBinaryBody(body []byte, contentType string) error {
	return b.setBody(responseSide, body, contentType, false)
}

// WithRequestMultipartBody sets a multipart/form-data request body with a single
// file part read from filePath. The actual boundary and part content are matched
// by rules rather than byte for byte.
func (b *InteractionBuilder) WithRequestMultipartBody(contentType, filePath, partName string) error {
	return b.setMultipartBody(requestSide, contentType, filePath, partName)
}

func (b *InteractionBuilder) WithResponseMultipartBody(contentType, filePath, partName string) error {
	return b.setMultipartBody(responseSide, contentType, filePath, partName)
}

type side int

const (
	requestSide side = iota
	responseSide
)

func (i *Interaction) parts(s side) (map[string][]string, *matching.Body, *matching.Rules) {
	if s == requestSide {
		return i.Request.Headers, &i.Request.Body, i.Request.Rules
	}
	return i.Response.Headers, &i.Response.Body, i.Response.Rules
}

func (b *InteractionBuilder) setBody(s side, content []byte, contentType string, textual bool) error {
	b.doc.mu.Lock()
	defer b.doc.mu.Unlock()

	headers, body, rules := b.interaction.parts(s)
	effective := contentType
	if header := matching.LookupHeader(headers, "Content-Type"); header != "" && !b.autoContentType[s] {
		effective = header
	}
	if effective == "" {
		if textual {
			effective = matching.DetectContentType(content)
		} else {
			effective = matching.MediaTypeBinary
		}
	}

	bodyRules := matching.NewRules()
	if textual && matching.IsJSON(effective) && len(bytes.TrimSpace(content)) > 0 {
		compiled, err := compileJSONBody(content, bodyRules)
		if err != nil {
			return err
		}
		content = compiled
	}

	if b.autoContentType[s] {
		b.dropContentType(s)
	}
	*body = matching.Body{Content: content, ContentType: contentType, Present: true}
	if body.ContentType == "" {
		body.ContentType = effective
	}
	if matching.LookupHeader(headers, "Content-Type") == "" && body.ContentType != "" {
		headers["Content-Type"] = []string{body.ContentType}
		b.autoContentType[s] = true
	}
	rules.ClearCategory(matching.CategoryBody)
	for key, list := range bodyRules.Category(matching.CategoryBody) {
		rules.Set(matching.CategoryBody, key, list)
	}
	return nil
}

func (b *InteractionBuilder) setMultipartBody(s side, contentType, filePath, partName string) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return pacterror.IO(err, "reading multipart file %s", filePath)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(partName), escapeQuotes(filepath.Base(filePath))))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return pacterror.MalformedBody(err, "creating multipart body")
	}
	if _, err := part.Write(content); err != nil {
		return pacterror.MalformedBody(err, "creating multipart body")
	}
	if err := w.Close(); err != nil {
		return pacterror.MalformedBody(err, "creating multipart body")
	}

	b.doc.mu.Lock()
	defer b.doc.mu.Unlock()
	headers, body, rules := b.interaction.parts(s)
	mediaType := w.FormDataContentType()
	*body = matching.Body{Content: buf.Bytes(), ContentType: mediaType, Present: true}

	// The boundary is generated, so the header is always replaced.
	headers[headerName(headers, "Content-Type")] = []string{mediaType}
	rules.Set(matching.CategoryHeader, "Content-Type", matching.NewRuleList(matching.Rule{
		Match: matching.MatchRegex,
		Regex: multipartContentTypeRegex,
	}))
	b.autoContentType[s] = true
	rules.ClearCategory(matching.CategoryBody)
	rules.Add(matching.CategoryBody, matching.FieldExpr("$", partName), matching.Rule{
		Match: matching.MatchContentType,
		Value: contentType,
	})
	return nil
}

func (b *InteractionBuilder) explicitHeader(s side, name string) {
	if strings.EqualFold(name, "Content-Type") {
		b.autoContentType[s] = false
	}
}

// dropContentType removes a Content-Type header set by a previous body, with
// the rule a multipart body adds for it. Callers hold the document lock.
func (b *InteractionBuilder) dropContentType(s side) {
	headers, _, rules := b.interaction.parts(s)
	delete(headers, headerName(headers, "Content-Type"))
	rules.Remove(matching.CategoryHeader, "Content-Type")
	b.autoContentType[s] = false
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// compileOrLiteral falls back to the raw value when an annotation cannot be
// compiled.
func compileOrLiteral(value string) (string, *matching.RuleList) {
	literal, rules, err := compileString(value)
	if err != nil {
		log.WithError(err).Warnf("ignoring malformed matcher in value %q", value)
		return value, nil
	}
	return literal, rules
}

// headerName returns the existing spelling of a header name, if any.
func headerName(headers map[string][]string, name string) string {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return k
		}
	}
	return name
}

func setSlot(values map[string][]string, name string, index int, value string) string {
	current := values[name]
	if index >= 0 && index < len(current) {
		current[index] = value
	} else {
		current = append(current, value)
	}
	values[name] = current
	return name
}
