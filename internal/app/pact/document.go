package pact

import (
	"strings"
	"sync"

	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
)

type SpecificationVersion int

const (
	SpecificationVersionUnknown SpecificationVersion = iota
	V1
	V1_1
	V2
	V3
	V4
)

func (v SpecificationVersion) String() string {
	switch v {
	case V1:
		return "1.0.0"
	case V1_1:
		return "1.1.0"
	case V2:
		return "2.0.0"
	case V3:
		return "3.0.0"
	case V4:
		return "4.0"
	}
	return "unknown"
}

// ParseSpecificationVersion accepts the forms found in pact metadata and on the
// command line: "3.0.0", "3", "v3", "V3".
func ParseSpecificationVersion(s string) (SpecificationVersion, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "v")
	switch s {
	case "1", "1.0", "1.0.0":
		return V1, nil
	case "1.1", "1.1.0":
		return V1_1, nil
	case "2", "2.0", "2.0.0":
		return V2, nil
	case "3", "3.0", "3.0.0":
		return V3, nil
	case "4", "4.0", "4.0.0":
		return V4, nil
	}
	return SpecificationVersionUnknown, pacterror.Configurationf("unknown pact specification version %q", s)
}

func (v SpecificationVersion) supported() bool {
	return v >= V1 && v <= V3
}

// Document is a pact under construction: consumer and provider identity, the
// specification version and the registered interactions. It is safe for
// concurrent use.
type Document struct {
	mu           sync.RWMutex
	consumer     string
	provider     string
	version      SpecificationVersion
	interactions []*Interaction
}

func New(consumer, provider string, version SpecificationVersion) (*Document, error) {
	if strings.TrimSpace(consumer) == "" {
		return nil, pacterror.Configurationf("consumer name is required")
	}
	if strings.TrimSpace(provider) == "" {
		return nil, pacterror.Configurationf("provider name is required")
	}
	if version == SpecificationVersionUnknown {
		version = V3
	}
	if !version.supported() {
		return nil, pacterror.Configurationf("pact specification version %s is not supported", version)
	}
	return &Document{consumer: consumer, provider: provider, version: version}, nil
}

func (d *Document) Consumer() string {
	return d.consumer
}

func (d *Document) Provider() string {
	return d.provider
}

func (d *Document) SpecificationVersion() SpecificationVersion {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// SetSpecificationVersion changes the version of a document that has no
// interactions yet.
func (d *Document) SetSpecificationVersion(version SpecificationVersion) error {
	if !version.supported() {
		return pacterror.Configurationf("pact specification version %s is not supported", version)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.interactions) > 0 && version != d.version {
		return pacterror.Configurationf("cannot change the specification version once interactions are added")
	}
	d.version = version
	return nil
}

// NewInteraction registers an interaction with a default GET / request and a
// 200 response, returning a builder to shape it.
func (d *Document) NewInteraction(description string) *InteractionBuilder {
	i := newInteraction(description)
	d.mu.Lock()
	d.interactions = append(d.interactions, i)
	d.mu.Unlock()
	return &InteractionBuilder{doc: d, interaction: i}
}

// AddInteraction registers a complete interaction, replacing any interaction
// with the same description and provider states.
func (d *Document) AddInteraction(i *Interaction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for n, existing := range d.interactions {
		if existing.Key() == i.Key() {
			d.interactions[n] = i
			return
		}
	}
	d.interactions = append(d.interactions, i)
}

// Interactions returns copies of the registered interactions in registration
// order.
func (d *Document) Interactions() []*Interaction {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Interaction, 0, len(d.interactions))
	for _, i := range d.interactions {
		out = append(out, i.Clone())
	}
	return out
}

// Snapshot returns an independent copy of the document. Later builder calls on
// the original do not affect it.
func (d *Document) Snapshot() *Document {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := &Document{consumer: d.consumer, provider: d.provider, version: d.version}
	for _, i := range d.interactions {
		out.interactions = append(out.interactions, i.Clone())
	}
	return out
}

// Validate checks the document is complete enough to be served.
func (d *Document) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := map[string]bool{}
	for _, i := range d.interactions {
		if strings.TrimSpace(i.Description) == "" {
			return pacterror.Configurationf("interaction has no description")
		}
		if i.Request.Method == "" || !strings.HasPrefix(i.Request.Path, "/") {
			return pacterror.Configurationf("interaction %q has an incomplete request", i.Description)
		}
		if i.Response.Status < 100 || i.Response.Status > 599 {
			return pacterror.Configurationf("interaction %q has an invalid response status %d", i.Description, i.Response.Status)
		}
		if seen[i.Key()] {
			return pacterror.Configurationf("interaction %q is registered more than once with the same provider states", i.Description)
		}
		seen[i.Key()] = true
	}
	return nil
}
