package pactmock

import (
	"context"

	"github.com/form3tech-oss/pact-mock/internal/app/metrics"
	"github.com/form3tech-oss/pact-mock/internal/app/mockserver"
	"github.com/form3tech-oss/pact-mock/internal/app/pact"
	"github.com/form3tech-oss/pact-mock/internal/app/pactfile"
)

type (
	SpecificationVersion = pact.SpecificationVersion
	InteractionBuilder   = pact.InteractionBuilder
	Interaction          = pact.Interaction
	Options              = mockserver.Options
	MismatchRecord       = mockserver.MismatchRecord
	RecordedRequest      = mockserver.RecordedRequest
	MockServer           = mockserver.Summary
)

const (
	V2 = pact.V2
	V3 = pact.V3
)

// Pact is a contract between a consumer and a provider under construction.
type Pact struct {
	doc *pact.Document
}

func NewPact(consumer, provider string, version SpecificationVersion) (*Pact, error) {
	doc, err := pact.New(consumer, provider, version)
	if err != nil {
		return nil, err
	}
	return &Pact{doc: doc}, nil
}

// LoadPact reads a pact file, JSON or YAML.
func LoadPact(path string) (*Pact, error) {
	doc, err := pactfile.Load(path)
	if err != nil {
		return nil, err
	}
	return &Pact{doc: doc}, nil
}

func (p *Pact) NewInteraction(description string) *InteractionBuilder {
	return p.doc.NewInteraction(description)
}

func (p *Pact) Consumer() string {
	return p.doc.Consumer()
}

func (p *Pact) Provider() string {
	return p.doc.Provider()
}

func (p *Pact) Interactions() []*Interaction {
	return p.doc.Interactions()
}

func (p *Pact) MarshalJSON() ([]byte, error) {
	return p.doc.MarshalJSON()
}

// Mock runs mock servers in process.
type Mock struct {
	manager *mockserver.Manager
	metrics *metrics.Metrics
	options Options
}

func NewMock(options Options) *Mock {
	m := metrics.New()
	return &Mock{
		manager: mockserver.NewManager(m),
		metrics: m,
		options: options,
	}
}

// CreateMockServer serves the interactions registered on p so far and returns
// the bound port. Interactions added to p afterwards are not served.
func (m *Mock) CreateMockServer(p *Pact, host string, port int) (int, error) {
	return m.manager.Create(p.doc, host, port, m.options)
}

// MatchedSuccessfully is true when every interaction was requested and no
// mismatch was recorded.
func (m *Mock) MatchedSuccessfully(port int) (bool, error) {
	s, err := m.manager.Get(port)
	if err != nil {
		return false, err
	}
	return s.MatchedSuccessfully(), nil
}

func (m *Mock) Mismatches(port int) ([]MismatchRecord, error) {
	s, err := m.manager.Get(port)
	if err != nil {
		return nil, err
	}
	return s.Mismatches(), nil
}

func (m *Mock) Requests(port int) ([]RecordedRequest, error) {
	s, err := m.manager.Get(port)
	if err != nil {
		return nil, err
	}
	return s.Requests(), nil
}

func (m *Mock) MockServers() []MockServer {
	servers := m.manager.Servers()
	summaries := make([]MockServer, 0, len(servers))
	for _, s := range servers {
		summaries = append(summaries, s.Summary())
	}
	return summaries
}

// WaitForInteraction blocks until the interaction was matched count times.
func (m *Mock) WaitForInteraction(port int, description string, count int) error {
	s, err := m.manager.Get(port)
	if err != nil {
		return err
	}
	return s.WaitForInteractions(description, count)
}

func (m *Mock) WaitForAll(port int) error {
	return m.WaitForInteraction(port, "", 1)
}

// WritePactFile writes the pact served on port to dir whether or not the
// traffic matched.
func (m *Mock) WritePactFile(port int, dir string, overwrite bool) (string, error) {
	return m.manager.WritePactFile(port, dir, overwrite)
}

func (m *Mock) Cleanup(ctx context.Context, port int) error {
	return m.manager.Cleanup(ctx, port)
}

func (m *Mock) CleanupAll(ctx context.Context) error {
	return m.manager.CleanupAll(ctx)
}

// Metrics exposes the prometheus collectors of the mock servers.
func (m *Mock) Metrics() *metrics.Metrics {
	return m.metrics
}
