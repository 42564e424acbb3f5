package mockserver

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/form3tech-oss/pact-mock/internal/app/metrics"
	"github.com/form3tech-oss/pact-mock/internal/app/pact"
	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
	"github.com/form3tech-oss/pact-mock/internal/app/pactfile"
)

const DefaultHost = "127.0.0.1"

// Manager owns the running mock servers, keyed by port.
type Manager struct {
	mu      sync.Mutex
	servers map[int]*Server
	writer  pactfile.Writer
	metrics *metrics.Metrics
}

func NewManager(m *metrics.Metrics) *Manager {
	return &Manager{
		servers: make(map[int]*Server),
		metrics: m,
	}
}

// Create starts a mock server for a snapshot of doc on host:port and returns
// the bound port. Port 0 picks a free port.
func (m *Manager) Create(doc *pact.Document, host string, port int, options Options) (int, error) {
	if err := doc.Validate(); err != nil {
		return 0, err
	}
	if host == "" {
		host = DefaultHost
	}

	var tlsConfig *tls.Config
	if options.TLSCertFile != "" || options.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(options.TLSCertFile, options.TLSKeyFile)
		if err != nil {
			return 0, pacterror.Configurationf("unable to load TLS certificate: %s", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return 0, pacterror.MockServerBind(err, "unable to start mock server on %s:%d", host, port)
	}
	bound := listener.Addr().(*net.TCPAddr).Port
	if _, exists := m.servers[bound]; exists {
		listener.Close()
		return 0, pacterror.MockServerBind(nil, "a mock server is already running on port %d", bound)
	}
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}

	s := newServer(doc.Snapshot(), bound, options, m.metrics)
	m.servers[bound] = s
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithField("port", bound).Error(err)
		}
	}()

	m.metrics.ServerStarted(len(s.interactions))
	log.WithFields(log.Fields{
		"port":         bound,
		"consumer":     doc.Consumer(),
		"provider":     doc.Provider(),
		"interactions": len(s.interactions),
	}).Info("mock server started")
	return bound, nil
}

func (m *Manager) Get(port int) (*Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.servers[port]
	if !ok {
		return nil, pacterror.UnknownMockServer(port)
	}
	return s, nil
}

// Servers returns the running mock servers ordered by port.
func (m *Manager) Servers() []*Server {
	m.mu.Lock()
	defer m.mu.Unlock()

	servers := make([]*Server, 0, len(m.servers))
	for _, s := range m.servers {
		servers = append(servers, s)
	}
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].port < servers[j].port
	})
	return servers
}

// Cleanup stops the mock server on port. Requests in flight are completed
// first; new connections are refused from the moment it is called.
func (m *Manager) Cleanup(ctx context.Context, port int) error {
	m.mu.Lock()
	s, ok := m.servers[port]
	delete(m.servers, port)
	m.mu.Unlock()

	if !ok {
		return pacterror.UnknownMockServer(port)
	}
	return m.stop(ctx, s)
}

func (m *Manager) CleanupAll(ctx context.Context) error {
	m.mu.Lock()
	servers := m.servers
	m.servers = make(map[int]*Server)
	m.mu.Unlock()

	var result error
	for _, s := range servers {
		if err := m.stop(ctx, s); err != nil && result == nil {
			result = err
		}
	}
	return result
}

func (m *Manager) stop(ctx context.Context, s *Server) error {
	defer m.metrics.ServerStopped(s.port, len(s.interactions))
	log.WithField("port", s.port).Info("stopping mock server")
	if err := s.shutdown(ctx); err != nil {
		return errors.Wrapf(err, "stopping mock server on port %d", s.port)
	}
	return nil
}

// WritePactFile writes the pact served on port to dir, merging with an
// existing file unless overwrite is set.
func (m *Manager) WritePactFile(port int, dir string, overwrite bool) (string, error) {
	s, err := m.Get(port)
	if err != nil {
		return "", err
	}
	path, err := m.writer.Write(s.doc, dir, overwrite)
	m.metrics.PactFileWritten(err)
	return path, err
}
