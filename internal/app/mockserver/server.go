package mockserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/form3tech-oss/pact-mock/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-mock/internal/app/matching"
	"github.com/form3tech-oss/pact-mock/internal/app/metrics"
	"github.com/form3tech-oss/pact-mock/internal/app/pact"
	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
)

const (
	defaultDelay    = 500 * time.Millisecond
	defaultDuration = 15 * time.Second
)

type Options struct {
	CORS         bool          // answer CORS preflight requests
	TLSCertFile  string        // serve HTTPS with this certificate
	TLSKeyFile   string        // and this key
	WaitDelay    time.Duration // delay between checks in WaitForInteractions
	WaitDuration time.Duration // how long WaitForInteractions waits
}

func (o Options) withDefaults() Options {
	if o.WaitDelay == 0 {
		o.WaitDelay = defaultDelay
	}
	if o.WaitDuration == 0 {
		o.WaitDuration = defaultDuration
	}
	return o
}

// Server replays the interactions of a pact document on one port and records
// how every request it receives matched them.
type Server struct {
	port         int
	doc          *pact.Document
	interactions []*pact.Interaction
	options      Options
	metrics      *metrics.Metrics
	httpServer   *http.Server
	notify       *notify

	mu       sync.Mutex
	records  []MismatchRecord
	requests []RecordedRequest
	matched  []int
}

func newServer(doc *pact.Document, port int, options Options, m *metrics.Metrics) *Server {
	interactions := doc.Interactions()
	s := &Server{
		port:         port,
		doc:          doc,
		interactions: interactions,
		options:      options.withDefaults(),
		metrics:      m,
		notify:       newNotify(),
		matched:      make([]int, len(interactions)),
	}
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if s.options.CORS {
		e.Use(echo.WrapMiddleware(cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
				http.MethodDelete, http.MethodHead, http.MethodOptions,
			},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler))
	}
	e.Any("/*", s.handle)
	return e
}

func (s *Server) Port() int {
	return s.port
}

// Document returns a copy of the pact document being served.
func (s *Server) Document() *pact.Document {
	return s.doc.Snapshot()
}

// Summary describes a running mock server.
type Summary struct {
	Port         int    `json:"port"`
	Consumer     string `json:"consumer"`
	Provider     string `json:"provider"`
	Interactions int    `json:"interactions"`
	Matched      bool   `json:"matched"`
}

func (s *Server) Summary() Summary {
	return Summary{
		Port:         s.port,
		Consumer:     s.doc.Consumer(),
		Provider:     s.doc.Provider(),
		Interactions: len(s.interactions),
		Matched:      s.MatchedSuccessfully(),
	}
}

func (s *Server) handle(c echo.Context) error {
	start := time.Now()
	req := c.Request()
	logger := log.WithFields(log.Fields{"port": s.port, "method": req.Method, "path": req.URL.Path})

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read request body. %s", err.Error()))
	}

	actual := pact.Request{
		Method:  req.Method,
		Path:    req.URL.Path,
		Query:   req.URL.Query(),
		Headers: req.Header.Clone(),
		Body:    matching.Body{Content: data, Present: len(data) > 0},
	}

	result := s.match(actual)
	s.metrics.ObserveRequest(s.port, result.outcome, time.Since(start))

	switch result.outcome {
	case metrics.OutcomeMatched:
		logger.WithField("interaction", result.interaction.Description).Info("request matched")
		s.notify.Notify()
		return writeResponse(c, result.interaction.Response)
	case metrics.OutcomeUnexpected:
		logger.Warn("unexpected request")
		return c.JSON(http.StatusInternalServerError,
			httpresponse.Mismatch(fmt.Sprintf("Unexpected request : %s %s", req.Method, req.URL.Path), nil))
	}

	for _, m := range result.mismatches {
		logger.WithField("interaction", result.interaction.Description).Info(m.String())
	}
	return c.JSON(http.StatusInternalServerError,
		httpresponse.Mismatch(fmt.Sprintf("Request-Mismatch : %s %s", req.Method, req.URL.Path), result.mismatches))
}

type matchResult struct {
	outcome     metrics.Outcome
	interaction *pact.Interaction
	mismatches  []matching.Mismatch
}

// match selects the interaction with the fewest mismatches among those with
// the request's method and path and records the outcome. The earliest
// registered interaction wins a tie.
func (s *Server) match(actual pact.Request) matchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := -1
	var bestMismatches []matching.Mismatch
	var document requestDocument
	for n, i := range s.interactions {
		if !i.MatchesRoute(actual.Method, actual.Path) {
			continue
		}
		mismatches := i.MatchRequest(actual)
		if len(i.Constraints) > 0 {
			if document == nil {
				document = newRequestDocument(actual)
			}
			mismatches = append(mismatches, checkConstraints(i.Constraints, document)...)
		}
		if best < 0 || len(mismatches) < len(bestMismatches) {
			best, bestMismatches = n, mismatches
		}
		if len(mismatches) == 0 {
			break
		}
	}

	recorded := RecordedRequest{
		Method:     actual.Method,
		Path:       actual.Path,
		Query:      actual.Query,
		Headers:    actual.Headers,
		Body:       actual.Body.Content,
		ReceivedAt: time.Now(),
	}

	if best < 0 {
		recorded.Outcome = metrics.OutcomeUnexpected
		s.requests = append(s.requests, recorded)
		s.records = append(s.records, MismatchRecord{
			Type:    UnexpectedRequest,
			Method:  actual.Method,
			Path:    actual.Path,
			Request: pact.MarshalRequest(actual, s.doc.SpecificationVersion()),
		})
		return matchResult{outcome: metrics.OutcomeUnexpected}
	}

	interaction := s.interactions[best]
	recorded.Interaction = interaction.Description
	if len(bestMismatches) == 0 {
		recorded.Outcome = metrics.OutcomeMatched
		s.requests = append(s.requests, recorded)
		s.matched[best]++
		return matchResult{outcome: metrics.OutcomeMatched, interaction: interaction}
	}

	recorded.Outcome = metrics.OutcomeMismatched
	s.requests = append(s.requests, recorded)
	s.records = append(s.records, MismatchRecord{
		Type:        RequestMismatch,
		Method:      actual.Method,
		Path:        actual.Path,
		Interaction: interaction.Description,
		Mismatches:  bestMismatches,
	})
	return matchResult{outcome: metrics.OutcomeMismatched, interaction: interaction, mismatches: bestMismatches}
}

func writeResponse(c echo.Context, r pact.Response) error {
	header := c.Response().Header()
	for name, values := range r.Headers {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	if r.Body.Present && header.Get(echo.HeaderContentType) == "" {
		if contentType := r.ContentType(); contentType != "" {
			header.Set(echo.HeaderContentType, contentType)
		}
	}

	c.Response().WriteHeader(r.Status)
	if len(r.Body.Content) == 0 {
		return nil
	}
	_, err := c.Response().Write(r.Body.Content)
	return err
}

// Mismatches returns the mismatches recorded so far in arrival order, followed
// by a missing-request entry for every interaction that was never matched.
func (s *Server) Mismatches() []MismatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MismatchRecord, 0, len(s.records))
	out = append(out, s.records...)
	for n, i := range s.interactions {
		if s.matched[n] > 0 {
			continue
		}
		out = append(out, MismatchRecord{
			Type:        MissingRequest,
			Method:      i.Request.Method,
			Path:        i.Request.Path,
			Interaction: i.Description,
			Request:     pact.MarshalRequest(i.Request, s.doc.SpecificationVersion()),
		})
	}
	return out
}

// MatchedSuccessfully reports whether every interaction was matched and no
// request failed to match.
func (s *Server) MatchedSuccessfully() bool {
	return len(s.Mismatches()) == 0
}

func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// WaitForInteractions blocks until the interactions with the given
// description, or every interaction when description is empty, were matched at
// least count times.
func (s *Server) WaitForInteractions(description string, count int) error {
	if count < 1 {
		count = 1
	}
	if description != "" && !s.hasInteraction(description) {
		return pacterror.Configurationf("cannot wait for interaction '%s', interaction not found", description)
	}

	logger := log.WithFields(log.Fields{"port": s.port, "wait_for": description, "count": count})
	logger.Info("waiting")
	retryFor(func(timeLeft time.Duration) bool {
		logger.WithField("time_remaining", timeLeft).Debug("retry")
		if s.received(description, count) {
			return true
		}
		if timeLeft > 0 {
			s.notify.Wait(timeLeft)
		}
		return false
	}, s.options.WaitDelay, s.options.WaitDuration)

	if !s.received(description, count) {
		for _, r := range s.Mismatches() {
			if r.Type == MissingRequest {
				logger.Infof("'%s' has no requests", r.Interaction)
			}
		}
		return pacterror.InteractionsTimeout("timeout waiting for interactions to be met on port %d", s.port)
	}
	return nil
}

func (s *Server) hasInteraction(description string) bool {
	for _, i := range s.interactions {
		if i.Description == description {
			return true
		}
	}
	return false
}

func (s *Server) received(description string, count int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if description == "" {
		for _, n := range s.matched {
			if n < count {
				return false
			}
		}
		return true
	}

	total := 0
	for n, i := range s.interactions {
		if i.Description == description {
			total += s.matched[n]
		}
	}
	return total >= count
}

func (s *Server) shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
