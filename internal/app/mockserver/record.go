package mockserver

import (
	"time"

	"github.com/form3tech-oss/pact-mock/internal/app/matching"
	"github.com/form3tech-oss/pact-mock/internal/app/metrics"
)

type RecordType string

const (
	// RequestMismatch is a request routed to an interaction that did not match it.
	RequestMismatch RecordType = "request-mismatch"
	// MissingRequest is an interaction that never received a matching request.
	MissingRequest RecordType = "missing-request"
	// UnexpectedRequest is a request no interaction shares a method and path with.
	UnexpectedRequest RecordType = "unexpected-request"
)

type MismatchRecord struct {
	Type        RecordType             `json:"type"`
	Method      string                 `json:"method"`
	Path        string                 `json:"path"`
	Interaction string                 `json:"interaction,omitempty"`
	Mismatches  []matching.Mismatch    `json:"mismatches,omitempty"`
	Request     map[string]interface{} `json:"request,omitempty"`
}

// RecordedRequest is a request as the mock server received it, with the
// outcome of matching it.
type RecordedRequest struct {
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	Query       map[string][]string `json:"query,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`
	Body        []byte              `json:"body,omitempty"`
	Outcome     metrics.Outcome     `json:"outcome"`
	Interaction string              `json:"interaction,omitempty"`
	ReceivedAt  time.Time           `json:"receivedAt"`
}
