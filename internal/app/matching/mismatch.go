package matching

import (
	"encoding/json"
	"fmt"
)

type MismatchType string

const (
	QueryMismatch         MismatchType = "QueryMismatch"
	HeaderMismatch        MismatchType = "HeaderMismatch"
	BodyTypeMismatch      MismatchType = "BodyTypeMismatch"
	BodyMismatch          MismatchType = "BodyMismatch"
	MethodMismatch        MismatchType = "MethodMismatch"
	PathMismatch          MismatchType = "PathMismatch"
	StatusMismatch        MismatchType = "StatusMismatch"
	ConstraintMismatch    MismatchType = "ConstraintMismatch"
	MatchingInternalError MismatchType = "MatchingInternalError"
)

// Mismatch is one point of divergence between expected and actual traffic.
// Key holds the header name, query parameter or body path depending on Type.
type Mismatch struct {
	Type         MismatchType
	Key          string
	Expected     string
	Actual       string
	Message      string
	ExpectedBody *string
	ActualBody   *string
}

// MarshalJSON writes the fields each mismatch type carries on the wire:
// `parameter` for queries, `key` for headers and `path` for bodies.
func (m Mismatch) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"type":     m.Type,
		"mismatch": m.Message,
	}
	switch m.Type {
	case QueryMismatch:
		out["parameter"] = m.Key
		out["expected"] = m.Expected
		out["actual"] = m.Actual
	case HeaderMismatch:
		out["key"] = m.Key
		out["expected"] = m.Expected
		out["actual"] = m.Actual
	case BodyTypeMismatch:
		out["expected"] = m.Expected
		out["actual"] = m.Actual
		out["expectedBody"] = m.ExpectedBody
		out["actualBody"] = m.ActualBody
	case BodyMismatch, ConstraintMismatch:
		out["path"] = m.Key
		out["expected"] = m.Expected
		out["actual"] = m.Actual
	case MethodMismatch, PathMismatch, StatusMismatch:
		out["expected"] = m.Expected
		out["actual"] = m.Actual
	default:
		if m.Key != "" {
			out["path"] = m.Key
		}
	}
	return json.Marshal(out)
}

func (m *Mismatch) UnmarshalJSON(data []byte) error {
	var aux struct {
		Type         MismatchType `json:"type"`
		Key          string       `json:"key"`
		Parameter    string       `json:"parameter"`
		Path         string       `json:"path"`
		Expected     string       `json:"expected"`
		Actual       string       `json:"actual"`
		Mismatch     string       `json:"mismatch"`
		ExpectedBody *string      `json:"expectedBody"`
		ActualBody   *string      `json:"actualBody"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Mismatch{
		Type:         aux.Type,
		Key:          firstNonEmpty(aux.Key, aux.Parameter, aux.Path),
		Expected:     aux.Expected,
		Actual:       aux.Actual,
		Message:      aux.Mismatch,
		ExpectedBody: aux.ExpectedBody,
		ActualBody:   aux.ActualBody,
	}
	return nil
}

func (m Mismatch) String() string {
	if m.Key == "" {
		return fmt.Sprintf("%s: %s", m.Type, m.Message)
	}
	return fmt.Sprintf("%s (%s): %s", m.Type, m.Key, m.Message)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func internalMismatch(key string, err error) Mismatch {
	return Mismatch{
		Type:    MatchingInternalError,
		Key:     key,
		Message: fmt.Sprintf("Internal error while matching: %s", err),
	}
}
