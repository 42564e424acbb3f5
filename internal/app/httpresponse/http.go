package httpresponse

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/form3tech-oss/pact-mock/internal/app/matching"
)

type APIError struct {
	ErrorMessage string `json:"error"`
}

func Error(error string) *APIError {
	log.Error(error)
	e := &APIError{
		ErrorMessage: error,
	}
	return e
}

func Errorf(error string, a ...interface{}) *APIError {
	return Error(fmt.Sprintf(error, a...))
}

// Diagnostic is the body a mock server returns for a request it could not
// match to an interaction.
type Diagnostic struct {
	ErrorMessage string              `json:"error"`
	Mismatches   []matching.Mismatch `json:"mismatches"`
}

func Mismatch(message string, mismatches []matching.Mismatch) *Diagnostic {
	if mismatches == nil {
		mismatches = []matching.Mismatch{}
	}
	return &Diagnostic{
		ErrorMessage: message,
		Mismatches:   mismatches,
	}
}
