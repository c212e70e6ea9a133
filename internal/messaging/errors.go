package messaging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedFlowResponse is returned when a schema-valid Meta flow reply
// carries a response_json that is not a JSON object.
var ErrMalformedFlowResponse = errors.New("malformed flow response_json")

// ValidationError lists the schema violations of an inbound payload.
type ValidationError struct {
	Payload string
	Issues  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Payload, strings.Join(e.Issues, "; "))
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func newValidationError(payload string, err error) *ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Payload: payload, Issues: []string{err.Error()}}
	}

	issues := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		issue := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			issue = fmt.Sprintf("%s failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		issues = append(issues, issue)
	}
	return &ValidationError{Payload: payload, Issues: issues}
}
