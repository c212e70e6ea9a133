package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const unknownUpstreamError = "An unknown error occurred"

// UpstreamFailure is implemented by provider client errors that carry an HTTP
// status and the decoded error body returned by the remote API.
type UpstreamFailure interface {
	error
	StatusCode() int
	Payload() map[string]interface{}
}

// NewUpstreamError wraps a failed call to an external API. The message prefers
// the nested error.message of a structured payload, then the error's own text.
// The status is the upstream HTTP status when known, otherwise 500.
func NewUpstreamError(service string, err error) *Error {
	status := http.StatusInternalServerError
	detail := ""
	var payload map[string]interface{}

	var failure UpstreamFailure
	if errors.As(err, &failure) {
		if code := failure.StatusCode(); code > 0 {
			status = code
		}
		payload = failure.Payload()
		detail = payloadMessage(payload)
	}

	if detail == "" && err != nil {
		detail = err.Error()
	}
	if detail == "" {
		detail = unknownUpstreamError
	}

	upstream := ErrUpstream.
		WithMessage(fmt.Sprintf("Error communicating with the %s API: %s", service, detail)).
		WithStatus(status).
		WithDetails(payload)
	upstream.Cause = err
	return upstream
}

func payloadMessage(payload map[string]interface{}) string {
	nested, ok := payload["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	msg, _ := nested["message"].(string)
	return msg
}
