package meta

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"

	"surveyrelay/internal/config"
	"surveyrelay/internal/constants"
	"surveyrelay/pkg/circuitbreaker"
	"surveyrelay/pkg/metrics"
	"surveyrelay/pkg/tracing"
)

// APIError is a non-2xx answer from the Graph API. Body holds the decoded
// error envelope, e.g. {"error": {"message": "...", "code": 100}}.
type APIError struct {
	Status int
	Body   map[string]interface{}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Request failed with status code %d", e.Status)
}

func (e *APIError) StatusCode() int {
	return e.Status
}

func (e *APIError) Payload() map[string]interface{} {
	return e.Body
}

// Client is an authenticated request executor for the WhatsApp Cloud API.
type Client struct {
	http    *req.Client
	breaker *circuitbreaker.Wrapper
}

// New builds a client rooted at cfg.GraphURL(). breaker may be nil.
func New(cfg config.MetaConfig, breaker *circuitbreaker.Wrapper) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	httpClient := req.C().
		SetBaseURL(cfg.GraphURL()).
		SetCommonBearerAuthToken(cfg.APIToken).
		SetCommonHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal)

	return &Client{
		http:    httpClient,
		breaker: breaker,
	}
}

// Post sends body as JSON to path, relative to the versioned Graph API root.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (err error) {
	ctx, end := tracing.StartClientSpan(ctx, constants.ServiceNameMeta, "post")
	defer func() { end(err) }()

	start := time.Now()
	defer func() { metrics.ObserveExternalAPIDuration(constants.ServiceNameMeta, time.Since(start)) }()

	if c.breaker == nil {
		return c.post(ctx, path, body)
	}
	return c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.post(ctx, path, body)
	})
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("meta post %s: %w", path, err)
	}

	if !resp.IsErrorState() && resp.GetStatusCode() < http.StatusBadRequest {
		return nil
	}

	apiErr := &APIError{Status: resp.GetStatusCode()}
	if raw := resp.Bytes(); len(raw) > 0 {
		var decoded map[string]interface{}
		if json.Unmarshal(raw, &decoded) == nil {
			apiErr.Body = decoded
		}
	}
	return apiErr
}

// IsClientError reports whether err is a 4xx Graph API answer. Such answers
// mean the request itself was wrong and should not trip a circuit breaker.
func IsClientError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError &&
		apiErr.Status != http.StatusTooManyRequests
}
