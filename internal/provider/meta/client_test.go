package meta

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyrelay/internal/config"
	"surveyrelay/pkg/circuitbreaker"
	apperrors "surveyrelay/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, breaker *circuitbreaker.Wrapper) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(config.MetaConfig{
		APIToken:       "meta-token",
		BaseURL:        srv.URL,
		APIVersion:     "v22.0",
		RequestTimeout: 2 * time.Second,
	}, breaker)
}

func TestPostSendsAuthenticatedJSON(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}, nil)

	err := c.Post(context.Background(), "/12345/messages", map[string]interface{}{"to": "5491122334455"})
	require.NoError(t, err)

	assert.Equal(t, "/v22.0/12345/messages", gotPath)
	assert.Equal(t, "Bearer meta-token", gotAuth)
	assert.Equal(t, "5491122334455", gotBody["to"])
}

func TestPostDecodesGraphErrorEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"(#132001) Template name does not exist in the translation","type":"OAuthException","code":132001}}`))
	}, nil)

	err := c.Post(context.Background(), "/12345/messages", map[string]interface{}{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode())
	assert.True(t, IsClientError(err))

	upstream := apperrors.NewUpstreamError("Meta", err)
	assert.Equal(t, "Error communicating with the Meta API: (#132001) Template name does not exist in the translation", upstream.Message)
	assert.Equal(t, http.StatusBadRequest, upstream.Status)
}

func TestPostNonJSONErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}, nil)

	err := c.Post(context.Background(), "/1/messages", map[string]interface{}{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Nil(t, apiErr.Payload())
	assert.False(t, IsClientError(err))
	assert.Equal(t, "Error communicating with the Meta API: Request failed with status code 502",
		apperrors.NewUpstreamError("Meta", err).Message)
}

func TestPostThroughOpenBreaker(t *testing.T) {
	calls := 0
	cfg := circuitbreaker.DefaultConfig("meta-test")
	cfg.MinRequests = 1
	cfg.FailureRatio = 1
	cfg.Timeout = time.Minute
	breaker := circuitbreaker.NewWrapper(cfg)

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}, breaker)

	require.Error(t, c.Post(context.Background(), "/1/messages", map[string]interface{}{}))
	require.Error(t, c.Post(context.Background(), "/1/messages", map[string]interface{}{}))
	assert.Equal(t, 1, calls)
	assert.True(t, breaker.IsOpen())
}
