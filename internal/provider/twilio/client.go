package twilio

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioopenapi "github.com/twilio/twilio-go/rest/api/v2010"

	"surveyrelay/internal/config"
	"surveyrelay/internal/constants"
	"surveyrelay/pkg/circuitbreaker"
	"surveyrelay/pkg/metrics"
	"surveyrelay/pkg/tracing"
)

// TemplateMessage is the content-template send request understood by Twilio's
// WhatsApp sender.
type TemplateMessage struct {
	ContentSID string
	From       string
	To         string
}

// APIError wraps a Twilio REST error so the upstream classifier can read its
// HTTP status and message.
type APIError struct {
	Err *twilioclient.TwilioRestError
}

func (e *APIError) Error() string {
	return e.Err.Error()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) StatusCode() int {
	return e.Err.Status
}

func (e *APIError) Payload() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"message":   e.Err.Message,
			"code":      e.Err.Code,
			"more_info": e.Err.MoreInfo,
		},
	}
}

type messageCreator interface {
	CreateMessage(params *twilioopenapi.CreateMessageParams) (*twilioopenapi.ApiV2010Message, error)
}

type Client struct {
	api            messageCreator
	statusCallback string
	breaker        *circuitbreaker.Wrapper
}

// New builds a client authenticated with the account SID and auth token.
// breaker may be nil.
func New(cfg config.TwilioConfig, breaker *circuitbreaker.Wrapper) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	rest.SetTimeout(timeout)

	return newClient(rest.Api, cfg.StatusCallbackURL, breaker)
}

func newClient(api messageCreator, statusCallback string, breaker *circuitbreaker.Wrapper) *Client {
	return &Client{
		api:            api,
		statusCallback: statusCallback,
		breaker:        breaker,
	}
}

// CreateMessage sends msg and returns the SID of the queued message.
func (c *Client) CreateMessage(ctx context.Context, msg TemplateMessage) (sid string, err error) {
	ctx, end := tracing.StartClientSpan(ctx, constants.ServiceNameTwilio, "create_message")
	defer func() { end(err) }()

	start := time.Now()
	defer func() { metrics.ObserveExternalAPIDuration(constants.ServiceNameTwilio, time.Since(start)) }()

	send := func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sid, err = c.create(msg)
		return err
	}

	if c.breaker == nil {
		err = send(ctx)
	} else {
		err = c.breaker.Do(ctx, send)
	}
	return sid, err
}

func (c *Client) create(msg TemplateMessage) (string, error) {
	params := new(twilioopenapi.CreateMessageParams).
		SetTo(msg.To).
		SetFrom(msg.From).
		SetContentSid(msg.ContentSID)
	if c.statusCallback != "" {
		params = params.SetStatusCallback(c.statusCallback)
	}

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) {
			return "", &APIError{Err: restErr}
		}
		return "", err
	}

	if resp == nil || resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

// IsClientError reports whether err is a 4xx Twilio answer other than 429.
func IsClientError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	status := apiErr.StatusCode()
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError &&
		status != http.StatusTooManyRequests
}

// NewSignatureValidator returns a validator for X-Twilio-Signature headers
// signed with authToken.
func NewSignatureValidator(authToken string) *twilioclient.RequestValidator {
	v := twilioclient.NewRequestValidator(authToken)
	return &v
}
