package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"surveyrelay/internal/config"
	"surveyrelay/internal/constants"
	"surveyrelay/internal/logger"
	"surveyrelay/internal/messaging"
	apperrors "surveyrelay/pkg/errors"
	"surveyrelay/pkg/metrics"
	"surveyrelay/pkg/retry"
	"surveyrelay/pkg/tracing"
)

const serviceDisplayName = "SendGrid"

// APIError is a non-2xx answer from the SendGrid v3 mail API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("SendGrid responded with status %d", e.Status)
}

func (e *APIError) StatusCode() int {
	return e.Status
}

// Payload adapts SendGrid's {"errors":[{"message":...}]} body to the
// {"error":{"message":...}} shape used for upstream errors.
func (e *APIError) Payload() map[string]interface{} {
	var body struct {
		Errors []struct {
			Message string `json:"message"`
			Field   string `json:"field"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err != nil || len(body.Errors) == 0 {
		return nil
	}
	return map[string]interface{}{
		"error": map[string]interface{}{
			"message": body.Errors[0].Message,
			"field":   body.Errors[0].Field,
		},
	}
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridNotifier emails normalized survey responses to the sales team.
type SendGridNotifier struct {
	client     mailSender
	from       *mail.Email
	recipients []string
	policy     retry.Policy
	logger     logger.Logger
}

var _ messaging.Notifier = (*SendGridNotifier)(nil)

func New(cfg config.EmailConfig, log logger.Logger) *SendGridNotifier {
	return newNotifier(sendgrid.NewSendClient(cfg.APIKey), cfg, log)
}

func newNotifier(client mailSender, cfg config.EmailConfig, log logger.Logger) *SendGridNotifier {
	if log == nil {
		log = logger.NopLogger()
	}

	policy := retry.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy = retry.Policy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
			Multiplier:      cfg.Retry.Multiplier,
			MaxElapsedTime:  cfg.Retry.MaxElapsedTime,
		}
	}

	return &SendGridNotifier{
		client:     client,
		from:       mail.NewEmail(cfg.FromName, cfg.FromAddress),
		recipients: cfg.Recipients,
		policy:     policy,
		logger:     log,
	}
}

// SendEnrichedEmail renders the survey response and sends it to every
// configured recipient in one message.
func (n *SendGridNotifier) SendEnrichedEmail(ctx context.Context, customerPhone string, response messaging.SurveyResponse) (err error) {
	ctx, end := tracing.StartClientSpan(ctx, constants.ServiceNameSendGrid, "send_enriched_email")
	defer func() { end(err) }()

	n.logger.InfowCtx(ctx, "Preparing enriched email", "customer_phone", customerPhone)

	html, err := renderBody(customerPhone, response)
	if err != nil {
		n.fail(ctx, customerPhone, err)
		return err
	}
	message := n.buildMessage(customerPhone, html)

	err = retry.Do(ctx, n.policy, func(ctx context.Context) error {
		return n.send(ctx, message)
	}, func(attempt int, err error, next time.Duration) {
		metrics.IncRetryAttempt(constants.ServiceNameSendGrid)
		n.logger.WarnwCtx(ctx, "SendGrid call failed, retrying",
			"attempt", attempt,
			"retry_in", next,
			"error", err,
		)
	})
	if err != nil {
		upstream := apperrors.NewUpstreamError(serviceDisplayName, err)
		n.fail(ctx, customerPhone, upstream)
		return upstream
	}

	metrics.IncEmailNotification(constants.MetricStatusSuccess)
	n.logger.InfowCtx(ctx, "Enriched email sent", "customer_phone", customerPhone)
	return nil
}

func (n *SendGridNotifier) send(ctx context.Context, message *mail.SGMailV3) error {
	start := time.Now()
	resp, err := n.client.SendWithContext(ctx, message)
	metrics.ObserveExternalAPIDuration(constants.ServiceNameSendGrid, time.Since(start))
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode, Body: resp.Body}
	if apiErr.retryable() {
		return apiErr
	}
	return retry.Permanent(apiErr)
}

func (n *SendGridNotifier) buildMessage(customerPhone, html string) *mail.SGMailV3 {
	message := new(mail.SGMailV3)
	message.SetFrom(n.from)
	message.Subject = subject(customerPhone)
	message.AddContent(mail.NewContent("text/html", html))

	personalization := mail.NewPersonalization()
	for _, to := range n.recipients {
		personalization.AddTos(mail.NewEmail("", to))
	}
	message.AddPersonalizations(personalization)
	return message
}

func (n *SendGridNotifier) fail(ctx context.Context, customerPhone string, err error) {
	metrics.IncEmailNotification(constants.MetricStatusFailed)
	metrics.IncAPIError(constants.ServiceNameSendGrid)
	n.logger.ErrorwCtx(ctx, "Failed to send enriched email",
		"customer_phone", customerPhone,
		"error", err,
	)
}
