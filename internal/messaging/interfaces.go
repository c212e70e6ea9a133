package messaging

import (
	"context"

	"surveyrelay/internal/provider/twilio"
)

// MetaClient posts JSON bodies to paths of the versioned Graph API.
type MetaClient interface {
	Post(ctx context.Context, path string, body interface{}) error
}

// TwilioClient creates outbound WhatsApp messages through Twilio.
type TwilioClient interface {
	CreateMessage(ctx context.Context, msg twilio.TemplateMessage) (string, error)
}

// Notifier forwards a normalized survey response to the sales team.
type Notifier interface {
	SendEnrichedEmail(ctx context.Context, customerPhone string, response SurveyResponse) error
}

// WebhookService is the surface the HTTP handlers depend on.
type WebhookService interface {
	TriggerSurveyTemplate(ctx context.Context, customerPhone string) error
	HandleIncomingMetaMessage(ctx context.Context, rawBody []byte) error
	HandleIncomingTwilioSurvey(ctx context.Context, rawBody []byte)
	HandleTwilioStatusUpdate(ctx context.Context, rawBody []byte)
}

var _ WebhookService = (*Service)(nil)
