package messaging

import (
	"context"

	"surveyrelay/internal/config"
	"surveyrelay/internal/constants"
	"surveyrelay/internal/logger"
	"surveyrelay/internal/provider/twilio"
	apperrors "surveyrelay/pkg/errors"
	"surveyrelay/pkg/logging"
	"surveyrelay/pkg/metrics"
)

// metaTemplateMessage is the Cloud API body for a template send.
type metaTemplateMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         metaTemplate `json:"template"`
}

type metaTemplate struct {
	Name     string       `json:"name"`
	Language metaLanguage `json:"language"`
}

type metaLanguage struct {
	Code string `json:"code"`
}

// Service dispatches survey invites through the configured provider and
// normalizes the provider webhooks that carry the answers. It keeps no state
// between calls.
type Service struct {
	provider     Provider
	metaCfg      config.MetaConfig
	twilioCfg    config.TwilioConfig
	metaClient   MetaClient
	twilioClient TwilioClient
	notifier     Notifier
	logger       logger.Logger
}

// Dependencies groups the collaborators of a Service. Only the client of the
// active provider is required.
type Dependencies struct {
	MetaClient   MetaClient
	TwilioClient TwilioClient
	Notifier     Notifier
	Logger       logger.Logger
}

func NewService(cfg *config.Config, deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NopLogger()
	}

	return &Service{
		provider:     Provider(cfg.Messaging.Provider),
		metaCfg:      cfg.Meta,
		twilioCfg:    cfg.Twilio,
		metaClient:   deps.MetaClient,
		twilioClient: deps.TwilioClient,
		notifier:     deps.Notifier,
		logger:       log,
	}
}

func (s *Service) Provider() Provider {
	return s.provider
}

// CheckConfigured reports whether the active provider has the client and
// identifiers needed to send a template.
func (s *Service) CheckConfigured(context.Context) error {
	switch s.provider {
	case ProviderTwilio:
		if isNil(s.twilioClient) || s.twilioCfg.WhatsAppNumber == "" {
			return apperrors.ErrConfiguration.WithMessage("Twilio client is not configured correctly.")
		}
	case ProviderMeta:
		if isNil(s.metaClient) || s.metaCfg.PhoneNumberID == "" {
			return apperrors.ErrConfiguration.WithMessage("Meta client is not configured correctly.")
		}
	default:
		return apperrors.ErrConfiguration.WithMessage("unknown messaging provider " + string(s.provider))
	}
	return nil
}

// TriggerSurveyTemplate sends the survey invite template to customerPhone.
// Each call performs one send; callers must not retry blindly.
func (s *Service) TriggerSurveyTemplate(ctx context.Context, customerPhone string) error {
	ctx = logging.WithProvider(ctx, string(s.provider))
	s.logger.InfowCtx(ctx, "Sending survey template", "customer_phone", customerPhone)

	if err := s.CheckConfigured(ctx); err != nil {
		s.logger.ErrorwCtx(ctx, "Messaging provider is not configured", "error", err)
		return err
	}

	var err error
	switch s.provider {
	case ProviderTwilio:
		err = s.sendWithTwilio(ctx, customerPhone)
	default:
		err = s.sendWithMeta(ctx, customerPhone)
	}

	if err != nil {
		metrics.IncAPIError(string(s.provider))
		upstream := apperrors.NewUpstreamError(s.provider.DisplayName(), err)
		s.logger.ErrorwCtx(ctx, "Failed to send survey template",
			"customer_phone", customerPhone,
			"status", upstream.Status,
			"error", upstream.Message,
		)
		return upstream
	}

	metrics.IncTemplatesSent(string(s.provider))
	s.logger.InfowCtx(ctx, "Survey template sent", "customer_phone", customerPhone)
	return nil
}

func (s *Service) sendWithMeta(ctx context.Context, customerPhone string) error {
	body := metaTemplateMessage{
		MessagingProduct: constants.MessagingProductWhatsApp,
		To:               customerPhone,
		Type:             constants.MessageTypeTemplate,
		Template: metaTemplate{
			Name:     s.metaCfg.TemplateName,
			Language: metaLanguage{Code: s.metaCfg.LanguageCode},
		},
	}
	s.logger.DebugwCtx(ctx, "Meta template payload", "payload", body)

	return s.metaClient.Post(ctx, s.metaCfg.MetaMessagesPath(), body)
}

func (s *Service) sendWithTwilio(ctx context.Context, customerPhone string) error {
	msg := twilio.TemplateMessage{
		ContentSID: s.twilioCfg.TemplateSID,
		From:       s.twilioCfg.WhatsAppNumber,
		To:         constants.WhatsAppAddressPrefix + customerPhone,
	}
	s.logger.DebugwCtx(ctx, "Twilio template payload", "payload", msg)

	sid, err := s.twilioClient.CreateMessage(ctx, msg)
	if err != nil {
		return err
	}
	s.logger.InfowCtx(ctx, "Twilio accepted message", "message_sid", sid)
	return nil
}

// HandleIncomingMetaMessage relays a completed WhatsApp Flow. Payloads that
// are not flow replies are counted and ignored. A flow reply whose
// response_json cannot be decoded yields an error wrapping
// ErrMalformedFlowResponse; the HTTP layer still acknowledges the webhook.
func (s *Service) HandleIncomingMetaMessage(ctx context.Context, rawBody []byte) error {
	ctx = logging.WithProvider(ctx, string(ProviderMeta))

	reply, err := parseMetaFlowReply(rawBody)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Invalid Meta webhook payload received", "error", err)
		metrics.IncInvalidPayload(constants.PayloadSourceMeta)
		return nil
	}

	response, err := decodeFlowResponse(reply.ResponseJSON)
	if err != nil {
		metrics.IncFlowProcessingError(constants.PayloadSourceMeta)
		s.logger.ErrorwCtx(ctx, "Error processing incoming Meta message. Payload will be ignored.",
			"customer_phone", reply.CustomerPhone,
			"error", err,
		)
		return err
	}

	s.logger.InfowCtx(ctx, "Flow response received and validated",
		"customer_phone", reply.CustomerPhone,
		"fields", len(response),
	)
	metrics.IncFlowCompleted(constants.PayloadSourceMeta, "")

	s.notify(ctx, constants.PayloadSourceMeta, reply.CustomerPhone, response)
	return nil
}

// HandleIncomingTwilioSurvey relays the final payload of the Twilio Studio
// survey flow. Failures are counted and logged, never returned.
func (s *Service) HandleIncomingTwilioSurvey(ctx context.Context, rawBody []byte) {
	ctx = logging.WithProvider(ctx, string(ProviderTwilio))

	survey, err := parseTwilioSurvey(rawBody)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Invalid Twilio Studio webhook payload received", "error", err)
		metrics.IncInvalidPayload(constants.PayloadSourceTwilioStudio)
		return
	}

	s.logger.InfowCtx(ctx, "Twilio Studio response received and validated",
		"customer_phone", survey.CustomerPhone,
		"user_step", survey.UserStep,
		"fields", len(survey.SurveyResponse),
	)
	metrics.IncFlowCompleted(constants.PayloadSourceTwilio, survey.UserStep)

	s.notify(ctx, constants.PayloadSourceTwilio, survey.CustomerPhone, survey.SurveyResponse)
}

// HandleTwilioStatusUpdate records a delivery status callback. Duplicates are
// counted again; there is no stored state to reconcile them against.
func (s *Service) HandleTwilioStatusUpdate(ctx context.Context, rawBody []byte) {
	ctx = logging.WithProvider(ctx, string(ProviderTwilio))

	callback, err := parseTwilioStatusCallback(rawBody)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Invalid Twilio status callback received", "error", err)
		metrics.IncInvalidPayload(constants.PayloadSourceTwilioStatus)
		return
	}

	metrics.IncStatusUpdate(string(ProviderTwilio), callback.MessageStatus)

	if callback.IsDeliveryFailure() {
		s.logger.ErrorwCtx(ctx, "Message delivery failed",
			"message_sid", callback.MessageSid,
			"status", callback.MessageStatus,
			"error_code", string(callback.ErrorCode),
			"error_message", callback.ErrorMessage,
			"to", callback.To,
		)
		return
	}

	s.logger.InfowCtx(ctx, "Received message status update from Twilio",
		"message_sid", callback.MessageSid,
		"status", callback.MessageStatus,
	)
}

// notify waits for the notifier so failures are logged before the webhook
// returns. A failure counts as a processing error for source.
func (s *Service) notify(ctx context.Context, source, customerPhone string, response SurveyResponse) {
	if isNil(s.notifier) {
		s.logger.WarnwCtx(ctx, "No notifier configured, survey response not forwarded", "customer_phone", customerPhone)
		return
	}

	if err := s.notifier.SendEnrichedEmail(ctx, customerPhone, response); err != nil {
		metrics.IncFlowProcessingError(source)
		s.logger.ErrorwCtx(ctx, "Failed to send enriched email",
			"customer_phone", customerPhone,
			"error", err,
		)
	}
}
