package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"surveyrelay/internal/config"
	"surveyrelay/internal/logger"
	"surveyrelay/internal/provider/meta"
	"surveyrelay/internal/provider/twilio"
	apperrors "surveyrelay/pkg/errors"
	"surveyrelay/pkg/metrics"
)

type MockMetaClient struct {
	mock.Mock
}

func (m *MockMetaClient) Post(ctx context.Context, path string, body interface{}) error {
	args := m.Called(ctx, path, body)
	return args.Error(0)
}

type MockTwilioClient struct {
	mock.Mock
}

func (m *MockTwilioClient) CreateMessage(ctx context.Context, msg twilio.TemplateMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendEnrichedEmail(ctx context.Context, customerPhone string, response SurveyResponse) error {
	args := m.Called(ctx, customerPhone, response)
	return args.Error(0)
}

func testConfig(provider string) *config.Config {
	return &config.Config{
		Messaging: config.MessagingConfig{Provider: provider},
		Meta: config.MetaConfig{
			PhoneNumberID: "1234567890",
			TemplateName:  config.DefaultMetaTemplateName,
			LanguageCode:  config.DefaultMetaLanguageCode,
		},
		Twilio: config.TwilioConfig{
			WhatsAppNumber: "whatsapp:+14155238886",
			TemplateSID:    "HX123",
		},
	}
}

type serviceFixture struct {
	svc      *Service
	meta     *MockMetaClient
	twilio   *MockTwilioClient
	notifier *MockNotifier
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T, cfg *config.Config) *serviceFixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	f := &serviceFixture{
		meta:     new(MockMetaClient),
		twilio:   new(MockTwilioClient),
		notifier: new(MockNotifier),
		logs:     logs,
	}
	f.svc = NewService(cfg, Dependencies{
		MetaClient:   f.meta,
		TwilioClient: f.twilio,
		Notifier:     f.notifier,
		Logger:       logger.FromZap(zap.New(core)),
	})
	return f
}

func metaFlowPayload(from, responseJSON string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "WABA_ID",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"messages": [{
						"from": %q,
						"id": "wamid.ID",
						"timestamp": "1700000000",
						"type": "interactive",
						"interactive": {
							"type": "nfm_reply",
							"nfm_reply": {"name": "flow", "body": "Sent", "response_json": %q}
						}
					}]
				}
			}]
		}]
	}`, from, responseJSON))
}

func TestTriggerSurveyTemplate_Meta(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderMeta))
	sentBefore := testutil.ToFloat64(metrics.MessagingTemplatesSentTotal.WithLabelValues("meta"))
	errBefore := testutil.ToFloat64(metrics.APIErrorsTotal.WithLabelValues("meta"))

	expected := metaTemplateMessage{
		MessagingProduct: "whatsapp",
		To:               "5491122334455",
		Type:             "template",
		Template: metaTemplate{
			Name:     "initial_conversation",
			Language: metaLanguage{Code: "es_AR"},
		},
	}
	f.meta.On("Post", mock.Anything, "/1234567890/messages", expected).Return(nil).Once()

	err := f.svc.TriggerSurveyTemplate(context.Background(), "5491122334455")
	require.NoError(t, err)

	f.meta.AssertExpectations(t)
	f.twilio.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	assert.Equal(t, sentBefore+1, testutil.ToFloat64(metrics.MessagingTemplatesSentTotal.WithLabelValues("meta")))
	assert.Equal(t, errBefore, testutil.ToFloat64(metrics.APIErrorsTotal.WithLabelValues("meta")))
}

func TestTriggerSurveyTemplate_Twilio(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderTwilio))
	sentBefore := testutil.ToFloat64(metrics.MessagingTemplatesSentTotal.WithLabelValues("twilio"))

	expected := twilio.TemplateMessage{
		ContentSID: "HX123",
		From:       "whatsapp:+14155238886",
		To:         "whatsapp:+5491122334455",
	}
	f.twilio.On("CreateMessage", mock.Anything, expected).Return("SM123", nil).Once()

	err := f.svc.TriggerSurveyTemplate(context.Background(), "+5491122334455")
	require.NoError(t, err)

	f.twilio.AssertExpectations(t)
	f.meta.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, sentBefore+1, testutil.ToFloat64(metrics.MessagingTemplatesSentTotal.WithLabelValues("twilio")))
}

func TestTriggerSurveyTemplate_UpstreamFailure(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		setup       func(f *serviceFixture)
		wantMessage string
		wantStatus  int
	}{
		{
			name:     "meta structured error",
			provider: config.ProviderMeta,
			setup: func(f *serviceFixture) {
				f.meta.On("Post", mock.Anything, mock.Anything, mock.Anything).Return(&meta.APIError{
					Status: http.StatusBadRequest,
					Body:   map[string]interface{}{"error": map[string]interface{}{"message": "Invalid parameter", "code": 100.0}},
				})
			},
			wantMessage: "Error communicating with the Meta API: Invalid parameter",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:     "meta transport error",
			provider: config.ProviderMeta,
			setup: func(f *serviceFixture) {
				f.meta.On("Post", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))
			},
			wantMessage: "Error communicating with the Meta API: connection refused",
			wantStatus:  http.StatusInternalServerError,
		},
		{
			name:     "twilio error",
			provider: config.ProviderTwilio,
			setup: func(f *serviceFixture) {
				f.twilio.On("CreateMessage", mock.Anything, mock.Anything).Return("", errors.New("Twilio API Error"))
			},
			wantMessage: "Error communicating with the Twilio API: Twilio API Error",
			wantStatus:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(tt.provider))
			tt.setup(f)
			errBefore := testutil.ToFloat64(metrics.APIErrorsTotal.WithLabelValues(tt.provider))
			sentBefore := testutil.ToFloat64(metrics.MessagingTemplatesSentTotal.WithLabelValues(tt.provider))

			err := f.svc.TriggerSurveyTemplate(context.Background(), "5491122334455")
			require.Error(t, err)

			var appErr *apperrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantMessage, appErr.Message)
			assert.Equal(t, tt.wantStatus, appErr.Status)
			assert.True(t, apperrors.IsUpstream(err))

			assert.Equal(t, errBefore+1, testutil.ToFloat64(metrics.APIErrorsTotal.WithLabelValues(tt.provider)))
			assert.Equal(t, sentBefore, testutil.ToFloat64(metrics.MessagingTemplatesSentTotal.WithLabelValues(tt.provider)))
		})
	}
}

func TestTriggerSurveyTemplate_NotConfigured(t *testing.T) {
	t.Run("twilio without client", func(t *testing.T) {
		svc := NewService(testConfig(config.ProviderTwilio), Dependencies{})
		err := svc.TriggerSurveyTemplate(context.Background(), "5491122334455")
		assert.True(t, apperrors.IsConfiguration(err))
	})

	t.Run("twilio without sender", func(t *testing.T) {
		cfg := testConfig(config.ProviderTwilio)
		cfg.Twilio.WhatsAppNumber = ""
		f := newFixture(t, cfg)

		err := f.svc.TriggerSurveyTemplate(context.Background(), "5491122334455")
		assert.True(t, apperrors.IsConfiguration(err))
		f.twilio.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	})

	t.Run("typed nil meta client", func(t *testing.T) {
		var client *meta.Client
		svc := NewService(testConfig(config.ProviderMeta), Dependencies{MetaClient: client})
		err := svc.TriggerSurveyTemplate(context.Background(), "5491122334455")
		assert.True(t, apperrors.IsConfiguration(err))
	})
}

func TestTriggerSurveyTemplate_NoDeduplication(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderMeta))
	f.meta.On("Post", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.svc.TriggerSurveyTemplate(context.Background(), "5491122334455"))
	require.NoError(t, f.svc.TriggerSurveyTemplate(context.Background(), "5491122334455"))

	f.meta.AssertNumberOfCalls(t, "Post", 2)
}

func TestHandleIncomingMetaMessage_FlowReply(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderMeta))
	completedBefore := testutil.ToFloat64(metrics.MessagingFlowsCompletedTotal.WithLabelValues("meta", ""))

	expected := SurveyResponse{"have_fiber": "si", "flow_token": "abc"}
	f.notifier.On("SendEnrichedEmail", mock.Anything, "5491122334455", expected).Return(nil).Once()

	body := metaFlowPayload("5491122334455", `{"have_fiber":"si","flow_token":"abc"}`)
	err := f.svc.HandleIncomingMetaMessage(context.Background(), body)
	require.NoError(t, err)

	f.notifier.AssertExpectations(t)
	assert.Equal(t, completedBefore+1, testutil.ToFloat64(metrics.MessagingFlowsCompletedTotal.WithLabelValues("meta", "")))
}

func TestHandleIncomingMetaMessage_IgnoresOtherShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrong object", `{"object":"page","entry":[]}`},
		{"text message", `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{"from":"549","type":"text","text":{"body":"hola"}}]}}]}]}`},
		{"button reply", `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{"from":"549","type":"interactive","interactive":{"type":"button_reply"}}]}}]}]}`},
		{"status only", `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"wamid","status":"read"}]}}]}]}`},
		{"not json", `not json`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(config.ProviderMeta))
			invalidBefore := testutil.ToFloat64(metrics.MessagingInvalidPayloadsTotal.WithLabelValues("meta"))

			err := f.svc.HandleIncomingMetaMessage(context.Background(), []byte(tt.body))
			assert.NoError(t, err)

			f.notifier.AssertNotCalled(t, "SendEnrichedEmail", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, invalidBefore+1, testutil.ToFloat64(metrics.MessagingInvalidPayloadsTotal.WithLabelValues("meta")))
		})
	}
}

func TestHandleIncomingMetaMessage_MalformedResponseJSON(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderMeta))
	errorsBefore := testutil.ToFloat64(metrics.MessagingFlowsProcessingErrorsTotal.WithLabelValues("meta"))

	err := f.svc.HandleIncomingMetaMessage(context.Background(), metaFlowPayload("5491122334455", `{"have_fiber":`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFlowResponse)

	f.notifier.AssertNotCalled(t, "SendEnrichedEmail", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(metrics.MessagingFlowsProcessingErrorsTotal.WithLabelValues("meta")))
}

func TestHandleIncomingMetaMessage_NotifierFailureIsAbsorbed(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderMeta))
	errorsBefore := testutil.ToFloat64(metrics.MessagingFlowsProcessingErrorsTotal.WithLabelValues("meta"))
	f.notifier.On("SendEnrichedEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("sendgrid down"))

	err := f.svc.HandleIncomingMetaMessage(context.Background(), metaFlowPayload("5491122334455", `{"a":"b"}`))
	require.NoError(t, err)

	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(metrics.MessagingFlowsProcessingErrorsTotal.WithLabelValues("meta")))
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to send enriched email").Len())
}

func TestHandleIncomingMetaMessage_NoMemoization(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderMeta))
	completedBefore := testutil.ToFloat64(metrics.MessagingFlowsCompletedTotal.WithLabelValues("meta", ""))
	f.notifier.On("SendEnrichedEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	body := metaFlowPayload("5491122334455", `{"a":"b"}`)
	require.NoError(t, f.svc.HandleIncomingMetaMessage(context.Background(), body))
	require.NoError(t, f.svc.HandleIncomingMetaMessage(context.Background(), body))

	f.notifier.AssertNumberOfCalls(t, "SendEnrichedEmail", 2)
	assert.Equal(t, completedBefore+2, testutil.ToFloat64(metrics.MessagingFlowsCompletedTotal.WithLabelValues("meta", "")))
}

func TestHandleIncomingTwilioSurvey(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderTwilio))
	completedBefore := testutil.ToFloat64(metrics.MessagingFlowsCompletedTotal.WithLabelValues("twilio", "final"))

	expected := SurveyResponse{
		"have_fiber":   "yes",
		"mobile_plans": "no",
		"location":     Location{Latitude: -34.60, Longitude: -58.38},
	}
	f.notifier.On("SendEnrichedEmail", mock.Anything, "+5491122334455", expected).Return(nil).Once()

	body := `{
		"customerPhone": "whatsapp:+5491122334455",
		"user_step": "final",
		"surveyResponse": {
			"have_fiber": "yes",
			"mobile_plans": "no",
			"location": {"latitude": "-34.60", "longitude": "-58.38"}
		}
	}`
	f.svc.HandleIncomingTwilioSurvey(context.Background(), []byte(body))

	f.notifier.AssertExpectations(t)
	assert.Equal(t, completedBefore+1, testutil.ToFloat64(metrics.MessagingFlowsCompletedTotal.WithLabelValues("twilio", "final")))
}

func TestHandleIncomingTwilioSurvey_DropsBadLocation(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderTwilio))

	expected := SurveyResponse{"have_fiber": "yes"}
	f.notifier.On("SendEnrichedEmail", mock.Anything, "+5491122334455", expected).Return(nil).Once()

	body := `{"customerPhone":"whatsapp:+5491122334455","surveyResponse":{"have_fiber":"yes","location":{"latitude":"abc","longitude":"-58.38"}}}`
	f.svc.HandleIncomingTwilioSurvey(context.Background(), []byte(body))

	f.notifier.AssertExpectations(t)
}

func TestHandleIncomingTwilioSurvey_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"phone without prefix", `{"customerPhone":"+5491122334455","surveyResponse":{}}`},
		{"prefix without number", `{"customerPhone":"whatsapp:","surveyResponse":{"have_fiber":"yes"}}`},
		{"missing survey response", `{"customerPhone":"whatsapp:+5491122334455"}`},
		{"non string answer", `{"customerPhone":"whatsapp:+5491122334455","surveyResponse":{"have_fiber":true}}`},
		{"not json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(config.ProviderTwilio))
			invalidBefore := testutil.ToFloat64(metrics.MessagingInvalidPayloadsTotal.WithLabelValues("twilio_studio"))

			f.svc.HandleIncomingTwilioSurvey(context.Background(), []byte(tt.body))

			f.notifier.AssertNotCalled(t, "SendEnrichedEmail", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, invalidBefore+1, testutil.ToFloat64(metrics.MessagingInvalidPayloadsTotal.WithLabelValues("twilio_studio")))
		})
	}
}

func TestHandleIncomingTwilioSurvey_NotifierFailureIsAbsorbed(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderTwilio))
	errorsBefore := testutil.ToFloat64(metrics.MessagingFlowsProcessingErrorsTotal.WithLabelValues("twilio"))
	f.notifier.On("SendEnrichedEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("sendgrid down"))

	assert.NotPanics(t, func() {
		f.svc.HandleIncomingTwilioSurvey(context.Background(),
			[]byte(`{"customerPhone":"whatsapp:+5491122334455","surveyResponse":{"have_fiber":"yes"}}`))
	})

	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(metrics.MessagingFlowsProcessingErrorsTotal.WithLabelValues("twilio")))
}

func TestHandleTwilioStatusUpdate(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		wantLevel zapcore.Level
		wantMsg   string
	}{
		{"failed", "failed", zapcore.ErrorLevel, "Message delivery failed"},
		{"undelivered", "undelivered", zapcore.ErrorLevel, "Message delivery failed"},
		{"delivered", "delivered", zapcore.InfoLevel, "Received message status update from Twilio"},
		{"read", "read", zapcore.InfoLevel, "Received message status update from Twilio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(config.ProviderTwilio))
			before := testutil.ToFloat64(metrics.MessagingStatusUpdatesTotal.WithLabelValues("twilio", tt.status))

			body := fmt.Sprintf(`{"MessageSid":"SM1","MessageStatus":%q,"ErrorCode":"63016","To":"whatsapp:+1","From":"whatsapp:+2"}`, tt.status)
			f.svc.HandleTwilioStatusUpdate(context.Background(), []byte(body))

			assert.Equal(t, before+1, testutil.ToFloat64(metrics.MessagingStatusUpdatesTotal.WithLabelValues("twilio", tt.status)))

			entries := f.logs.FilterMessage(tt.wantMsg).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantLevel, entries[0].Level)
			if tt.wantLevel == zapcore.InfoLevel {
				assert.Zero(t, f.logs.FilterLevelExact(zapcore.ErrorLevel).Len())
			}
		})
	}
}

func TestHandleTwilioStatusUpdate_NumericErrorCode(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderTwilio))

	f.svc.HandleTwilioStatusUpdate(context.Background(),
		[]byte(`{"MessageSid":"SM1","MessageStatus":"failed","ErrorCode":63016,"To":"whatsapp:+1","From":"whatsapp:+2"}`))

	entries := f.logs.FilterMessage("Message delivery failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "63016", entries[0].ContextMap()["error_code"])
}

func TestHandleTwilioStatusUpdate_Invalid(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderTwilio))
	before := testutil.ToFloat64(metrics.MessagingInvalidPayloadsTotal.WithLabelValues("twilio_status"))

	assert.NotPanics(t, func() {
		f.svc.HandleTwilioStatusUpdate(context.Background(), []byte(`{"MessageSid":"SM1"}`))
	})
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MessagingInvalidPayloadsTotal.WithLabelValues("twilio_status")))
}

func TestHandleTwilioStatusUpdate_DuplicatesCountTwice(t *testing.T) {
	f := newFixture(t, testConfig(config.ProviderTwilio))
	before := testutil.ToFloat64(metrics.MessagingStatusUpdatesTotal.WithLabelValues("twilio", "sent"))

	body := []byte(`{"MessageSid":"SM9","MessageStatus":"sent","To":"whatsapp:+1","From":"whatsapp:+2"}`)
	f.svc.HandleTwilioStatusUpdate(context.Background(), body)
	f.svc.HandleTwilioStatusUpdate(context.Background(), body)

	assert.Equal(t, before+2, testutil.ToFloat64(metrics.MessagingStatusUpdatesTotal.WithLabelValues("twilio", "sent")))
}
