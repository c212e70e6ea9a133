package messaging

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

type Provider string

const (
	ProviderMeta   Provider = "meta"
	ProviderTwilio Provider = "twilio"
)

// DisplayName is the provider name used in upstream error messages.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderTwilio:
		return "Twilio"
	default:
		return "Meta"
	}
}

// SurveyTrigger is the call-center request to start a survey.
type SurveyTrigger struct {
	CustomerPhone string `json:"customerPhone" binding:"required" validate:"required,min=10" example:"5491122334455"`
}

// SurveyResponse maps answer keys to string, float64 or Location values.
type SurveyResponse map[string]interface{}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MetaWebhookPayload is the WhatsApp Cloud API webhook envelope.
type MetaWebhookPayload struct {
	Object string      `json:"object" validate:"eq=whatsapp_business_account"`
	Entry  []MetaEntry `json:"entry" validate:"min=1"`
}

type MetaEntry struct {
	ID      string       `json:"id"`
	Changes []MetaChange `json:"changes" validate:"min=1"`
}

type MetaChange struct {
	Field string          `json:"field"`
	Value MetaChangeValue `json:"value"`
}

type MetaChangeValue struct {
	MessagingProduct string        `json:"messaging_product"`
	Messages         []MetaMessage `json:"messages" validate:"min=1"`
}

type MetaMessage struct {
	From        string           `json:"from" validate:"required"`
	ID          string           `json:"id"`
	Timestamp   string           `json:"timestamp"`
	Type        string           `json:"type" validate:"eq=interactive"`
	Interactive *MetaInteractive `json:"interactive" validate:"required"`
}

type MetaInteractive struct {
	Type     string        `json:"type" validate:"eq=nfm_reply"`
	NFMReply *MetaNFMReply `json:"nfm_reply" validate:"required"`
}

type MetaNFMReply struct {
	Name         string  `json:"name"`
	Body         string  `json:"body"`
	ResponseJSON *string `json:"response_json" validate:"required"`
}

// MetaFlowReply is a validated nfm_reply whose response_json has not yet been decoded.
type MetaFlowReply struct {
	CustomerPhone string
	ResponseJSON  string
}

// TwilioSurveyPayload is the body posted by the Twilio Studio flow when the
// customer finishes the survey.
type TwilioSurveyPayload struct {
	CustomerPhone  string                     `json:"customerPhone" validate:"required,startswith=whatsapp:"`
	UserStep       flexString                 `json:"user_step"`
	SurveyResponse map[string]json.RawMessage `json:"surveyResponse" validate:"required"`
}

// TwilioSurvey is a validated and normalized Twilio Studio submission.
type TwilioSurvey struct {
	CustomerPhone  string
	UserStep       string
	SurveyResponse SurveyResponse
}

// TwilioStatusCallback is a delivery status notification for a sent message.
type TwilioStatusCallback struct {
	MessageSid    string     `json:"MessageSid" validate:"required"`
	MessageStatus string     `json:"MessageStatus" validate:"required"`
	To            string     `json:"To" validate:"required"`
	From          string     `json:"From" validate:"required"`
	ErrorCode     flexString `json:"ErrorCode"`
	ErrorMessage  string     `json:"ErrorMessage"`
}

// IsDeliveryFailure reports terminal failure states.
func (c TwilioStatusCallback) IsDeliveryFailure() bool {
	return c.MessageStatus == "failed" || c.MessageStatus == "undelivered"
}

// flexString accepts a JSON string or number and keeps its textual form.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(data)
	return nil
}
