package messaging

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"surveyrelay/internal/constants"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Survey answer keys the Twilio Studio flow is known to send.
var recognizedSurveyKeys = map[string]struct{}{
	"have_fiber":         {},
	"mobile_plans":       {},
	"product_interest":   {},
	"best_time_to_call":  {},
	"contact_preference": {},
}

const (
	locationKey  = "location"
	decimalChars = "+-0123456789.eE"
)

func decodeStrict(raw []byte, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("empty body")
	}
	return json.Unmarshal(raw, v)
}

func parseSurveyTrigger(raw []byte) (*SurveyTrigger, error) {
	var trigger SurveyTrigger
	if err := decodeStrict(raw, &trigger); err != nil {
		return nil, newValidationError("trigger", err)
	}
	if err := validate.Struct(trigger); err != nil {
		return nil, newValidationError("trigger", err)
	}
	return &trigger, nil
}

// parseMetaFlowReply checks the envelope and the first message of the first
// change of the first entry, which is where Meta places flow submissions.
func parseMetaFlowReply(raw []byte) (*MetaFlowReply, error) {
	var payload MetaWebhookPayload
	if err := decodeStrict(raw, &payload); err != nil {
		return nil, newValidationError("meta webhook", err)
	}
	if err := validate.Struct(payload); err != nil {
		return nil, newValidationError("meta webhook", err)
	}

	entry := payload.Entry[0]
	if err := validate.Struct(entry); err != nil {
		return nil, newValidationError("meta webhook", err)
	}

	value := entry.Changes[0].Value
	if err := validate.Struct(value); err != nil {
		return nil, newValidationError("meta webhook", err)
	}

	message := value.Messages[0]
	if err := validate.Struct(message); err != nil {
		return nil, newValidationError("meta webhook", err)
	}

	return &MetaFlowReply{
		CustomerPhone: message.From,
		ResponseJSON:  *message.Interactive.NFMReply.ResponseJSON,
	}, nil
}

// decodeFlowResponse parses the response_json string of a flow reply. Only a
// JSON object is a valid survey response.
func decodeFlowResponse(responseJSON string) (SurveyResponse, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(responseJSON), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFlowResponse, err)
	}
	if decoded == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedFlowResponse)
	}
	return SurveyResponse(decoded), nil
}

func parseTwilioSurvey(raw []byte) (*TwilioSurvey, error) {
	var payload TwilioSurveyPayload
	if err := decodeStrict(raw, &payload); err != nil {
		return nil, newValidationError("twilio survey", err)
	}
	if err := validate.Struct(payload); err != nil {
		return nil, newValidationError("twilio survey", err)
	}

	response, err := normalizeTwilioSurveyResponse(payload.SurveyResponse)
	if err != nil {
		return nil, newValidationError("twilio survey", err)
	}

	phone := strings.TrimPrefix(payload.CustomerPhone, constants.WhatsAppAddressPrefix)
	if strings.TrimSpace(phone) == "" {
		return nil, &ValidationError{Payload: "twilio survey", Issues: []string{"customerPhone has no number after the whatsapp: prefix"}}
	}

	return &TwilioSurvey{
		CustomerPhone:  phone,
		UserStep:       string(payload.UserStep),
		SurveyResponse: response,
	}, nil
}

// normalizeTwilioSurveyResponse keeps recognized answers as strings, other
// scalar answers as they are, and location as a numeric pair when both
// coordinates parse. An unusable location is dropped.
func normalizeTwilioSurveyResponse(fields map[string]json.RawMessage) (SurveyResponse, error) {
	out := make(SurveyResponse, len(fields))

	for key, raw := range fields {
		if key == locationKey {
			if loc, ok := parseLocation(raw); ok {
				out[key] = loc
			}
			continue
		}

		if _, known := recognizedSurveyKeys[key]; known {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("surveyResponse.%s must be a string", key)
			}
			out[key] = s
			continue
		}

		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("surveyResponse.%s: %w", key, err)
		}
		switch v.(type) {
		case string, float64, bool:
			out[key] = v
		}
	}

	return out, nil
}

func parseLocation(raw json.RawMessage) (Location, bool) {
	var coords struct {
		Latitude  flexString `json:"latitude"`
		Longitude flexString `json:"longitude"`
	}
	if err := json.Unmarshal(raw, &coords); err != nil {
		return Location{}, false
	}

	lat, ok := parseCoordinate(string(coords.Latitude))
	if !ok {
		return Location{}, false
	}
	lng, ok := parseCoordinate(string(coords.Longitude))
	if !ok {
		return Location{}, false
	}

	return Location{Latitude: lat, Longitude: lng}, true
}

// parseCoordinate accepts plain decimal or exponent notation only. Hex,
// underscores, NaN and infinities are rejected.
func parseCoordinate(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Trim(raw, decimalChars) != "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseTwilioStatusCallback(raw []byte) (*TwilioStatusCallback, error) {
	var callback TwilioStatusCallback
	if err := decodeStrict(raw, &callback); err != nil {
		return nil, newValidationError("twilio status", err)
	}
	if err := validate.Struct(callback); err != nil {
		return nil, newValidationError("twilio status", err)
	}
	return &callback, nil
}
