package twilio

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioopenapi "github.com/twilio/twilio-go/rest/api/v2010"

	apperrors "surveyrelay/pkg/errors"
)

type fakeMessages struct {
	params []*twilioopenapi.CreateMessageParams
	resp   *twilioopenapi.ApiV2010Message
	err    error
}

func (f *fakeMessages) CreateMessage(params *twilioopenapi.CreateMessageParams) (*twilioopenapi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	return f.resp, f.err
}

func TestCreateMessageBuildsContentTemplateParams(t *testing.T) {
	sid := "SM123"
	fake := &fakeMessages{resp: &twilioopenapi.ApiV2010Message{Sid: &sid}}
	c := newClient(fake, "https://relay.example.com/api/v1/webhooks/twilio-status", nil)

	got, err := c.CreateMessage(context.Background(), TemplateMessage{
		ContentSID: "HX42",
		From:       "whatsapp:+14155238886",
		To:         "whatsapp:+5491122334455",
	})
	require.NoError(t, err)
	assert.Equal(t, "SM123", got)

	require.Len(t, fake.params, 1)
	p := fake.params[0]
	assert.Equal(t, "HX42", *p.ContentSid)
	assert.Equal(t, "whatsapp:+14155238886", *p.From)
	assert.Equal(t, "whatsapp:+5491122334455", *p.To)
	assert.Equal(t, "https://relay.example.com/api/v1/webhooks/twilio-status", *p.StatusCallback)
}

func TestCreateMessageWithoutStatusCallback(t *testing.T) {
	fake := &fakeMessages{resp: &twilioopenapi.ApiV2010Message{}}
	c := newClient(fake, "", nil)

	sid, err := c.CreateMessage(context.Background(), TemplateMessage{ContentSID: "HX", From: "whatsapp:+1", To: "whatsapp:+2"})
	require.NoError(t, err)
	assert.Empty(t, sid)
	assert.Nil(t, fake.params[0].StatusCallback)
}

func TestCreateMessageWrapsRestError(t *testing.T) {
	fake := &fakeMessages{err: &twilioclient.TwilioRestError{
		Code:    21211,
		Message: "The 'To' number whatsapp:+1 is not a valid phone number.",
		Status:  http.StatusBadRequest,
	}}
	c := newClient(fake, "", nil)

	_, err := c.CreateMessage(context.Background(), TemplateMessage{ContentSID: "HX", From: "whatsapp:+1", To: "whatsapp:+1"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, IsClientError(err))

	upstream := apperrors.NewUpstreamError("Twilio", err)
	assert.Equal(t, "Error communicating with the Twilio API: The 'To' number whatsapp:+1 is not a valid phone number.", upstream.Message)
	assert.Equal(t, http.StatusBadRequest, upstream.Status)
}

func TestCreateMessageTransportError(t *testing.T) {
	fake := &fakeMessages{err: errors.New("dial tcp: i/o timeout")}
	c := newClient(fake, "", nil)

	_, err := c.CreateMessage(context.Background(), TemplateMessage{})
	assert.False(t, IsClientError(err))
	assert.Equal(t, http.StatusInternalServerError, apperrors.NewUpstreamError("Twilio", err).Status)
}

func TestCreateMessageCancelledContext(t *testing.T) {
	fake := &fakeMessages{}
	c := newClient(fake, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CreateMessage(ctx, TemplateMessage{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.params)
}
