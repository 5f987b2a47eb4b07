package dispatch

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yuichiro-h/cwl-alarm-caller/dispatch/twiliotest"
)

func twilioConfig(baseURL string) TwilioConfig {
	return TwilioConfig{
		AccountSID:    "AC123",
		AuthToken:     "token",
		FromNumber:    "+15550001111",
		BaseURL:       baseURL,
		UserAgent:     "test-agent",
		Timeout:       time.Second,
		GatherTimeout: 15 * time.Second,
	}
}

func TestPlaceCallCreated(t *testing.T) {
	t.Parallel()

	ts := twiliotest.NewServer(http.StatusCreated, `{"sid":"CA42","status":"queued"}`)
	defer ts.Close()

	caller := NewTwilioCaller(twilioConfig(ts.URL), zap.NewNop())
	o := caller.PlaceCall(context.Background(), "+919876543210", "Server db is down", "Asha", Primary)

	assert.Equal(t, Outcome{
		ContactName: "Asha",
		Role:        Primary,
		Phone:       "+919876543210",
		Success:     true,
		CallID:      "CA42",
	}, o)

	requests := ts.Requests()
	require.Len(t, requests, 1)
	r := requests[0]
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Calls.json", r.Path)
	assert.Equal(t, "AC123", r.Username)
	assert.Equal(t, "token", r.Password)
	assert.True(t, strings.HasPrefix(r.UserAgent, "test-agent "), r.UserAgent)
	assert.Equal(t, "+919876543210", r.PostData.To)
	assert.Equal(t, "+15550001111", r.PostData.From)
	assert.Equal(t, "completed", r.PostData.StatusCallbackEvent)
	assert.Equal(t, "POST", r.PostData.StatusCallbackMethod)
	assert.Equal(t, 2, strings.Count(r.PostData.Twiml, "Server db is down"))
	assert.Contains(t, r.PostData.Twiml, `timeout="15"`)
	assert.Empty(t, r.PostData.StatusCallback)
}

func TestPlaceCallStatusCallback(t *testing.T) {
	t.Parallel()

	ts := twiliotest.NewServer(http.StatusCreated, `{"sid":"CA7"}`)
	defer ts.Close()

	c := twilioConfig(ts.URL)
	c.StatusCallback = "https://example.com/twilio/status"
	o := NewTwilioCaller(c, zap.NewNop()).
		PlaceCall(context.Background(), "+15551234567", "msg", "Ravi", Secondary)
	require.True(t, o.Success, o.Error)
	assert.Equal(t, "CA7", o.CallID)

	requests := ts.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "https://example.com/twilio/status", requests[0].PostData.StatusCallback)
}

func TestPlaceCallInvalidBaseURL(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"api.twilio.com", "://bad"} {
		o := NewTwilioCaller(twilioConfig(base), zap.NewNop()).
			PlaceCall(context.Background(), "+15551234567", "msg", "Asha", Primary)
		assert.False(t, o.Success, base)
		assert.True(t, strings.HasPrefix(o.Error, "Unexpected error: "), o.Error)
	}
}

func TestPlaceCallUnknownSID(t *testing.T) {
	t.Parallel()

	ts := twiliotest.NewServer(http.StatusCreated, `queued`)
	defer ts.Close()

	o := NewTwilioCaller(twilioConfig(ts.URL), zap.NewNop()).
		PlaceCall(context.Background(), "+15551234567", "msg", "Ravi", Secondary)
	assert.True(t, o.Success)
	assert.Equal(t, unknownCallID, o.CallID)
}

func TestPlaceCallRejected(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		ts := twiliotest.NewServer(status, `{"code":21211,"message":"invalid To"}`)

		o := NewTwilioCaller(twilioConfig(ts.URL), zap.NewNop()).
			PlaceCall(context.Background(), "+15551234567", "msg", "Ravi", Primary)
		assert.False(t, o.Success, "status %d", status)
		assert.Empty(t, o.CallID)
		assert.True(t, strings.HasPrefix(o.Error, "HTTP "), o.Error)
		assert.Contains(t, o.Error, "invalid To")

		ts.Close()
	}
}

func TestPlaceCallMissingCredentials(t *testing.T) {
	t.Parallel()

	ts := twiliotest.NewServer(http.StatusCreated, `{"sid":"CA1"}`)
	defer ts.Close()

	for _, mutate := range []func(*TwilioConfig){
		func(c *TwilioConfig) { c.AccountSID = "" },
		func(c *TwilioConfig) { c.AuthToken = "" },
		func(c *TwilioConfig) { c.FromNumber = "" },
	} {
		c := twilioConfig(ts.URL)
		mutate(&c)

		o := NewTwilioCaller(c, zap.NewNop()).PlaceCall(context.Background(), "+15551234567", "msg", "Asha", Primary)
		assert.False(t, o.Success)
		assert.Equal(t, errMissingCredentials, o.Error)
	}
	assert.Empty(t, ts.Requests())
}

func TestPlaceCallNetworkError(t *testing.T) {
	t.Parallel()

	ts := twiliotest.NewServer(http.StatusCreated, `{}`)
	url := ts.URL
	ts.Close()

	o := NewTwilioCaller(twilioConfig(url), zap.NewNop()).
		PlaceCall(context.Background(), "+15551234567", "msg", "Asha", Test)
	assert.False(t, o.Success)
	assert.True(t, strings.HasPrefix(o.Error, "Network error: "), o.Error)
	assert.Equal(t, Test, o.Role)
}
