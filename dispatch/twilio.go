package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/yuichiro-h/cwl-alarm-caller/voice"
)

const (
	errMissingCredentials = "missing credentials"
	unknownCallID         = "unknown"
	maxResponseSize       = 64 << 10
)

type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	FromNumber     string
	BaseURL        string
	UserAgent      string
	StatusCallback string
	Timeout        time.Duration
	GatherTimeout  time.Duration
}

func (c TwilioConfig) hasCredentials() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// TwilioCaller places calls through the Twilio Calls API.
type TwilioCaller struct {
	config    TwilioConfig
	transport http.RoundTripper
	logger    *zap.Logger
}

func NewTwilioCaller(c TwilioConfig, logger *zap.Logger) *TwilioCaller {
	return &TwilioCaller{
		config:    c,
		transport: http.DefaultTransport,
		logger:    logger,
	}
}

// PlaceCall dials to and reads message. A call counts as placed once
// Twilio answers 201 Created; the call itself may still go unanswered.
func (t *TwilioCaller) PlaceCall(ctx context.Context, to, message, name string, role Role) Outcome {
	outcome := Outcome{ContactName: name, Role: role, Phone: to}
	logger := t.logger.With(
		zap.String("contact", name),
		zap.Stringer("role", role),
		zap.String("to", to))

	if !t.config.hasCredentials() {
		logger.Error("missing twilio credentials")
		outcome.Error = errMissingCredentials
		return outcome
	}

	twiml, err := voice.TwiML(message, t.config.GatherTimeout)
	if err != nil {
		logger.Error("failed to render twiml", zap.Error(err))
		outcome.Error = fmt.Sprintf("Unexpected error: %v", err)
		return outcome
	}

	rec, err := t.newRecorder(ctx)
	if err != nil {
		logger.Error("invalid twilio base url", zap.Error(err))
		outcome.Error = fmt.Sprintf("Unexpected error: %v", err)
		return outcome
	}

	params := &api.CreateCallParams{}
	params.SetPathAccountSid(t.config.AccountSID)
	params.SetTo(to)
	params.SetFrom(t.config.FromNumber)
	params.SetTwiml(twiml)
	if t.config.StatusCallback != "" {
		params.SetStatusCallback(t.config.StatusCallback)
	}
	params.SetStatusCallbackEvent([]string{"completed"})
	params.SetStatusCallbackMethod(http.MethodPost)

	call, err := t.restClient(rec).Api.CreateCall(params)

	switch {
	case rec.status == 0:
		logger.Error("network error placing call", zap.Error(err))
		outcome.Error = fmt.Sprintf("Network error: %v", errors.Cause(err))
		return outcome
	case rec.status != http.StatusCreated:
		logger.Error("twilio rejected call",
			zap.Int("status", rec.status),
			zap.ByteString("body", rec.body))
		outcome.Error = fmt.Sprintf("HTTP %d: %s", rec.status, strings.TrimSpace(string(rec.body)))
		return outcome
	}

	outcome.Success = true
	outcome.CallID = unknownCallID
	if err == nil && call != nil && call.Sid != nil && *call.Sid != "" {
		outcome.CallID = *call.Sid
	} else if err != nil {
		logger.Warn("failed to decode twilio response", zap.Error(err))
	}
	logger.Info("call initiated", zap.String("call_sid", outcome.CallID))
	return outcome
}

func (t *TwilioCaller) restClient(rec *recorder) *twilio.RestClient {
	c := &client.Client{
		Credentials: client.NewCredentials(t.config.AccountSID, t.config.AuthToken),
		HTTPClient:  &http.Client{Timeout: t.config.Timeout, Transport: rec},
	}
	c.SetAccountSid(t.config.AccountSID)
	return twilio.NewRestClientWithParams(twilio.ClientParams{Client: c})
}

func (t *TwilioCaller) newRecorder(ctx context.Context) (*recorder, error) {
	rec := &recorder{ctx: ctx, next: t.transport, userAgent: t.config.UserAgent}
	if t.config.BaseURL == "" {
		return rec, nil
	}
	u, err := url.Parse(t.config.BaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", t.config.BaseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q needs a scheme and host", t.config.BaseURL)
	}
	rec.target = u
	return rec, nil
}

// recorder carries a single Calls API exchange. It points the request at
// the configured endpoint and keeps the raw status and body, which the
// REST client only surfaces as a decoded value or error.
type recorder struct {
	ctx       context.Context
	next      http.RoundTripper
	target    *url.URL
	userAgent string

	status int
	body   []byte
}

func (r *recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(r.ctx)
	if r.target != nil {
		req.URL.Scheme = r.target.Scheme
		req.URL.Host = r.target.Host
		req.Host = r.target.Host
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", strings.TrimSpace(r.userAgent+" "+req.Header.Get("User-Agent")))
	}

	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	resp.Body.Close()
	if err != nil {
		return nil, errors.Wrap(err, "read twilio response")
	}
	r.status = resp.StatusCode
	r.body = body
	resp.Body = ioutil.NopCloser(bytes.NewReader(body))
	return resp, nil
}
