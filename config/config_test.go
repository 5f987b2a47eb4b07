package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultDirectoryURL, cfg.Directory.URL)
	assert.Equal(t, 10*time.Second, cfg.Directory.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Twilio.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Twilio.GatherTimeout)
	assert.Equal(t, "https://api.twilio.com", cfg.Twilio.BaseURL)
	assert.Equal(t, "AWS Lambda Server Monitor", cfg.UserAgent)
	assert.False(t, cfg.Twilio.HasCredentials())
}

func TestParseFileAndEnv(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
debug: false
directory:
  url: http://directory.local/exec
  timeout: 3s
twilio:
  account_sid: AC123
  from_number: "+15550001111"
ignore:
  - "test-*"
  - "*-staging"
`)
	require.NoError(t, ioutil.WriteFile(path, data, 0600))

	cfg, err := Parse(path, env(map[string]string{
		"TWILIO_AUTH_TOKEN": "secret",
		"DEBUG":             "true",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "http://directory.local/exec", cfg.Directory.URL)
	assert.Equal(t, 3*time.Second, cfg.Directory.Timeout)
	assert.Equal(t, "AC123", cfg.Twilio.AccountSID)
	assert.Equal(t, "secret", cfg.Twilio.AuthToken)
	assert.True(t, cfg.Twilio.HasCredentials())

	assert.True(t, cfg.Ignored("test-web"))
	assert.True(t, cfg.Ignored("db-staging"))
	assert.False(t, cfg.Ignored("prod-db"))
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	_, err := Parse(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	require.Error(t, err)

	_, err = Parse("", env(map[string]string{"DEBUG": "maybe"}))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("ignore: [\"[unterminated\"]\n"), 0600))
	_, err = Parse(path, env(nil))
	require.Error(t, err)
}

type ssmMock struct {
	ssmiface.SSMAPI
	calls    int
	failures int
	value    *string
	err      error
}

func (m *ssmMock) GetParameter(in *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
	m.calls++
	if m.err != nil && (m.failures == 0 || m.calls <= m.failures) {
		return nil, m.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssm.Parameter{Name: in.Name, Value: m.value}}, nil
}

func TestResolveSecrets(t *testing.T) {
	t.Parallel()

	cfg := newDefault()
	cfg.Twilio.AuthTokenParameter = "/caller/twilio/token"
	api := &ssmMock{value: aws.String("from-ssm")}

	require.NoError(t, cfg.ResolveSecrets(api))
	assert.Equal(t, "from-ssm", cfg.Twilio.AuthToken)
	assert.Equal(t, 1, api.calls)

	// Already set, no lookup.
	require.NoError(t, cfg.ResolveSecrets(api))
	assert.Equal(t, 1, api.calls)

	cfg = newDefault()
	cfg.Twilio.AuthTokenParameter = "/caller/twilio/token"
	require.Error(t, cfg.ResolveSecrets(&ssmMock{}))
	assert.Empty(t, cfg.Twilio.AuthToken)
}

func TestResolveSecretsFailure(t *testing.T) {
	t.Parallel()

	cfg := newDefault()
	cfg.Twilio.AuthTokenParameter = "/caller/twilio/token"
	api := &ssmMock{err: errors.New("access denied")}

	require.Error(t, cfg.resolveSecrets(api, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, ssmMaxRetries)))
	assert.Empty(t, cfg.Twilio.AuthToken)
	assert.Equal(t, ssmMaxRetries+1, api.calls)
}

func TestResolveSecretsTransientFailure(t *testing.T) {
	t.Parallel()

	cfg := newDefault()
	cfg.Twilio.AuthTokenParameter = "/caller/twilio/token"
	api := &ssmMock{err: errors.New("throttled"), failures: 2, value: aws.String("from-ssm")}

	require.NoError(t, cfg.resolveSecrets(api, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, ssmMaxRetries)))
	assert.Equal(t, "from-ssm", cfg.Twilio.AuthToken)
	assert.Equal(t, 3, api.calls)
}
