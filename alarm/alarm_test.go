package alarm

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC)

const alarmMessage = `{"AlarmName":"prod-db is down","AlarmDescription":"db health","NewStateValue":"ALARM","NewStateReason":"Threshold Crossed","StateChangeTime":"2024-03-05T14:07:00.000+0000","Region":"Asia Pacific (Mumbai)"}`

func TestParseDirect(t *testing.T) {
	t.Parallel()

	e, err := Parse([]byte(alarmMessage), now)
	require.NoError(t, err)

	assert.Equal(t, &Event{
		AlarmName:       "prod-db is down",
		Description:     "db health",
		NewState:        "ALARM",
		Reason:          "Threshold Crossed",
		StateChangeTime: "2024-03-05T14:07:00.000+0000",
		Region:          "Asia Pacific (Mumbai)",
		Resource:        "prod-db",
	}, e)
}

func TestParseSNSEnvelope(t *testing.T) {
	t.Parallel()

	payload := `{"Records":[{"EventSource":"aws:sns","Sns":{"Type":"Notification","Message":` + quote(alarmMessage) + `}}]}`
	e, err := Parse([]byte(payload), now)
	require.NoError(t, err)
	assert.Equal(t, "prod-db", e.Resource)
	assert.Equal(t, "Threshold Crossed", e.Reason)

	wrapped := `{"event":` + payload + `}`
	e, err = Parse([]byte(wrapped), now)
	require.NoError(t, err)
	assert.Equal(t, "prod-db", e.Resource)
}

func TestParseTestWrapper(t *testing.T) {
	t.Parallel()

	e, err := Parse([]byte(`{"event":{"AlarmName":"Server: web-01 is down"}}`), now)
	require.NoError(t, err)
	assert.Equal(t, "web-01", e.Resource)
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	e, err := Parse([]byte(`{"AlarmName":null,"Region":7,"Records":[]}`), now)
	require.NoError(t, err)

	assert.Equal(t, "Unknown", e.AlarmName)
	assert.Equal(t, UnknownResource, e.Resource)
	assert.Equal(t, DefaultState, e.NewState)
	assert.Equal(t, DefaultRegion, e.Region)
	assert.Equal(t, "2024-03-05T14:30:00Z", e.StateChangeTime)
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	payloads := []string{
		``,
		`not json`,
		`null`,
		`[1,2]`,
		`42`,
		`{"event":"text"}`,
		`{"Records":[{"Sns":{}}]}`,
		`{"Records":[{"Sns":{"Message":"not json"}}]}`,
		`{"Records":[{"Sns":{"Message":"[1]"}}]}`,
	}
	for _, p := range payloads {
		_, err := Parse([]byte(p), now)
		require.Error(t, err, "payload %q", p)
		assert.Equal(t, ErrMalformedEvent, errors.Cause(err), "payload %q", p)
	}
}

func TestParseRecordsWithoutEntries(t *testing.T) {
	t.Parallel()

	for _, p := range []string{
		`{"AlarmName":"web-01 is down","Records":{}}`,
		`{"AlarmName":"web-01 is down","Records":[]}`,
		`{"AlarmName":"web-01 is down","Records":"nope"}`,
		`{"AlarmName":"web-01 is down","Records":null}`,
	} {
		e, err := Parse([]byte(p), now)
		require.NoError(t, err, "payload %q", p)
		assert.Equal(t, "web-01 is down", e.AlarmName, "payload %q", p)
		assert.Equal(t, "web-01", e.Resource, "payload %q", p)
	}
}

func quote(s string) string {
	out := []byte{'"'}
	for _, r := range []byte(s) {
		if r == '"' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(append(out, '"'))
}
