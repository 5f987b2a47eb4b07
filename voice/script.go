// Package voice renders the spoken alert and the TwiML document that
// carries it.
package voice

import (
	"fmt"
	"strings"
	"time"

	"github.com/yuichiro-h/cwl-alarm-caller/alarm"
)

const readableLayout = "January 02 at 03:04 PM UTC"

// timestampLayouts are tried in order. The second is the layout
// CloudWatch uses for StateChangeTime.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999-0700",
	"2006-01-02T15:04:05.999999-07:00",
	"2006-01-02T15:04:05.999999",
}

const scriptTemplate = `
	URGENT: Server Alert from AWS CloudWatch.
	Server %s is currently down and requires immediate attention.
	The alert was triggered on %s.
	Please check your monitoring dashboard and take appropriate action immediately.
	This is an automated emergency call from your server monitoring system.
`

// BuildScript returns the message read out during an alert call.
func BuildScript(e *alarm.Event) string {
	msg := fmt.Sprintf(scriptTemplate, e.Resource, ReadableTime(e.StateChangeTime))
	return strings.Join(strings.Fields(msg), " ")
}

// ReadableTime formats an ISO-8601 timestamp for speech. Unparsable input
// is returned unchanged.
func ReadableTime(ts string) string {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC().Format(readableLayout)
		}
	}
	return ts
}
