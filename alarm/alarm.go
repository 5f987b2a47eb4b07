package alarm

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultState  = "ALARM"
	DefaultRegion = "unknown"
)

// ErrMalformedEvent is returned when the payload is not an alarm notification.
var ErrMalformedEvent = errors.New("malformed alarm event")

// Event is a parsed CloudWatch alarm notification.
type Event struct {
	AlarmName       string
	Description     string
	NewState        string
	Reason          string
	StateChangeTime string
	Region          string
	Resource        string
}

// message mirrors the CloudWatch alarm JSON. Fields are decoded loosely
// because any of them may be missing or carry an unexpected type.
type message struct {
	AlarmName        json.RawMessage `json:"AlarmName"`
	AlarmDescription json.RawMessage `json:"AlarmDescription"`
	NewStateValue    json.RawMessage `json:"NewStateValue"`
	NewStateReason   json.RawMessage `json:"NewStateReason"`
	StateChangeTime  json.RawMessage `json:"StateChangeTime"`
	Region           json.RawMessage `json:"Region"`
}

type snsRecord struct {
	Sns *struct {
		Message *string `json:"Message"`
	} `json:"Sns"`
}

// Parse reads an inbound payload. It accepts an optional {"event": ...}
// wrapper, an SNS envelope with Records, or the alarm message itself.
func Parse(payload []byte, now time.Time) (*Event, error) {
	obj, err := object(payload)
	if err != nil {
		return nil, err
	}

	if inner, ok := obj["event"]; ok {
		if obj, err = object(inner); err != nil {
			return nil, err
		}
	}

	// Records only count as an envelope when they hold at least one entry.
	var body []byte
	if raw, ok := obj["Records"]; ok {
		var records []json.RawMessage
		if err := json.Unmarshal(raw, &records); err == nil && len(records) > 0 {
			var r snsRecord
			if err := json.Unmarshal(records[0], &r); err != nil || r.Sns == nil || r.Sns.Message == nil {
				return nil, errors.Wrap(ErrMalformedEvent, "record has no sns message")
			}
			body = []byte(*r.Sns.Message)
		}
	}

	var msg message
	if body == nil {
		body, err = json.Marshal(obj)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	if _, err := object(body); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, errors.Wrap(ErrMalformedEvent, err.Error())
	}

	e := &Event{
		AlarmName:       stringOr(msg.AlarmName, "Unknown"),
		Description:     stringOr(msg.AlarmDescription, ""),
		NewState:        stringOr(msg.NewStateValue, DefaultState),
		Reason:          stringOr(msg.NewStateReason, ""),
		StateChangeTime: stringOr(msg.StateChangeTime, now.UTC().Format(time.RFC3339Nano)),
		Region:          stringOr(msg.Region, DefaultRegion),
	}
	e.Resource = ExtractName(stringOr(msg.AlarmName, ""))
	return e, nil
}

func object(data []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, errors.Wrap(ErrMalformedEvent, err.Error())
	}
	if obj == nil {
		return nil, errors.Wrap(ErrMalformedEvent, "payload is not an object")
	}
	return obj, nil
}

// stringOr returns raw as a string, or def when it is absent or not a string.
func stringOr(raw json.RawMessage, def string) string {
	if len(raw) == 0 || string(raw) == "null" {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return def
	}
	return s
}
