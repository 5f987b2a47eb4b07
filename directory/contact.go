package directory

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultTeam              = "Unknown"
	DefaultEscalationMinutes = 5
	minEscalationMinutes     = 1
)

// Column names of the contact sheet.
const (
	fieldServerName       = "Server Name"
	fieldTeam             = "Team"
	fieldPrimaryContact   = "Primary Contact"
	fieldPrimaryPhone     = "Phone Number"
	fieldSecondaryContact = "Secondary Contact"
	fieldSecondaryPhone   = "Secondary Phone"
	fieldEscalation       = "Escalation Time (mins)"
)

// Contact is a validated on-call entry for a resource. PrimaryName and
// PrimaryPhone are always set; phones are already normalized.
type Contact struct {
	Resource          string `json:"resource"`
	Team              string `json:"team"`
	PrimaryName       string `json:"primary_name"`
	PrimaryPhone      string `json:"primary_phone"`
	SecondaryName     string `json:"secondary_name,omitempty"`
	SecondaryPhone    string `json:"secondary_phone,omitempty"`
	EscalationMinutes int    `json:"escalation_minutes"`
}

// HasSecondary reports whether a secondary call can be placed.
func (c *Contact) HasSecondary() bool {
	return c.SecondaryPhone != ""
}

// record is one row of the sheet with every column reduced to text,
// except phones and escalation which keep their raw value for parsing.
type record struct {
	ServerName       string
	Team             string
	PrimaryContact   string
	PrimaryPhone     interface{}
	SecondaryContact string
	SecondaryPhone   interface{}
	Escalation       interface{}
}

func newRecord(m map[string]interface{}) record {
	return record{
		ServerName:       strings.TrimSpace(text(m[fieldServerName])),
		Team:             strings.TrimSpace(text(m[fieldTeam])),
		PrimaryContact:   strings.TrimSpace(text(m[fieldPrimaryContact])),
		PrimaryPhone:     m[fieldPrimaryPhone],
		SecondaryContact: strings.TrimSpace(text(m[fieldSecondaryContact])),
		SecondaryPhone:   m[fieldSecondaryPhone],
		Escalation:       m[fieldEscalation],
	}
}

// text returns scalar values as text. Objects, lists, booleans and null
// become empty.
func text(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// escalationMinutes parses the escalation column, falling back to the
// default when missing or unparsable and clamping to at least one minute.
func escalationMinutes(v interface{}) (int, bool) {
	var n int64
	switch v := v.(type) {
	case nil:
		return DefaultEscalationMinutes, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return DefaultEscalationMinutes, true
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return DefaultEscalationMinutes, false
		}
		n = i
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n = i
			break
		}
		f, err := v.Float64()
		if err != nil || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
			return DefaultEscalationMinutes, false
		}
		n = int64(math.Trunc(f))
	default:
		return DefaultEscalationMinutes, false
	}

	if n < minEscalationMinutes {
		return minEscalationMinutes, true
	}
	if n > math.MaxInt32 {
		return math.MaxInt32, true
	}
	return int(n), true
}
