// Package dispatch places alert calls to resolved contacts and collects
// the outcome of every attempt.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/yuichiro-h/cwl-alarm-caller/alarm"
	"github.com/yuichiro-h/cwl-alarm-caller/directory"
	"github.com/yuichiro-h/cwl-alarm-caller/voice"
)

type Role int

const (
	Primary Role = iota
	Secondary
	Test
)

func (r Role) String() string {
	switch r {
	case Primary:
		return "Primary"
	case Secondary:
		return "Secondary"
	case Test:
		return "Test"
	default:
		return "Unknown"
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Outcome is the result of one dial attempt.
type Outcome struct {
	ContactName string `json:"contact_name"`
	Role        Role   `json:"contact_type"`
	Phone       string `json:"phone"`
	Success     bool   `json:"success"`
	CallID      string `json:"call_sid,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Result aggregates all attempts for one alarm. Team and escalation come
// from the last contact processed.
type Result struct {
	Resource          string    `json:"server"`
	Team              string    `json:"team"`
	EscalationMinutes int       `json:"escalation_time"`
	CallsInitiated    int       `json:"calls_initiated"`
	Outcomes          []Outcome `json:"call_results"`
}

func (r *Result) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Success {
		r.CallsInitiated++
	}
}

// Caller places a single call. Failures are reported in the Outcome.
type Caller interface {
	PlaceCall(ctx context.Context, to, message, name string, role Role) Outcome
}

type Dispatcher struct {
	caller Caller
	logger *zap.Logger
}

func NewDispatcher(caller Caller, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{caller: caller, logger: logger}
}

// DispatchAll calls every contact in order, primary first. Secondary
// contacts are called right away; the escalation delay is only reported.
func (d *Dispatcher) DispatchAll(ctx context.Context, contacts []directory.Contact, e *alarm.Event) Result {
	result := Result{
		Resource:          e.Resource,
		Team:              directory.DefaultTeam,
		EscalationMinutes: directory.DefaultEscalationMinutes,
	}
	if len(contacts) == 0 {
		d.logger.Warn("no contacts to call", zap.String("resource", e.Resource))
		return result
	}

	message := voice.BuildScript(e)
	for _, c := range contacts {
		result.Team = c.Team
		result.EscalationMinutes = c.EscalationMinutes

		d.logger.Info("calling contacts",
			zap.String("resource", e.Resource),
			zap.String("team", c.Team),
			zap.String("down_since", e.StateChangeTime),
			zap.Int("escalation_minutes", c.EscalationMinutes))

		if c.PrimaryPhone != "" {
			result.add(d.caller.PlaceCall(ctx, c.PrimaryPhone, message, c.PrimaryName, Primary))
		}
		if c.HasSecondary() {
			result.add(d.caller.PlaceCall(ctx, c.SecondaryPhone, message, secondaryName(c), Secondary))
		}
	}

	d.logger.Info("dispatch finished",
		zap.String("resource", e.Resource),
		zap.Int("attempts", len(result.Outcomes)),
		zap.Int("calls_initiated", result.CallsInitiated))
	return result
}

func secondaryName(c directory.Contact) string {
	if c.SecondaryName != "" {
		return c.SecondaryName
	}
	return Secondary.String()
}

// PlannedCall is a call DispatchAll would place, with the delay the
// escalation policy asks for.
type PlannedCall struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Role         Role   `json:"role"`
	DelayMinutes int    `json:"escalation_delay"`
}

// Plan lists the calls for contacts without placing them.
func Plan(contacts []directory.Contact) []PlannedCall {
	var calls []PlannedCall
	for _, c := range contacts {
		calls = append(calls, PlannedCall{Name: c.PrimaryName, Phone: c.PrimaryPhone, Role: Primary})
		if c.HasSecondary() {
			calls = append(calls, PlannedCall{
				Name:         secondaryName(c),
				Phone:        c.SecondaryPhone,
				Role:         Secondary,
				DelayMinutes: c.EscalationMinutes,
			})
		}
	}
	return calls
}
