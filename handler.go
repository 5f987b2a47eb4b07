package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/yuichiro-h/cwl-alarm-caller/alarm"
	"github.com/yuichiro-h/cwl-alarm-caller/directory"
	"github.com/yuichiro-h/cwl-alarm-caller/dispatch"
)

type state int

const (
	stateReceived state = iota
	stateParsed
	stateContactsResolved
	stateDispatched
	stateRejected
	stateIgnored
	stateEmpty
	stateFailed
)

func (s state) String() string {
	return [...]string{"received", "parsed", "contacts_resolved", "dispatched", "rejected", "ignored", "empty", "failed"}[s]
}

// Response follows the Lambda proxy response shape.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type responseBody struct {
	Message        string `json:"message"`
	Server         string `json:"server"`
	Team           string `json:"team"`
	ContactsFound  int    `json:"contacts_found"`
	CallsInitiated int    `json:"calls_initiated"`
	EscalationTime int    `json:"escalation_time"`
	Timestamp      string `json:"timestamp"`
}

type contactDirectory interface {
	Lookup(ctx context.Context, resource string) []directory.Contact
}

type callDispatcher interface {
	DispatchAll(ctx context.Context, contacts []directory.Contact, e *alarm.Event) dispatch.Result
}

type summaryNotifier interface {
	Notify(ctx context.Context, s *summary) error
}

// summary is what gets reported after an alarm was handled.
type summary struct {
	Event    *alarm.Event
	Contacts int
	Result   dispatch.Result
}

// Handler runs one alarm notification through lookup and dispatch.
type Handler struct {
	directory  contactDirectory
	dispatcher callDispatcher
	notifier   summaryNotifier
	ignored    func(resource string) bool
	logger     *zap.Logger
	now        func() time.Time
}

type HandlerOption func(*Handler)

func WithNotifier(n summaryNotifier) HandlerOption {
	return func(h *Handler) {
		h.notifier = n
	}
}

func WithIgnore(ignored func(resource string) bool) HandlerOption {
	return func(h *Handler) {
		h.ignored = ignored
	}
}

func withClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

func NewHandler(dir contactDirectory, dispatcher callDispatcher, logger *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		directory:  dir,
		dispatcher: dispatcher,
		ignored:    func(string) bool { return false },
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleRequest is the Lambda entrypoint.
func (h *Handler) HandleRequest(ctx context.Context, payload json.RawMessage) (Response, error) {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		ctx = withLogger(ctx, h.logger.With(zap.String("request_id", lc.AwsRequestID)))
	}
	return h.Handle(ctx, payload), nil
}

// Handle never panics; unexpected faults become a 500 response.
func (h *Handler) Handle(ctx context.Context, payload []byte) Response {
	_, resp := h.process(ctx, payload)
	return resp
}

func (h *Handler) process(ctx context.Context, payload []byte) (st state, resp Response) {
	logger := loggerFrom(ctx, h.logger)
	st = stateReceived

	defer func() {
		if r := recover(); r != nil {
			err := errors.Errorf("%v", r)
			logger.Error("unhandled fault",
				zap.Stringer("state", st),
				zap.String("cause", fmt.Sprintf("%+v", err)))
			st, resp = stateFailed, Response{
				StatusCode: http.StatusInternalServerError,
				Body:       fmt.Sprintf("Error: %v", r),
			}
		}
	}()

	logger.Info("received event", zap.ByteString("event", payload))

	e, err := alarm.Parse(payload, h.now())
	if err != nil {
		logger.Error("could not parse alarm data from event", zap.Error(err))
		return stateRejected, Response{StatusCode: http.StatusBadRequest, Body: "Invalid event format"}
	}
	st = stateParsed
	logger = logger.With(zap.String("resource", e.Resource))
	logger.Info("processing alarm",
		zap.String("alarm_name", e.AlarmName),
		zap.String("new_state", e.NewState),
		zap.String("region", e.Region))

	if h.ignored(e.Resource) {
		logger.Info("alarm ignored")
		return stateIgnored, h.respond("Alarm ignored", e, 0, emptyResult(e))
	}

	contacts := h.directory.Lookup(ctx, e.Resource)
	if len(contacts) == 0 {
		logger.Warn("no contacts found")
		result := emptyResult(e)
		h.notify(ctx, logger, &summary{Event: e, Result: result})
		return stateEmpty, h.respond("No contacts configured", e, 0, result)
	}
	st = stateContactsResolved

	result := h.dispatcher.DispatchAll(ctx, contacts, e)
	st = stateDispatched
	logger.Info("alert processed",
		zap.String("team", result.Team),
		zap.Int("contacts", len(contacts)),
		zap.Int("calls_initiated", result.CallsInitiated),
		zap.Any("call_results", result.Outcomes))

	h.notify(ctx, logger, &summary{Event: e, Contacts: len(contacts), Result: result})
	return stateDispatched, h.respond("Server alert processed successfully", e, len(contacts), result)
}

func (h *Handler) respond(message string, e *alarm.Event, contacts int, result dispatch.Result) Response {
	body, err := json.Marshal(responseBody{
		Message:        message,
		Server:         e.Resource,
		Team:           result.Team,
		ContactsFound:  contacts,
		CallsInitiated: result.CallsInitiated,
		EscalationTime: result.EscalationMinutes,
		Timestamp:      e.StateChangeTime,
	})
	if err != nil {
		panic(errors.WithStack(err))
	}
	return Response{StatusCode: http.StatusOK, Body: string(body)}
}

func (h *Handler) notify(ctx context.Context, logger *zap.Logger, s *summary) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx, s); err != nil {
		logger.Error("failed to post summary", zap.Error(err))
	}
}

func emptyResult(e *alarm.Event) dispatch.Result {
	return dispatch.Result{
		Resource:          e.Resource,
		Team:              directory.DefaultTeam,
		EscalationMinutes: directory.DefaultEscalationMinutes,
	}
}

type loggerKey struct{}

func withLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func loggerFrom(ctx context.Context, def *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return def
}
