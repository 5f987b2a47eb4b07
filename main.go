package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"github.com/yuichiro-h/go/aws/sqsrouter"
	"go.uber.org/zap"

	"github.com/yuichiro-h/cwl-alarm-caller/alarm"
	"github.com/yuichiro-h/cwl-alarm-caller/config"
	"github.com/yuichiro-h/cwl-alarm-caller/directory"
	"github.com/yuichiro-h/cwl-alarm-caller/dispatch"
	"github.com/yuichiro-h/cwl-alarm-caller/log"
	"github.com/yuichiro-h/cwl-alarm-caller/phone"
	"github.com/yuichiro-h/cwl-alarm-caller/voice"
)

func main() {
	app := cli.NewApp()
	app.Name = "cwl-alarm-caller"
	app.Usage = "call on-call contacts when a CloudWatch alarm fires"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config",
			EnvVar: "CONFIG_FILE",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		if err := config.Load(ctx.String("config")); err != nil {
			return err
		}
		return log.Init(config.Get().Debug)
	}
	app.Action = runLambda
	app.Commands = []cli.Command{
		{
			Name:   "lambda",
			Usage:  "serve as the Lambda function handler",
			Action: runLambda,
		},
		{
			Name:  "invoke",
			Usage: "handle one event read from a file",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "event", Usage: "path to the event JSON ('-' for stdin)", Value: "-"},
			},
			Action: runInvoke,
		},
		{
			Name:   "listen",
			Usage:  "handle alarm notifications from the SQS queue until interrupted",
			Action: runListen,
		},
		{
			Name:  "call",
			Usage: "place a test call",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "to", Usage: "number to call"},
				cli.StringFlag{Name: "name", Value: "Test Contact"},
			},
			Action: runTestCall,
		},
		{
			Name:  "contacts",
			Usage: "look up the contacts of a resource",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "resource", Value: "test-server"},
				cli.BoolFlag{Name: "dry-run", Usage: "also list the calls that would be placed"},
			},
			Action: runContacts,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Get().Error("error occurred", zap.String("cause", fmt.Sprintf("%+v", err)))
		os.Exit(1)
	}
}

// components wires the pipeline from the process config.
type components struct {
	config     *config.Config
	directory  *directory.Client
	caller     *dispatch.TwilioCaller
	dispatcher *dispatch.Dispatcher
	handler    *Handler
}

func newComponents() *components {
	c := config.Get()
	logger := log.Get()

	if c.Twilio.AuthToken == "" && c.Twilio.AuthTokenParameter != "" {
		sess, err := session.NewSession(aws.NewConfig().WithRegion(c.AWS.Region))
		if err == nil {
			err = c.ResolveSecrets(ssm.New(sess))
		}
		if err != nil {
			logger.Error("failed to resolve twilio auth token", zap.String("cause", fmt.Sprintf("%+v", err)))
		}
	}

	checkTwilio(c.Twilio, logger)

	dir := directory.NewClient(directory.Config{
		URL:       c.Directory.URL,
		UserAgent: c.UserAgent,
		Timeout:   c.Directory.Timeout,
	}, phone.NewNormalizer(logger), logger)

	caller := dispatch.NewTwilioCaller(dispatch.TwilioConfig{
		AccountSID:     c.Twilio.AccountSID,
		AuthToken:      c.Twilio.AuthToken,
		FromNumber:     c.Twilio.FromNumber,
		BaseURL:        c.Twilio.BaseURL,
		UserAgent:      c.UserAgent,
		StatusCallback: c.Twilio.StatusCallback,
		Timeout:        c.Twilio.Timeout,
		GatherTimeout:  c.Twilio.GatherTimeout,
	}, logger)
	dispatcher := dispatch.NewDispatcher(caller, logger)

	opts := []HandlerOption{WithIgnore(c.Ignored)}
	if n := newSlackNotifier(c); n != nil {
		opts = append(opts, WithNotifier(n))
	}

	return &components{
		config:     c,
		directory:  dir,
		caller:     caller,
		dispatcher: dispatcher,
		handler:    NewHandler(dir, dispatcher, logger, opts...),
	}
}

// checkTwilio warns once at startup when calls cannot be placed.
func checkTwilio(t config.Twilio, logger *zap.Logger) bool {
	if t.HasCredentials() {
		return true
	}
	logger.Warn("missing twilio credentials, calls will fail",
		zap.Bool("account_sid", t.AccountSID != ""),
		zap.Bool("auth_token", t.AuthToken != ""),
		zap.Bool("from_number", t.FromNumber != ""))
	return false
}

func runLambda(_ *cli.Context) error {
	lambda.Start(newComponents().handler.HandleRequest)
	return nil
}

func runInvoke(ctx *cli.Context) error {
	var (
		data []byte
		err  error
	)
	if name := ctx.String("event"); name == "-" {
		data, err = ioutil.ReadAll(os.Stdin)
	} else {
		data, err = ioutil.ReadFile(name)
	}
	if err != nil {
		return errors.WithStack(err)
	}

	resp := newComponents().handler.Handle(context.Background(), data)
	return printJSON(resp)
}

func runListen(_ *cli.Context) error {
	comps := newComponents()
	if comps.config.AWS.AlarmSqsURL == "" {
		return errors.New("aws.alarm_sqs_url is not set")
	}

	sess, err := session.NewSession(aws.NewConfig().WithRegion(comps.config.AWS.Region))
	if err != nil {
		return errors.WithStack(err)
	}

	router := sqsrouter.New(sess, sqsrouter.WithLogger(log.Get()))
	router.AddHandler(comps.config.AWS.AlarmSqsURL, newListener(comps.handler, log.Get()).route)
	router.Start()
	log.Get().Info("listening", zap.String("queue_url", comps.config.AWS.AlarmSqsURL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Get().Info("stopping")
	router.Stop()
	return nil
}

func runTestCall(ctx *cli.Context) error {
	to := ctx.String("to")
	if to == "" {
		return errors.New("--to is required")
	}

	e := &alarm.Event{
		Resource:        "test-server",
		StateChangeTime: time.Now().UTC().Format(time.RFC3339Nano),
	}
	o := newComponents().caller.PlaceCall(context.Background(), to, voice.BuildScript(e), ctx.String("name"), dispatch.Test)
	return printJSON(o)
}

func runContacts(ctx *cli.Context) error {
	comps := newComponents()
	resource := ctx.String("resource")

	contacts := comps.directory.Lookup(context.Background(), resource)
	out := map[string]interface{}{
		"server":         resource,
		"contacts_found": len(contacts),
		"contacts":       contacts,
	}
	if ctx.Bool("dry-run") {
		out["contacts_to_call"] = dispatch.Plan(contacts)
	}
	return printJSON(out)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Println(string(data))
	return nil
}
