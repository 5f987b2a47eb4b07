package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nlopes/slack"
	"github.com/pkg/errors"

	"github.com/yuichiro-h/cwl-alarm-caller/config"
)

type slackPoster interface {
	PostMessage(channel, text string, params slack.PostMessageParameters) (string, string, error)
}

// slackNotifier posts a short summary of each handled alarm.
type slackNotifier struct {
	client  slackPoster
	channel string
	config  *config.Config
}

func newSlackNotifier(c *config.Config) *slackNotifier {
	if c.Slack.APIToken == "" || c.Slack.Channel == "" {
		return nil
	}
	return &slackNotifier{
		client:  slack.New(c.Slack.APIToken),
		channel: c.Slack.Channel,
		config:  c,
	}
}

func (n *slackNotifier) Notify(_ context.Context, s *summary) error {
	text, params := n.message(s)
	if _, _, err := n.client.PostMessage(n.channel, text, params); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (n *slackNotifier) message(s *summary) (string, slack.PostMessageParameters) {
	body := strings.Builder{}
	for _, o := range s.Result.Outcomes {
		status := "called"
		if !o.Success {
			status = "failed: " + o.Error
		}
		body.WriteString(fmt.Sprintf("%s %s (%s) %s\n", o.Role, o.ContactName, o.Phone, status))
	}
	if s.Contacts == 0 {
		body.WriteString("No contacts configured\n")
	}

	attachment := slack.Attachment{
		Color:      n.config.Slack.AttachmentColor,
		MarkdownIn: []string{"text"},
		Text:       body.String(),
		Fields: []slack.AttachmentField{
			{Title: "Team", Value: s.Result.Team, Short: true},
			{Title: "Region", Value: s.Event.Region, Short: true},
			{Title: "Contacts", Value: strconv.Itoa(s.Contacts), Short: true},
			{Title: "Calls initiated", Value: strconv.Itoa(s.Result.CallsInitiated), Short: true},
		},
	}

	params := slack.PostMessageParameters{
		Markdown:    true,
		Username:    n.config.Slack.Username,
		IconURL:     n.config.Slack.IconURL,
		Attachments: []slack.Attachment{attachment},
	}

	text := fmt.Sprintf("*%s* is down (%s)", s.Event.Resource, s.Event.AlarmName)
	return text, params
}
