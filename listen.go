package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/yuichiro-h/go/aws/sqsrouter"
	"go.uber.org/zap"
)

type payloadHandler interface {
	Handle(ctx context.Context, payload []byte) Response
}

// listener feeds alarm notifications that SNS delivers to an SQS queue
// into the handler.
type listener struct {
	handler payloadHandler
	logger  *zap.Logger
}

func newListener(h payloadHandler, logger *zap.Logger) *listener {
	return &listener{handler: h, logger: logger}
}

func (l *listener) route(ctx *sqsrouter.Context) {
	ctx.SetDeleteOnFinish(l.done(ctx))
}

// done handles one message and reports whether it can be deleted. Only
// internal failures keep it in the queue for another attempt.
func (l *listener) done(ctx *sqsrouter.Context) bool {
	if ctx.Message == nil || ctx.Message.Body == nil {
		l.logger.Warn("empty message")
		return true
	}
	logger := l.logger.With(zap.String("message_id", aws.StringValue(ctx.Message.MessageId)))

	msg, err := ctx.GetSNSMessage()
	if err != nil {
		logger.Error("failed to get sns message", zap.Error(err))
		return true
	}

	// SNSからのメッセージはMessageにアラームのJSONが入っている
	// raw message deliveryの場合はBodyがそのままアラーム
	payload := []byte(msg.Message)
	if msg.Message == "" {
		payload = []byte(*ctx.Message.Body)
	}

	resp := l.handler.Handle(context.Background(), payload)
	logger.Info("handled message", zap.Int("status", resp.StatusCode), zap.String("body", resp.Body))
	return resp.StatusCode != http.StatusInternalServerError
}
