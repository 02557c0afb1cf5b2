package events

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/replypilot/replypilot/dto"
	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/tracing"
)

// EmailReceivedListener hands each queued email to the pipeline.
type EmailReceivedListener struct {
	log      logger.Logger
	pipeline interfaces.PipelineService
}

func NewEmailReceivedListener(log logger.Logger, pipeline interfaces.PipelineService) *EmailReceivedListener {
	return &EmailReceivedListener{log: log, pipeline: pipeline}
}

func (l *EmailReceivedListener) Handle(ctx context.Context, event dto.EmailReceived) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailReceivedListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)
	span.SetTag("email.id", event.EmailID)

	if err := l.pipeline.Process(ctx, event.EmailID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
