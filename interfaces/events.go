package interfaces

import (
	"context"

	"github.com/replypilot/replypilot/dto"
)

// EventPublisher enqueues newly ingested emails for the pipeline.
type EventPublisher interface {
	PublishEmailReceived(ctx context.Context, event dto.EmailReceived) error
	Close() error
}

// EmailReceivedHandler processes one queued inbound email end to end.
type EmailReceivedHandler interface {
	Handle(ctx context.Context, event dto.EmailReceived) error
}
