package interfaces

import (
	"context"
	"time"

	"github.com/replypilot/replypilot/internal/models"
)

// RawMessage is a provider-agnostic inbound message as fetched from the
// mailbox, before it is persisted.
type RawMessage struct {
	MessageID  string
	ThreadID   string
	InReplyTo  string
	References []string
	Headers    map[string]string

	From string
	To   []string
	Cc   []string
	Bcc  []string

	Subject  string
	BodyText string
	BodyHTML string

	ReceivedAt time.Time
}

// OutboundMessage is a reply or follow-up to be sent through an account.
// BodyText is authoritative; BodyHTML is an optional alternative part.
type OutboundMessage struct {
	To       []string
	Subject  string
	BodyText string
	BodyHTML string

	// threading hints so the message lands in the original thread
	InReplyTo  string
	References []string
	ThreadID   string
}

// MailClient is the uniform fetch/send capability over all account variants.
// Implementations refresh OAuth tokens in place when expired and retry
// transient failures with bounded backoff.
type MailClient interface {
	// FetchNew returns messages received after since, ascending by received time.
	FetchNew(ctx context.Context, account *models.MailAccount, since time.Time) ([]*RawMessage, error)
	// Send delivers the message and returns the provider message id.
	Send(ctx context.Context, account *models.MailAccount, msg *OutboundMessage) (string, error)
}
