package mailer

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGmailMessage(t *testing.T) {
	msg := &gmailMessage{
		ID:           "18f2a",
		ThreadID:     "thread-9",
		InternalDate: "1731420000000",
		Payload: gmailMessagePart{
			MimeType: "multipart/alternative",
			Headers: []gmailHeader{
				{Name: "Message-Id", Value: "<msg-1@example.com>"},
				{Name: "In-Reply-To", Value: "<msg-0@example.com>"},
				{Name: "References", Value: "<root@example.com> <msg-0@example.com>"},
				{Name: "Subject", Value: "Re: Pricing"},
				{Name: "From", Value: "Jane Doe <jane@example.com>"},
				{Name: "To", Value: "sales@acme.com, ops@acme.com"},
			},
			Parts: []gmailMessagePart{
				{
					MimeType: "text/plain",
					Body:     gmailBody{Data: base64.URLEncoding.EncodeToString([]byte("sounds good"))},
				},
				{
					MimeType: "text/html",
					Body:     gmailBody{Data: base64.URLEncoding.EncodeToString([]byte("<p>sounds good</p>"))},
				},
			},
		},
	}

	raw := parseGmailMessage(msg)
	require.NotNil(t, raw)

	assert.Equal(t, "msg-1@example.com", raw.MessageID)
	assert.Equal(t, "msg-0@example.com", raw.InReplyTo)
	assert.Equal(t, []string{"root@example.com", "msg-0@example.com"}, raw.References)
	assert.Equal(t, "thread-9", raw.ThreadID)
	assert.Equal(t, "jane@example.com", raw.From)
	assert.Equal(t, []string{"sales@acme.com", "ops@acme.com"}, raw.To)
	assert.Equal(t, "sounds good", raw.BodyText)
	assert.Equal(t, "<p>sounds good</p>", raw.BodyHTML)
	assert.Equal(t, time.UnixMilli(1731420000000).UTC(), raw.ReceivedAt)
}

func TestParseGmailMessage_FallsBackToProviderID(t *testing.T) {
	msg := &gmailMessage{
		ID:           "18f2a",
		InternalDate: "1731420000000",
		Payload: gmailMessagePart{
			MimeType: "text/plain",
			Body:     gmailBody{Data: base64.URLEncoding.EncodeToString([]byte("hello"))},
		},
	}

	raw := parseGmailMessage(msg)
	assert.Equal(t, "18f2a", raw.MessageID)
	assert.Equal(t, "hello", raw.BodyText)
}

func TestParseGraphMessage(t *testing.T) {
	received := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	msg := &graphMessage{
		ID:                "AAMk1",
		InternetMessageID: "<graph-1@example.com>",
		ConversationID:    "conv-7",
		Subject:           "Meeting request",
		ReceivedDateTime:  received,
	}
	msg.From.EmailAddress.Address = "Bob@Example.com"
	msg.Body.ContentType = "html"
	msg.Body.Content = "<p>Can we meet Tuesday?</p>"

	raw := parseGraphMessage(msg)
	assert.Equal(t, "graph-1@example.com", raw.MessageID)
	assert.Equal(t, "conv-7", raw.ThreadID)
	assert.Equal(t, "bob@example.com", raw.From)
	assert.Equal(t, received, raw.ReceivedAt)
	assert.Equal(t, "<p>Can we meet Tuesday?</p>", raw.BodyHTML)
	assert.Contains(t, raw.BodyText, "Can we meet Tuesday?")
}

func TestSplitAddressList(t *testing.T) {
	out := splitAddressList("Jane <jane@example.com>, BOB@example.com")
	assert.Equal(t, []string{"jane@example.com", "bob@example.com"}, out)
}
