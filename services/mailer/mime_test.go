package mailer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/models"
)

func testAccount() *models.MailAccount {
	return &models.MailAccount{
		ID:           "acct_1",
		EmailAddress: "sales@acme.com",
		DisplayName:  "Acme Sales",
	}
}

func TestBuildMIMEMessage_PlainText(t *testing.T) {
	msg := &interfaces.OutboundMessage{
		To:       []string{"jane@example.com"},
		Subject:  "Your quote",
		BodyText: "Here it is.",
	}

	raw := string(buildMIMEMessage(testAccount(), msg, "<abc@acme.com>"))

	assert.Contains(t, raw, "From: Acme Sales <sales@acme.com>\r\n")
	assert.Contains(t, raw, "To: jane@example.com\r\n")
	assert.Contains(t, raw, "Message-ID: <abc@acme.com>\r\n")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=utf-8\r\n")
	assert.Contains(t, raw, "Here it is.")
	assert.NotContains(t, raw, "In-Reply-To")
}

func TestBuildMIMEMessage_ThreadingHeaders(t *testing.T) {
	msg := &interfaces.OutboundMessage{
		To:         []string{"jane@example.com"},
		Subject:    "Re: Your quote",
		BodyText:   "Following up.",
		InReplyTo:  "original@example.com",
		References: []string{"root@example.com", "<original@example.com>"},
	}

	raw := string(buildMIMEMessage(testAccount(), msg, "<abc@acme.com>"))

	assert.Contains(t, raw, "In-Reply-To: <original@example.com>\r\n")
	assert.Contains(t, raw, "References: <root@example.com> <original@example.com>\r\n")
}

func TestBuildMIMEMessage_MultipartAlternative(t *testing.T) {
	msg := &interfaces.OutboundMessage{
		To:       []string{"jane@example.com"},
		Subject:  "Hello",
		BodyText: "plain version",
		BodyHTML: "<p>html version</p>",
	}

	raw := string(buildMIMEMessage(testAccount(), msg, "<abc@acme.com>"))

	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "text/plain; charset=utf-8")
	assert.Contains(t, raw, "text/html; charset=utf-8")
	assert.Contains(t, raw, "plain version")
	assert.Contains(t, raw, "<p>html version</p>")

	// headers precede the body separator
	headerEnd := strings.Index(raw, "\r\n\r\n")
	require.Greater(t, headerEnd, 0)
	assert.Contains(t, raw[:headerEnd], "boundary=")
}

func TestNewOutboundMessageID_UsesAccountDomain(t *testing.T) {
	id := newOutboundMessageID(testAccount())
	assert.True(t, strings.HasPrefix(id, "<"))
	assert.True(t, strings.HasSuffix(id, "@acme.com>"))
}

func TestValidateOutbound(t *testing.T) {
	assert.Error(t, validateOutbound(&interfaces.OutboundMessage{BodyText: "hi"}))
	assert.Error(t, validateOutbound(&interfaces.OutboundMessage{To: []string{"not-an-address"}, BodyText: "hi"}))
	assert.Error(t, validateOutbound(&interfaces.OutboundMessage{To: []string{"jane@example.com"}}))
	assert.NoError(t, validateOutbound(&interfaces.OutboundMessage{To: []string{"jane@example.com"}, BodyText: "hi"}))
}
