package mailer

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/utils"
)

// buildMIMEMessage renders an outbound message to wire format. Threading
// headers are set so replies land in the correspondent's original thread.
func buildMIMEMessage(account *models.MailAccount, msg *interfaces.OutboundMessage, messageID string) []byte {
	headers := map[string]string{
		"From":         formatFrom(account),
		"To":           strings.Join(msg.To, ", "),
		"Subject":      mime.QEncoding.Encode("utf-8", msg.Subject),
		"Message-ID":   messageID,
		"Date":         time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version": "1.0",
	}
	if msg.InReplyTo != "" {
		headers["In-Reply-To"] = ensureAngles(msg.InReplyTo)
	}
	if len(msg.References) > 0 {
		refs := make([]string, 0, len(msg.References))
		for _, ref := range msg.References {
			refs = append(refs, ensureAngles(ref))
		}
		headers["References"] = strings.Join(refs, " ")
	}

	var buf bytes.Buffer

	if msg.BodyHTML != "" {
		writer := multipart.NewWriter(&buf)
		headers["Content-Type"] = fmt.Sprintf("multipart/alternative; boundary=%q", writer.Boundary())
		writeHeaders(&buf, headers)

		textHeader := textproto.MIMEHeader{}
		textHeader.Set("Content-Type", "text/plain; charset=utf-8")
		part, _ := writer.CreatePart(textHeader)
		fmt.Fprint(part, msg.BodyText)

		htmlHeader := textproto.MIMEHeader{}
		htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
		part, _ = writer.CreatePart(htmlHeader)
		fmt.Fprint(part, msg.BodyHTML)

		writer.Close()
	} else {
		headers["Content-Type"] = "text/plain; charset=utf-8"
		writeHeaders(&buf, headers)
		buf.WriteString(msg.BodyText)
	}

	return buf.Bytes()
}

func writeHeaders(buf *bytes.Buffer, headers map[string]string) {
	order := []string{"From", "To", "Subject", "Message-ID", "In-Reply-To", "References", "Date", "MIME-Version", "Content-Type"}
	for _, key := range order {
		if value, ok := headers[key]; ok {
			fmt.Fprintf(buf, "%s: %s\r\n", key, value)
		}
	}
	buf.WriteString("\r\n")
}

func formatFrom(account *models.MailAccount) string {
	if account.DisplayName != "" {
		return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", account.DisplayName), account.EmailAddress)
	}
	return account.EmailAddress
}

func ensureAngles(messageID string) string {
	messageID = utils.NormalizeMessageID(messageID)
	return "<" + messageID + ">"
}

func newOutboundMessageID(account *models.MailAccount) string {
	domain := utils.EmailDomain(account.EmailAddress)
	if domain == "" {
		domain = "localhost"
	}
	return utils.GenerateMessageID(domain, account.ID)
}
