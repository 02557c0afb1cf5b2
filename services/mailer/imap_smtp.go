package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/crypto"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

// imapSMTPClient fetches over IMAP and sends over SMTP with explicit TLS.
type imapSMTPClient struct {
	log    logger.Logger
	cipher *crypto.Cipher
}

func newIMAPSMTPClient(log logger.Logger, cipher *crypto.Cipher) interfaces.MailClient {
	return &imapSMTPClient{log: log, cipher: cipher}
}

func (c *imapSMTPClient) FetchNew(ctx context.Context, account *models.MailAccount, since time.Time) ([]*interfaces.RawMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imapSMTPClient.FetchNew")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("account.id", account.ID)
	span.SetTag("server", account.IMAPHost)

	imapClient, err := c.connect(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer imapClient.Logout()

	mbox, err := imapClient.Select("INBOX", true)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "select INBOX")
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	// SINCE has day granularity; exact filtering happens on the parsed dates
	criteria := imap.NewSearchCriteria()
	criteria.Since = since.Truncate(24 * time.Hour)
	seqNums, err := imapClient.Search(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "search INBOX")
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, section.FetchItem()}

	messagesCh := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqSet, items, messagesCh)
	}()

	var messages []*interfaces.RawMessage
	for msg := range messagesCh {
		raw := c.parseMessage(msg, section)
		if raw == nil || !raw.ReceivedAt.After(since) {
			continue
		}
		messages = append(messages, raw)
	}
	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "fetch messages")
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})
	span.SetTag("messages.count", len(messages))
	return messages, nil
}

func (c *imapSMTPClient) connect(ctx context.Context, account *models.MailAccount) (*client.Client, error) {
	password, err := c.cipher.Decrypt(account.PasswordEnc)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt password")
	}

	addr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	tlsConfig := &tls.Config{ServerName: account.IMAPHost}

	imapClient, err := client.DialWithDialerTLS(dialer, addr, tlsConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", addr)
	}

	imapClient.Timeout = dialTimeout
	if err := imapClient.Login(account.Username, password); err != nil {
		imapClient.Logout()
		return nil, errors.Wrapf(err, "login as %s", account.Username)
	}
	imapClient.Timeout = 0

	return imapClient, nil
}

func (c *imapSMTPClient) parseMessage(msg *imap.Message, section *imap.BodySectionName) *interfaces.RawMessage {
	if msg == nil || msg.Envelope == nil {
		return nil
	}

	raw := &interfaces.RawMessage{
		MessageID:  utils.NormalizeMessageID(msg.Envelope.MessageId),
		InReplyTo:  utils.NormalizeMessageID(msg.Envelope.InReplyTo),
		Subject:    msg.Envelope.Subject,
		ReceivedAt: msg.InternalDate.UTC(),
		Headers:    map[string]string{},
	}
	if len(msg.Envelope.From) > 0 {
		raw.From = msg.Envelope.From[0].Address()
	}
	for _, addr := range msg.Envelope.To {
		raw.To = append(raw.To, addr.Address())
	}
	for _, addr := range msg.Envelope.Cc {
		raw.Cc = append(raw.Cc, addr.Address())
	}

	body := msg.GetBody(section)
	if body == nil {
		return raw
	}
	data, err := io.ReadAll(body)
	if err != nil {
		c.log.Warnf("failed reading message body for %s: %v", raw.MessageID, err)
		return raw
	}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		c.log.Warnf("enmime parse failed for %s: %v", raw.MessageID, err)
		return raw
	}

	raw.BodyText = envelope.Text
	raw.BodyHTML = envelope.HTML
	if raw.BodyText == "" && raw.BodyHTML != "" {
		raw.BodyText = utils.HTMLToText(raw.BodyHTML)
	}
	if refs := envelope.GetHeader("References"); refs != "" {
		raw.References = splitReferences(refs)
	}
	if threadID := envelope.GetHeader("Thread-Index"); threadID != "" {
		raw.ThreadID = threadID
	}
	for _, key := range envelope.GetHeaderKeys() {
		raw.Headers[key] = envelope.GetHeader(key)
	}

	// thread fallback: root of the References chain, else own message id
	if raw.ThreadID == "" {
		if len(raw.References) > 0 {
			raw.ThreadID = raw.References[0]
		} else {
			raw.ThreadID = raw.MessageID
		}
	}

	return raw
}

func (c *imapSMTPClient) Send(ctx context.Context, account *models.MailAccount, msg *interfaces.OutboundMessage) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imapSMTPClient.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("account.id", account.ID)

	password, err := c.cipher.Decrypt(account.PasswordEnc)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "decrypt password")
	}

	messageID := newOutboundMessageID(account)
	payload := buildMIMEMessage(account, msg, messageID)

	addr := fmt.Sprintf("%s:%d", account.SMTPHost, account.SMTPPort)
	auth := smtp.PlainAuth("", account.Username, password, account.SMTPHost)

	if err := c.sendWithExplicitTLS(ctx, addr, account.SMTPHost, auth, account.EmailAddress, msg.To, payload); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return utils.NormalizeMessageID(messageID), nil
}

func (c *imapSMTPClient) sendWithExplicitTLS(ctx context.Context, addr, host string, auth smtp.Auth, from string, recipients []string, payload []byte) error {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return errors.Wrapf(err, "connect to %s", addr)
	}
	defer conn.Close()

	smtpClient, err := smtp.NewClient(conn, host)
	if err != nil {
		return errors.Wrap(err, "create smtp client")
	}
	defer smtpClient.Close()

	if err := smtpClient.Auth(auth); err != nil {
		return errors.Wrap(err, "smtp auth")
	}
	if err := smtpClient.Mail(from); err != nil {
		return errors.Wrap(err, "smtp MAIL")
	}
	for _, recipient := range recipients {
		if err := smtpClient.Rcpt(recipient); err != nil {
			return errors.Wrapf(err, "smtp RCPT %s", recipient)
		}
	}

	writer, err := smtpClient.Data()
	if err != nil {
		return errors.Wrap(err, "smtp DATA")
	}
	if _, err := writer.Write(payload); err != nil {
		return errors.Wrap(err, "write message")
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "close data writer")
	}

	return smtpClient.Quit()
}

func splitReferences(header string) []string {
	var refs []string
	for _, field := range bytes.Fields([]byte(header)) {
		refs = append(refs, utils.NormalizeMessageID(string(field)))
	}
	return refs
}
