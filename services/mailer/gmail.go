package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/replypilot/replypilot/interfaces"
	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const gmailBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// gmailClient speaks the Gmail REST API with tokens minted by tokenManager.
type gmailClient struct {
	log        logger.Logger
	tokens     *tokenManager
	httpClient *http.Client
	baseURL    string
}

func newGmailClient(log logger.Logger, tokens *tokenManager) interfaces.MailClient {
	return &gmailClient{
		log:        log,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: dialTimeout},
		baseURL:    gmailBaseURL,
	}
}

type gmailMessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type gmailListResponse struct {
	Messages      []gmailMessageRef `json:"messages"`
	NextPageToken string            `json:"nextPageToken"`
}

type gmailMessage struct {
	ID           string           `json:"id"`
	ThreadID     string           `json:"threadId"`
	InternalDate string           `json:"internalDate"`
	Payload      gmailMessagePart `json:"payload"`
}

type gmailMessagePart struct {
	MimeType string             `json:"mimeType"`
	Headers  []gmailHeader      `json:"headers"`
	Body     gmailBody          `json:"body"`
	Parts    []gmailMessagePart `json:"parts"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailBody struct {
	Data string `json:"data"`
}

func (c *gmailClient) FetchNew(ctx context.Context, account *models.MailAccount, since time.Time) ([]*interfaces.RawMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailClient.FetchNew")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("account.id", account.ID)

	token, err := c.tokens.accessToken(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	query := fmt.Sprintf("in:inbox after:%d", since.Unix())
	listURL := fmt.Sprintf("%s/messages?q=%s&maxResults=100", c.baseURL, strings.ReplaceAll(query, " ", "+"))

	var list gmailListResponse
	if err := c.getJSON(ctx, token, listURL, &list); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var messages []*interfaces.RawMessage
	for _, ref := range list.Messages {
		var full gmailMessage
		if err := c.getJSON(ctx, token, fmt.Sprintf("%s/messages/%s?format=full", c.baseURL, ref.ID), &full); err != nil {
			c.log.Warnf("gmail message %s fetch failed: %v", ref.ID, err)
			continue
		}
		raw := parseGmailMessage(&full)
		if raw != nil && raw.ReceivedAt.After(since) {
			messages = append(messages, raw)
		}
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})
	span.SetTag("messages.count", len(messages))
	return messages, nil
}

func (c *gmailClient) Send(ctx context.Context, account *models.MailAccount, msg *interfaces.OutboundMessage) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailClient.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("account.id", account.ID)

	token, err := c.tokens.accessToken(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	messageID := newOutboundMessageID(account)
	payload := buildMIMEMessage(account, msg, messageID)

	body := map[string]string{
		"raw": base64.URLEncoding.EncodeToString(payload),
	}
	if msg.ThreadID != "" {
		body["threadId"] = msg.ThreadID
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages/send", bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", er.NewExternalServiceError("gmail", err)
	}
	defer resp.Body.Close()

	if err := checkProviderStatus("gmail", resp); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return utils.NormalizeMessageID(messageID), nil
}

func (c *gmailClient) getJSON(ctx context.Context, token, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return er.NewExternalServiceError("gmail", err)
	}
	defer resp.Body.Close()

	if err := checkProviderStatus("gmail", resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseGmailMessage(msg *gmailMessage) *interfaces.RawMessage {
	raw := &interfaces.RawMessage{
		ThreadID: msg.ThreadID,
		Headers:  map[string]string{},
	}

	var epochMillis int64
	fmt.Sscanf(msg.InternalDate, "%d", &epochMillis)
	raw.ReceivedAt = time.UnixMilli(epochMillis).UTC()

	for _, header := range msg.Payload.Headers {
		raw.Headers[header.Name] = header.Value
		switch strings.ToLower(header.Name) {
		case "message-id":
			raw.MessageID = utils.NormalizeMessageID(header.Value)
		case "in-reply-to":
			raw.InReplyTo = utils.NormalizeMessageID(header.Value)
		case "references":
			raw.References = splitReferences(header.Value)
		case "subject":
			raw.Subject = header.Value
		case "from":
			raw.From = utils.NormalizeEmailAddress(header.Value)
		case "to":
			raw.To = splitAddressList(header.Value)
		case "cc":
			raw.Cc = splitAddressList(header.Value)
		}
	}
	if raw.MessageID == "" {
		raw.MessageID = msg.ID
	}

	raw.BodyText, raw.BodyHTML = extractGmailBodies(&msg.Payload)
	if raw.BodyText == "" && raw.BodyHTML != "" {
		raw.BodyText = utils.HTMLToText(raw.BodyHTML)
	}
	return raw
}

func extractGmailBodies(part *gmailMessagePart) (text, html string) {
	decode := func(data string) string {
		decoded, err := base64.URLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
		return string(decoded)
	}

	switch part.MimeType {
	case "text/plain":
		return decode(part.Body.Data), ""
	case "text/html":
		return "", decode(part.Body.Data)
	}

	for _, child := range part.Parts {
		childText, childHTML := extractGmailBodies(&child)
		if text == "" {
			text = childText
		}
		if html == "" {
			html = childHTML
		}
	}
	return text, html
}

func splitAddressList(header string) []string {
	var out []string
	for _, field := range strings.Split(header, ",") {
		if addr := utils.NormalizeEmailAddress(field); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func checkProviderStatus(subsystem string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.Wrapf(er.ErrAuthExpired, "%s returned %d", subsystem, resp.StatusCode)
	}
	return er.NewExternalServiceStatusError(subsystem, resp.StatusCode,
		fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
}
