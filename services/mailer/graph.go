package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/replypilot/replypilot/interfaces"
	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0/me"

// graphClient speaks the Microsoft Graph mail API.
type graphClient struct {
	log        logger.Logger
	tokens     *tokenManager
	httpClient *http.Client
	baseURL    string
}

func newGraphClient(log logger.Logger, tokens *tokenManager) interfaces.MailClient {
	return &graphClient{
		log:        log,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: dialTimeout},
		baseURL:    graphBaseURL,
	}
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMessage struct {
	ID                string           `json:"id"`
	InternetMessageID string           `json:"internetMessageId"`
	ConversationID    string           `json:"conversationId"`
	Subject           string           `json:"subject"`
	ReceivedDateTime  time.Time        `json:"receivedDateTime"`
	From              graphRecipient   `json:"from"`
	ToRecipients      []graphRecipient `json:"toRecipients"`
	CcRecipients      []graphRecipient `json:"ccRecipients"`
	Body              struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

type graphListResponse struct {
	Value []graphMessage `json:"value"`
}

func (c *graphClient) FetchNew(ctx context.Context, account *models.MailAccount, since time.Time) ([]*interfaces.RawMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "graphClient.FetchNew")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("account.id", account.ID)

	token, err := c.tokens.accessToken(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	filter := fmt.Sprintf("receivedDateTime gt %s", since.UTC().Format(time.RFC3339))
	listURL := fmt.Sprintf("%s/mailFolders/inbox/messages?$filter=%s&$orderby=receivedDateTime asc&$top=100",
		c.baseURL, url.QueryEscape(filter))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, er.NewExternalServiceError("graph", err)
	}
	defer resp.Body.Close()

	if err := checkProviderStatus("graph", resp); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var list graphListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}

	messages := make([]*interfaces.RawMessage, 0, len(list.Value))
	for i := range list.Value {
		messages = append(messages, parseGraphMessage(&list.Value[i]))
	}
	span.SetTag("messages.count", len(messages))
	return messages, nil
}

func (c *graphClient) Send(ctx context.Context, account *models.MailAccount, msg *interfaces.OutboundMessage) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "graphClient.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("account.id", account.ID)

	token, err := c.tokens.accessToken(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	messageID := utils.NormalizeMessageID(newOutboundMessageID(account))

	contentType := "Text"
	content := msg.BodyText
	if msg.BodyHTML != "" {
		contentType = "HTML"
		content = msg.BodyHTML
	}

	recipients := make([]map[string]interface{}, 0, len(msg.To))
	for _, to := range msg.To {
		recipients = append(recipients, map[string]interface{}{
			"emailAddress": map[string]string{"address": to},
		})
	}

	message := map[string]interface{}{
		"subject":           msg.Subject,
		"internetMessageId": "<" + messageID + ">",
		"body": map[string]string{
			"contentType": contentType,
			"content":     content,
		},
		"toRecipients": recipients,
	}

	payload, err := json.Marshal(map[string]interface{}{
		"message":         message,
		"saveToSentItems": true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendMail", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", er.NewExternalServiceError("graph", err)
	}
	defer resp.Body.Close()

	if err := checkProviderStatus("graph", resp); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return messageID, nil
}

func parseGraphMessage(msg *graphMessage) *interfaces.RawMessage {
	raw := &interfaces.RawMessage{
		MessageID:  utils.NormalizeMessageID(msg.InternetMessageID),
		ThreadID:   msg.ConversationID,
		Subject:    msg.Subject,
		From:       utils.NormalizeEmailAddress(msg.From.EmailAddress.Address),
		ReceivedAt: msg.ReceivedDateTime.UTC(),
		Headers:    map[string]string{},
	}
	if raw.MessageID == "" {
		raw.MessageID = msg.ID
	}
	for _, to := range msg.ToRecipients {
		raw.To = append(raw.To, utils.NormalizeEmailAddress(to.EmailAddress.Address))
	}
	for _, cc := range msg.CcRecipients {
		raw.Cc = append(raw.Cc, utils.NormalizeEmailAddress(cc.EmailAddress.Address))
	}

	if msg.Body.ContentType == "html" || msg.Body.ContentType == "HTML" {
		raw.BodyHTML = msg.Body.Content
		raw.BodyText = utils.HTMLToText(msg.Body.Content)
	} else {
		raw.BodyText = msg.Body.Content
	}
	return raw
}
