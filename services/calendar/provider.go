package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/crypto"
	"github.com/replypilot/replypilot/internal/enum"
	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const (
	googleEventsURL = "https://www.googleapis.com/calendar/v3/calendars/primary/events"
	graphEventsURL  = "https://graph.microsoft.com/v1.0/me/events"
	requestTimeout  = 30 * time.Second
	tokenSlack      = time.Minute
)

type ProviderConfig struct {
	GoogleClientID        string `env:"GOOGLE_OAUTH_CLIENT_ID"`
	GoogleClientSecret    string `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	MicrosoftClientID     string `env:"MICROSOFT_OAUTH_CLIENT_ID"`
	MicrosoftClientSecret string `env:"MICROSOFT_OAUTH_CLIENT_SECRET"`
	MicrosoftTenant       string `env:"MICROSOFT_OAUTH_TENANT" envDefault:"common"`
}

// restProviderClient creates events on Google Calendar or Microsoft 365,
// refreshing provider tokens in place.
type restProviderClient struct {
	log          logger.Logger
	cipher       *crypto.Cipher
	calendarRepo interfaces.CalendarRepository
	httpClient   *http.Client
	google       *oauth2.Config
	microsoft    *oauth2.Config

	googleURL string
	graphURL  string
}

func NewRESTProviderClient(log logger.Logger, cfg *ProviderConfig, cipher *crypto.Cipher, calendarRepo interfaces.CalendarRepository) *restProviderClient {
	return &restProviderClient{
		log:          log,
		cipher:       cipher,
		calendarRepo: calendarRepo,
		httpClient:   &http.Client{Timeout: requestTimeout},
		google: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
		},
		microsoft: &oauth2.Config{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			Endpoint:     microsoft.AzureADEndpoint(cfg.MicrosoftTenant),
		},
		googleURL: googleEventsURL,
		graphURL:  graphEventsURL,
	}
}

func (c *restProviderClient) CreateEvent(ctx context.Context, provider *models.CalendarProvider, event *models.CalendarEvent) (string, string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "restProviderClient.CreateEvent")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("provider.type", provider.Type.String())

	token, err := c.accessToken(ctx, provider)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", "", err
	}

	switch provider.Type {
	case enum.CalendarGoogle:
		return c.createGoogleEvent(ctx, token, event)
	case enum.CalendarMicrosoft:
		return c.createGraphEvent(ctx, token, event)
	default:
		return "", "", fmt.Errorf("unknown calendar provider type %q", provider.Type)
	}
}

func (c *restProviderClient) createGoogleEvent(ctx context.Context, token string, event *models.CalendarEvent) (string, string, error) {
	attendees := make([]map[string]string, 0, len(event.Attendees))
	for _, addr := range event.Attendees {
		attendees = append(attendees, map[string]string{"email": addr})
	}

	payload, err := json.Marshal(map[string]interface{}{
		"summary":  event.Title,
		"location": event.Location,
		"start":    map[string]string{"dateTime": event.StartAt.Format(time.RFC3339), "timeZone": "UTC"},
		"end":      map[string]string{"dateTime": event.EndAt.Format(time.RFC3339), "timeZone": "UTC"},
		"attendees": attendees,
	})
	if err != nil {
		return "", "", err
	}

	var created struct {
		ID       string `json:"id"`
		HangoutLink string `json:"hangoutLink"`
	}
	if err := c.postJSON(ctx, "google-calendar", c.googleURL, token, payload, &created); err != nil {
		return "", "", err
	}
	return created.ID, created.HangoutLink, nil
}

func (c *restProviderClient) createGraphEvent(ctx context.Context, token string, event *models.CalendarEvent) (string, string, error) {
	attendees := make([]map[string]interface{}, 0, len(event.Attendees))
	for _, addr := range event.Attendees {
		attendees = append(attendees, map[string]interface{}{
			"emailAddress": map[string]string{"address": addr},
			"type":         "required",
		})
	}

	payload, err := json.Marshal(map[string]interface{}{
		"subject": event.Title,
		"location": map[string]string{"displayName": event.Location},
		"start":   map[string]string{"dateTime": event.StartAt.Format("2006-01-02T15:04:05"), "timeZone": "UTC"},
		"end":     map[string]string{"dateTime": event.EndAt.Format("2006-01-02T15:04:05"), "timeZone": "UTC"},
		"attendees": attendees,
	})
	if err != nil {
		return "", "", err
	}

	var created struct {
		ID            string `json:"id"`
		OnlineMeeting struct {
			JoinURL string `json:"joinUrl"`
		} `json:"onlineMeeting"`
	}
	if err := c.postJSON(ctx, "microsoft-calendar", c.graphURL, token, payload, &created); err != nil {
		return "", "", err
	}
	return created.ID, created.OnlineMeeting.JoinURL, nil
}

func (c *restProviderClient) postJSON(ctx context.Context, subsystem, url, token string, payload []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return er.NewExternalServiceError(subsystem, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.Wrapf(er.ErrAuthExpired, "%s returned %d", subsystem, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return er.NewExternalServiceError(subsystem, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *restProviderClient) accessToken(ctx context.Context, provider *models.CalendarProvider) (string, error) {
	current, err := c.cipher.Decrypt(provider.AccessToken)
	if err != nil {
		return "", errors.Wrap(err, "decrypt access token")
	}
	if provider.TokenExpiresAt != nil && provider.TokenExpiresAt.After(utils.Now().Add(tokenSlack)) {
		return current, nil
	}

	refreshToken, err := c.cipher.Decrypt(provider.RefreshToken)
	if err != nil {
		return "", errors.Wrap(err, "decrypt refresh token")
	}
	if refreshToken == "" {
		return "", errors.Wrap(er.ErrAuthExpired, "no refresh token stored")
	}

	cfg := c.google
	if provider.Type == enum.CalendarMicrosoft {
		cfg = c.microsoft
	}

	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return "", errors.Wrap(er.ErrAuthExpired, retrieveErr.ErrorCode)
		}
		return "", er.NewExternalServiceError("oauth", err)
	}

	encrypted, err := c.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return "", err
	}
	provider.AccessToken = encrypted
	provider.TokenExpiresAt = utils.TimePtr(token.Expiry)
	if err := c.calendarRepo.UpdateProvider(ctx, provider); err != nil {
		return "", errors.Wrap(err, "persist refreshed token")
	}

	return token.AccessToken, nil
}
