package handlers

import (
	"net/http"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/replypilot/replypilot/internal/enum"
	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const oauthStateTTL = 15 * time.Minute

var gmailScopes = []string{"https://mail.google.com/"}
var graphScopes = []string{"offline_access", "https://outlook.office365.com/IMAP.AccessAsUser.All", "https://outlook.office365.com/SMTP.Send"}

type createAccountRequest struct {
	Type         string `json:"type" binding:"required"`
	EmailAddress string `json:"emailAddress" binding:"required"`
	DisplayName  string `json:"displayName"`

	IMAPHost string `json:"imapHost"`
	IMAPPort int    `json:"imapPort"`
	SMTPHost string `json:"smtpHost"`
	SMTPPort int    `json:"smtpPort"`
	Username string `json:"username"`
	Password string `json:"password"`

	Persona          string `json:"persona"`
	Signature        string `json:"signature"`
	AutoReplyEnabled bool   `json:"autoReplyEnabled"`
	FollowUpEnabled  bool   `json:"followUpEnabled"`
	FollowUpDays     int    `json:"followUpDays"`
	FollowUpCount    int    `json:"followUpCount"`
}

type updateAccountRequest struct {
	DisplayName      *string `json:"displayName"`
	Persona          *string `json:"persona"`
	Signature        *string `json:"signature"`
	AutoReplyEnabled *bool   `json:"autoReplyEnabled"`
	FollowUpEnabled  *bool   `json:"followUpEnabled"`
	FollowUpDays     *int    `json:"followUpDays"`
	FollowUpCount    *int    `json:"followUpCount"`
	IsActive         *bool   `json:"isActive"`
	Password         *string `json:"password"`
}

// ListAccounts returns every mail account of the tenant.
func (h *Handlers) ListAccounts(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.ListAccounts")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	accounts, err := h.repos.MailAccountRepository.ListByTenant(ctx, utils.GetTenantFromContext(ctx))
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// CreateAccount registers an IMAP/SMTP mailbox. OAuth mailboxes go through
// the consent flow instead.
func (h *Handlers) CreateAccount(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.CreateAccount")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, er.NewValidationError("", "type and emailAddress are required"))
		return
	}
	if enum.AccountType(req.Type) != enum.AccountIMAPSMTP {
		respondError(c, er.NewValidationError("type", "only imap_smtp accounts are created directly; use the oauth flow for gmail and graph"))
		return
	}
	if validation := mailvalidate.ValidateEmailSyntax(req.EmailAddress); !validation.IsValid {
		respondError(c, er.NewValidationError("emailAddress", "not a valid email address"))
		return
	}
	if req.IMAPHost == "" || req.SMTPHost == "" || req.Password == "" {
		respondError(c, er.NewValidationError("", "imapHost, smtpHost and password are required for imap_smtp accounts"))
		return
	}

	passwordEnc, err := h.cipher.Encrypt(req.Password)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}

	account := &models.MailAccount{
		TenantID:         utils.GetTenantFromContext(ctx),
		Type:             enum.AccountIMAPSMTP,
		EmailAddress:     utils.NormalizeEmailAddress(req.EmailAddress),
		DisplayName:      req.DisplayName,
		IMAPHost:         req.IMAPHost,
		IMAPPort:         req.IMAPPort,
		SMTPHost:         req.SMTPHost,
		SMTPPort:         req.SMTPPort,
		Username:         req.Username,
		PasswordEnc:      passwordEnc,
		Persona:          req.Persona,
		Signature:        req.Signature,
		AutoReplyEnabled: req.AutoReplyEnabled,
		FollowUpEnabled:  req.FollowUpEnabled,
		FollowUpDays:     req.FollowUpDays,
		FollowUpCount:    req.FollowUpCount,
		IsActive:         true,
		SyncStatus:       enum.SyncStatusPending,
	}
	if account.Username == "" {
		account.Username = account.EmailAddress
	}

	if err := h.repos.MailAccountRepository.Create(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

// GetAccount returns one account, tenant-scoped.
func (h *Handlers) GetAccount(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.GetAccount")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	account, err := h.ownedAccount(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// UpdateAccount patches reply behaviour and connection settings.
func (h *Handlers) UpdateAccount(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.UpdateAccount")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	account, err := h.ownedAccount(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, er.NewValidationError("", "invalid request body"))
		return
	}

	if req.DisplayName != nil {
		account.DisplayName = *req.DisplayName
	}
	if req.Persona != nil {
		account.Persona = *req.Persona
	}
	if req.Signature != nil {
		account.Signature = *req.Signature
	}
	if req.AutoReplyEnabled != nil {
		account.AutoReplyEnabled = *req.AutoReplyEnabled
	}
	if req.FollowUpEnabled != nil {
		account.FollowUpEnabled = *req.FollowUpEnabled
	}
	if req.FollowUpDays != nil {
		account.FollowUpDays = *req.FollowUpDays
	}
	if req.FollowUpCount != nil {
		account.FollowUpCount = *req.FollowUpCount
	}
	if req.IsActive != nil {
		account.IsActive = *req.IsActive
	}
	if req.Password != nil {
		if account.Type != enum.AccountIMAPSMTP {
			respondError(c, er.NewValidationError("password", "only imap_smtp accounts carry a password"))
			return
		}
		passwordEnc, err := h.cipher.Encrypt(*req.Password)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		account.PasswordEnc = passwordEnc
	}

	if err := h.repos.MailAccountRepository.Update(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// DeleteAccount soft-deletes the account; stored emails stay queryable.
func (h *Handlers) DeleteAccount(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.DeleteAccount")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	account, err := h.ownedAccount(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.repos.MailAccountRepository.Delete(ctx, account.ID); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type oauthInitiateRequest struct {
	Provider     string `json:"provider" binding:"required"`
	EmailAddress string `json:"emailAddress" binding:"required"`
	RedirectURI  string `json:"redirectUri" binding:"required"`
}

// InitiateOAuth stores a handshake nonce and returns the provider consent URL.
func (h *Handlers) InitiateOAuth(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.InitiateOAuth")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	var req oauthInitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, er.NewValidationError("", "provider, emailAddress and redirectUri are required"))
		return
	}
	oauthCfg, _, err := h.oauthConfigFor(req.Provider, req.RedirectURI)
	if err != nil {
		respondError(c, err)
		return
	}

	state := &models.OAuthState{
		TenantID:     utils.GetTenantFromContext(ctx),
		Provider:     req.Provider,
		EmailAddress: utils.NormalizeEmailAddress(req.EmailAddress),
		RedirectURI:  req.RedirectURI,
		ExpiresAt:    utils.Now().Add(oauthStateTTL),
	}
	if err := h.repos.OAuthStateRepository.Create(ctx, state); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}

	authURL := oauthCfg.AuthCodeURL(state.State,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("login_hint", state.EmailAddress))
	c.JSON(http.StatusOK, gin.H{"authUrl": authURL, "state": state.State})
}

// OAuthCallback validates the nonce, exchanges the code and creates the
// mail account with encrypted tokens. Unauthenticated; the nonce carries
// the tenant.
func (h *Handlers) OAuthCallback(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.OAuthCallback")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	stateParam := c.Query("state")
	code := c.Query("code")
	if stateParam == "" || code == "" {
		respondError(c, er.NewValidationError("", "state and code are required"))
		return
	}

	state, err := h.repos.OAuthStateRepository.GetByState(ctx, stateParam)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	if state == nil || state.ExpiresAt.Before(utils.Now()) {
		respondError(c, errors.Wrap(er.ErrAuthenticationFailure, "unknown or expired oauth state"))
		return
	}
	// single use, replays fail even inside the TTL
	if err := h.repos.OAuthStateRepository.Delete(ctx, state.ID); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}

	oauthCfg, accountType, err := h.oauthConfigFor(state.Provider, state.RedirectURI)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, er.NewExternalServiceError("oauth", err))
		return
	}

	accessEnc, err := h.cipher.Encrypt(token.AccessToken)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	refreshEnc, err := h.cipher.Encrypt(token.RefreshToken)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}

	account := &models.MailAccount{
		TenantID:       state.TenantID,
		Type:           accountType,
		EmailAddress:   state.EmailAddress,
		AccessToken:    accessEnc,
		RefreshToken:   refreshEnc,
		TokenExpiresAt: utils.TimePtr(token.Expiry),
		IsActive:       true,
		SyncStatus:     enum.SyncStatusPending,
	}
	if err := h.repos.MailAccountRepository.Create(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *Handlers) oauthConfigFor(provider, redirectURI string) (*oauth2.Config, enum.AccountType, error) {
	switch provider {
	case "gmail":
		return &oauth2.Config{
			ClientID:     h.cfg.Mailer.GoogleClientID,
			ClientSecret: h.cfg.Mailer.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURI,
			Scopes:       gmailScopes,
		}, enum.AccountOAuthGmail, nil
	case "graph":
		return &oauth2.Config{
			ClientID:     h.cfg.Mailer.MicrosoftClientID,
			ClientSecret: h.cfg.Mailer.MicrosoftClientSecret,
			Endpoint:     microsoft.AzureADEndpoint(h.cfg.Mailer.MicrosoftTenant),
			RedirectURL:  redirectURI,
			Scopes:       graphScopes,
		}, enum.AccountOAuthGraph, nil
	default:
		return nil, "", er.NewValidationError("provider", "must be gmail or graph")
	}
}

// ownedAccount loads the :id account and checks tenant ownership.
func (h *Handlers) ownedAccount(c *gin.Context) (*models.MailAccount, error) {
	ctx := c.Request.Context()
	account, err := h.repos.MailAccountRepository.GetByID(ctx, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if account == nil || account.TenantID != utils.GetTenantFromContext(ctx) {
		return nil, er.ErrNotFound
	}
	return account, nil
}
