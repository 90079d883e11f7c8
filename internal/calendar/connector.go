// Package calendar connects the scheduling core to a Microsoft 365 calendar
// through Microsoft Graph. The Connector owns the OAuth credentials and
// refreshes them on demand with at most one refresh in flight.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
	"golang.org/x/sync/singleflight"

	"github.com/example/leasing-assistant/internal/persistence"
	"github.com/example/leasing-assistant/internal/secrets"
)

const (
	// Provider is the CalendarAccount provider key.
	Provider = "outlook"
	// DefaultUserKey identifies the single leasing agent.
	DefaultUserKey = "default"
	// DefaultGraphBaseURL is the Graph v1.0 root.
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	// RefreshMargin is how close to expiry a token is refreshed.
	RefreshMargin = 5 * time.Minute
)

// DefaultScopes are requested on connect.
var DefaultScopes = []string{"offline_access", "User.Read", "Calendars.ReadWrite"}

// TokenState is the lifecycle of the cached access token.
type TokenState int32

const (
	StateFresh TokenState = iota
	StateRefreshing
	StateInvalid
)

func (s TokenState) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateRefreshing:
		return "refreshing"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Timeouts bound each outbound call.
type Timeouts struct {
	List    time.Duration
	Write   time.Duration
	Refresh time.Duration
}

// DefaultTimeouts returns 10s for listing, 15s for writes and 5s for refresh.
func DefaultTimeouts() Timeouts {
	return Timeouts{List: 10 * time.Second, Write: 15 * time.Second, Refresh: 5 * time.Second}
}

// Config describes the OAuth application and Graph endpoint.
type Config struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	RedirectURL  string
	GraphBaseURL string
	// AuthURL and TokenURL override the Azure AD endpoints derived from Tenant.
	AuthURL  string
	TokenURL string
	Scopes   []string
	// Location is the display zone sent in Prefer headers and event bodies.
	Location *time.Location
	Timeouts Timeouts
	UserKey  string
}

// AccountStore persists calendar credentials.
type AccountStore interface {
	GetCalendarAccount(ctx context.Context, userKey, provider string) (persistence.CalendarAccount, error)
	SaveCalendarAccount(ctx context.Context, account persistence.CalendarAccount) error
}

// Option customises a Connector.
type Option func(*Connector)

// WithHTTPClient sets the client used for Graph and the token endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock injects the time source used for expiry arithmetic.
func WithClock(now func() time.Time) Option {
	return func(c *Connector) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPause replaces the sleep used between rate-limited attempts.
func WithPause(pause func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Connector) {
		if pause != nil {
			c.pause = pause
		}
	}
}

// WithLogger sets the connector logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBox seals tokens before they reach the store.
func WithBox(box *secrets.Box) Option {
	return func(c *Connector) {
		if box != nil {
			c.box = box
		}
	}
}

type cachedToken struct {
	access string
	expiry time.Time
}

// Connector holds calendar credentials and talks to Graph.
type Connector struct {
	cfg        Config
	oauth      *oauth2.Config
	store      AccountStore
	box        *secrets.Box
	httpClient *http.Client
	now        func() time.Time
	pause      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger

	flight    singleflight.Group
	mu        sync.Mutex
	cached    *cachedToken
	state     atomic.Int32
	refreshes atomic.Int64
}

// NewConnector builds a Connector for the configured OAuth application.
func NewConnector(cfg Config, store AccountStore, opts ...Option) (*Connector, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("calendar: client id is required")
	}
	if store == nil {
		return nil, errors.New("calendar: account store is required")
	}
	if cfg.Tenant == "" {
		cfg.Tenant = "common"
	}
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = DefaultGraphBaseURL
	}
	cfg.GraphBaseURL = strings.TrimRight(cfg.GraphBaseURL, "/")
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	defaults := DefaultTimeouts()
	if cfg.Timeouts.List <= 0 {
		cfg.Timeouts.List = defaults.List
	}
	if cfg.Timeouts.Write <= 0 {
		cfg.Timeouts.Write = defaults.Write
	}
	if cfg.Timeouts.Refresh <= 0 {
		cfg.Timeouts.Refresh = defaults.Refresh
	}
	if cfg.UserKey == "" {
		cfg.UserKey = DefaultUserKey
	}

	endpoint := microsoft.AzureADEndpoint(cfg.Tenant)
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	c := &Connector{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		store:      store,
		box:        &secrets.Box{},
		httpClient: &http.Client{},
		now:        time.Now,
		pause:      sleep,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "calendar_connector")
	return c, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State reports the token state.
func (c *Connector) State() TokenState {
	return TokenState(c.state.Load())
}

// Refreshes counts token endpoint refresh round-trips.
func (c *Connector) Refreshes() int64 {
	return c.refreshes.Load()
}

// Location is the display zone used for Graph requests.
func (c *Connector) Location() *time.Location {
	return c.cfg.Location
}

// AccessToken returns a token whose expiry is beyond now plus RefreshMargin,
// refreshing it when needed. Concurrent callers share one refresh.
func (c *Connector) AccessToken(ctx context.Context) (string, error) {
	if c.State() == StateInvalid {
		return "", ErrAuthExpired
	}
	if token, ok := c.cachedFresh(); ok {
		return token, nil
	}

	result := c.flight.DoChan("token", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", &UpstreamError{Message: ctx.Err().Error()}
	case res := <-result:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Connector) cachedFresh() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil && c.cached.expiry.After(c.now().Add(RefreshMargin)) {
		return c.cached.access, true
	}
	return "", false
}

// refresh runs inside the single flight. It re-checks the cache and the store
// before calling the token endpoint.
func (c *Connector) refresh(ctx context.Context) (string, error) {
	if c.State() == StateInvalid {
		return "", ErrAuthExpired
	}
	if token, ok := c.cachedFresh(); ok {
		return token, nil
	}

	account, err := c.loadAccount(ctx)
	if err != nil {
		return "", err
	}
	if account.TokenExpiry.After(c.now().Add(RefreshMargin)) && account.AccessToken != "" {
		c.setCached(account.AccessToken, account.TokenExpiry)
		return account.AccessToken, nil
	}
	if account.RefreshToken == "" {
		c.state.Store(int32(StateInvalid))
		return "", fmt.Errorf("%w: no refresh token stored", ErrAuthExpired)
	}

	c.state.Store(int32(StateRefreshing))
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Refresh)
	defer cancel()

	requestedAt := c.now()
	source := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{
		RefreshToken: account.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	token, err := source.Token()
	c.refreshes.Add(1)
	if err != nil {
		return "", c.refreshFailed(ctx, err)
	}

	account.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		account.RefreshToken = token.RefreshToken
	}
	account.TokenExpiry = expiryOf(token, requestedAt)
	account.UpdatedAt = c.now().UTC()
	if err := c.storeAccount(ctx, account); err != nil {
		c.state.Store(int32(StateFresh))
		return "", err
	}

	c.setCached(account.AccessToken, account.TokenExpiry)
	c.state.Store(int32(StateFresh))
	c.logger.InfoContext(ctx, "access token refreshed", "expires_at", account.TokenExpiry)
	return account.AccessToken, nil
}

// refreshFailed classifies a token endpoint failure. Rejections of the refresh
// token are terminal; transport failures and 5xx are retried by later callers.
func (c *Connector) refreshFailed(ctx context.Context, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			c.state.Store(int32(StateInvalid))
			c.mu.Lock()
			c.cached = nil
			c.mu.Unlock()
			c.logger.ErrorContext(ctx, "refresh token rejected", "status", status, "error_code", retrieveErr.ErrorCode)
			return fmt.Errorf("%w: %s", ErrAuthExpired, describeRetrieveError(retrieveErr))
		}
		c.state.Store(int32(StateFresh))
		if status == http.StatusTooManyRequests {
			return fmt.Errorf("%w: token endpoint", ErrRateLimited)
		}
		return &UpstreamError{Status: status, Message: describeRetrieveError(retrieveErr)}
	}

	c.state.Store(int32(StateFresh))
	c.logger.WarnContext(ctx, "token refresh transport failure", "error", err)
	return &UpstreamError{Message: err.Error()}
}

func describeRetrieveError(err *oauth2.RetrieveError) string {
	if err.ErrorDescription != "" {
		return err.ErrorDescription
	}
	if err.ErrorCode != "" {
		return err.ErrorCode
	}
	return strings.TrimSpace(string(err.Body))
}

// expiryOf computes the expiry from expires_in against the injected clock,
// falling back to the library's own computation.
func expiryOf(token *oauth2.Token, requestedAt time.Time) time.Time {
	var seconds int64
	switch v := token.Extra("expires_in").(type) {
	case float64:
		seconds = int64(v)
	case int64:
		seconds = v
	case int:
		seconds = int64(v)
	case json.Number:
		seconds, _ = v.Int64()
	case string:
		seconds, _ = strconv.ParseInt(v, 10, 64)
	}
	if seconds > 0 {
		return requestedAt.Add(time.Duration(seconds) * time.Second).UTC()
	}
	if token.ExpiresIn > 0 {
		return requestedAt.Add(time.Duration(token.ExpiresIn) * time.Second).UTC()
	}
	if !token.Expiry.IsZero() {
		return token.Expiry.UTC()
	}
	return requestedAt.Add(time.Hour).UTC()
}

func (c *Connector) setCached(access string, expiry time.Time) {
	c.mu.Lock()
	c.cached = &cachedToken{access: access, expiry: expiry}
	c.mu.Unlock()
}

func (c *Connector) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Connector) loadAccount(ctx context.Context) (persistence.CalendarAccount, error) {
	account, err := c.store.GetCalendarAccount(ctx, c.cfg.UserKey, Provider)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.CalendarAccount{}, ErrNotConnected
	}
	if err != nil {
		return persistence.CalendarAccount{}, fmt.Errorf("calendar: load account: %w", err)
	}
	if account.AccessToken, err = c.box.Open(account.AccessToken); err != nil {
		return persistence.CalendarAccount{}, fmt.Errorf("calendar: open access token: %w", err)
	}
	if account.RefreshToken, err = c.box.Open(account.RefreshToken); err != nil {
		return persistence.CalendarAccount{}, fmt.Errorf("calendar: open refresh token: %w", err)
	}
	return account, nil
}

func (c *Connector) storeAccount(ctx context.Context, account persistence.CalendarAccount) error {
	sealed := account
	var err error
	if sealed.AccessToken, err = c.box.Seal(account.AccessToken); err != nil {
		return fmt.Errorf("calendar: seal access token: %w", err)
	}
	if sealed.RefreshToken, err = c.box.Seal(account.RefreshToken); err != nil {
		return fmt.Errorf("calendar: seal refresh token: %w", err)
	}
	if err := c.store.SaveCalendarAccount(ctx, sealed); err != nil {
		return fmt.Errorf("calendar: save account: %w", err)
	}
	return nil
}

// SaveAccount seeds the connector with new credentials and clears an
// INVALID state.
func (c *Connector) SaveAccount(ctx context.Context, account persistence.CalendarAccount) error {
	account.UserKey = c.cfg.UserKey
	account.Provider = Provider
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = c.now().UTC()
	}
	if err := c.storeAccount(ctx, account); err != nil {
		return err
	}

	c.mu.Lock()
	c.cached = nil
	if account.AccessToken != "" {
		c.cached = &cachedToken{access: account.AccessToken, expiry: account.TokenExpiry}
	}
	c.mu.Unlock()
	c.state.Store(int32(StateFresh))
	return nil
}

// AuthCodeURL returns the consent URL for the connect flow.
func (c *Connector) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for tokens, looks up the account
// email and stores the result.
func (c *Connector) Exchange(ctx context.Context, code string) (persistence.CalendarAccount, error) {
	if strings.TrimSpace(code) == "" {
		return persistence.CalendarAccount{}, errors.New("calendar: authorization code is required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Write)
	defer cancel()

	requestedAt := c.now()
	token, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return persistence.CalendarAccount{}, &UpstreamError{Status: retrieveErr.Response.StatusCode, Message: describeRetrieveError(retrieveErr)}
		}
		return persistence.CalendarAccount{}, &UpstreamError{Message: err.Error()}
	}

	account := persistence.CalendarAccount{
		UserKey:      c.cfg.UserKey,
		Provider:     Provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  expiryOf(token, requestedAt),
	}

	var profile graphProfile
	if err := c.send(ctx, token.AccessToken, http.MethodGet, c.cfg.GraphBaseURL+"/me?$select=mail,userPrincipalName", nil, &profile); err != nil {
		c.logger.WarnContext(ctx, "profile lookup failed", "error", err)
	} else {
		account.AccountEmail = profile.Mail
		if account.AccountEmail == "" {
			account.AccountEmail = profile.UserPrincipalName
		}
	}

	if err := c.SaveAccount(ctx, account); err != nil {
		return persistence.CalendarAccount{}, err
	}
	c.logger.InfoContext(ctx, "calendar connected", "account_email", account.AccountEmail)
	return account, nil
}
