package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/leasing-assistant/internal/application"
	"github.com/example/leasing-assistant/internal/persistence"
)

// stateTTL bounds how long a consent round trip may take.
const stateTTL = 10 * time.Minute

type oauthConnector interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (persistence.CalendarAccount, error)
}

var (
	errUnknownState = errors.New("oauth state is missing or expired")
	errMissingCode  = errors.New("authorization code is missing")
)

// OAuthHandler runs the Outlook consent flow.
type OAuthHandler struct {
	connector   oauthConnector
	responder   responder
	logger      *slog.Logger
	now         func() time.Time
	onConnected func()

	mu     sync.Mutex
	states map[string]time.Time
}

// NewOAuthHandler builds the handler. onConnected runs after a successful
// exchange and may be nil.
func NewOAuthHandler(connector oauthConnector, now func() time.Time, onConnected func(), logger *slog.Logger) *OAuthHandler {
	base := defaultLogger(logger)
	if now == nil {
		now = time.Now
	}
	if onConnected == nil {
		onConnected = func() {}
	}
	return &OAuthHandler{
		connector:   connector,
		responder:   newResponder(base),
		logger:      base,
		now:         now,
		onConnected: onConnected,
		states:      make(map[string]time.Time),
	}
}

// Connect redirects to the provider consent page.
func (h *OAuthHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.connector == nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	state := h.issueState()
	handlerLogger(r.Context(), h.logger, "OAuthHandler", "Connect").InfoContext(r.Context(), "redirecting to consent")
	http.Redirect(w, r, h.connector.AuthCodeURL(state), http.StatusFound)
}

// Callback exchanges the authorization code and stores the account.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.connector == nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	logger := handlerLogger(r.Context(), h.logger, "OAuthHandler", "Callback")
	query := r.URL.Query()
	if !h.consumeState(query.Get("state")) {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errUnknownState)
		return
	}
	if providerErr := query.Get("error"); providerErr != "" {
		logger.WarnContext(r.Context(), "consent declined", "error", providerErr, "description", query.Get("error_description"))
		h.responder.writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{ErrorCode: "consent_declined", Message: providerErr})
		return
	}
	code := query.Get("code")
	if code == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingCode)
		return
	}

	account, err := h.connector.Exchange(r.Context(), code)
	if err != nil {
		logger.ErrorContext(r.Context(), "code exchange failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "calendar connected", "account_email", account.AccountEmail)
	h.onConnected()
	h.responder.writeJSON(r.Context(), w, http.StatusOK, connectedResponse{Connected: true, AccountEmail: account.AccountEmail})
}

func (h *OAuthHandler) issueState() string {
	state := uuid.NewString()
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()
	for key, expiry := range h.states {
		if now.After(expiry) {
			delete(h.states, key)
		}
	}
	h.states[state] = now.Add(stateTTL)
	return state
}

// consumeState reports whether state was issued and unexpired, and forgets it.
func (h *OAuthHandler) consumeState(state string) bool {
	if state == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	expiry, ok := h.states[state]
	delete(h.states, state)
	return ok && !h.now().After(expiry)
}

type connectedResponse struct {
	Connected    bool   `json:"connected"`
	AccountEmail string `json:"account_email,omitempty"`
}
