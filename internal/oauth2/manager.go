// Package oauth2 manages authentication for OAuth-protected OPDS catalogs.
//
// A Manager tracks one session per catalog source (the URL origin). Sessions
// move through the states in state.go; access tokens live only in memory while
// refresh tokens are persisted encrypted through a CredentialStore.
//
// Concurrent callers that observe an expired token for the same source share a
// single in-flight refresh grant, so a server that rotates refresh tokens on
// first use never sees the same token twice.
package oauth2

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mrlokans/opdscatalog/internal/crypto"
	"github.com/mrlokans/opdscatalog/internal/entities"
	"github.com/mrlokans/opdscatalog/internal/httpclient"
)

const (
	DefaultRefreshMargin = 30 * time.Second
	refreshTimeout       = time.Minute
)

// CredentialStore persists OAuth credentials (ciphertext refresh tokens only).
type CredentialStore interface {
	Save(ctx context.Context, cred *entities.OAuthCredential) error
	Get(ctx context.Context, catalogURL string) (*entities.OAuthCredential, error)
	ClearRefreshToken(ctx context.Context, catalogURL string) error
	Delete(ctx context.Context, catalogURL string) error
}

// FeedFinder links a catalog origin to the stored feeds served from it.
type FeedFinder interface {
	FindByOrigin(ctx context.Context, origin string) ([]entities.OPDSFeed, error)
}

// Cipher encrypts refresh tokens at rest.
type Cipher interface {
	Encrypt(plaintext, keyHex, ivHex string) (string, error)
	Decrypt(ciphertextHex, keyHex, ivHex string) (string, error)
}

// AuditLogger records authentication outcomes.
type AuditLogger interface {
	LogAuth(action, source string, authenticated bool, err error)
}

// Request enumerates every recognized OAuth option for a catalog source.
// Password is used for the duration of the call only.
type Request struct {
	CatalogURL       string `json:"catalog_url"`
	Login            string `json:"login,omitempty"`
	Password         string `json:"password,omitempty"`
	OAuthURL         string `json:"oauth_url"`
	RefreshURL       string `json:"refresh_url,omitempty"`
	EncryptionKeyHex string `json:"encryption_key_hex,omitempty"`
	EncryptionIVHex  string `json:"encryption_iv_hex,omitempty"`

	// RefreshToken is a stored ciphertext (hex), never a plaintext token.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Config holds Manager settings.
type Config struct {
	// RefreshMargin is how long before expiry a token counts as expired
	RefreshMargin time.Duration

	// Default key material used when a Request carries none
	DefaultKeyHex string
	DefaultIVHex  string
}

type session struct {
	state  State
	token  *AccessToken
	keyHex string
	ivHex  string
}

// Manager is the per-source authentication state machine.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	group    singleflight.Group

	grants *GrantClient
	vault  Cipher
	creds  CredentialStore
	feeds  FeedFinder
	audit  AuditLogger

	cfg Config
	now func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithFeedFinder links new credentials to the stored feed they belong to.
func WithFeedFinder(f FeedFinder) Option {
	return func(m *Manager) {
		m.feeds = f
	}
}

// WithAudit records login and refresh outcomes.
func WithAudit(a AuditLogger) Option {
	return func(m *Manager) {
		m.audit = a
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager.
func NewManager(grants *GrantClient, vault Cipher, creds CredentialStore, cfg Config, opts ...Option) *Manager {
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}

	m := &Manager{
		sessions: make(map[string]*session),
		grants:   grants,
		vault:    vault,
		creds:    creds,
		cfg:      cfg,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// OAuth authenticates a catalog source. A supplied (or stored) refresh token
// is tried first; the password grant runs only when that is not possible.
//
// Returns (false, nil) when the server rejects the credentials. Transport
// failures and invalid key material are returned as errors.
func (m *Manager) OAuth(ctx context.Context, req Request) (bool, error) {
	source := httpclient.Origin(req.CatalogURL)
	if source == "" {
		return false, fmt.Errorf("%w: catalog url must be absolute", ErrInvalidRequest)
	}
	if !isAbsoluteURL(req.OAuthURL) {
		return false, fmt.Errorf("%w: oauth url must be absolute", ErrInvalidRequest)
	}
	if req.RefreshURL != "" && !isAbsoluteURL(req.RefreshURL) {
		return false, fmt.Errorf("%w: refresh url must be absolute", ErrInvalidRequest)
	}

	keyHex, ivHex := m.keyMaterial(req.EncryptionKeyHex, req.EncryptionIVHex)
	if err := crypto.ValidateKeyPair(keyHex, ivHex); err != nil {
		return false, err
	}
	m.rememberKeys(source, keyHex, ivHex)

	stored, err := m.creds.Get(ctx, source)
	if err != nil {
		return false, err
	}

	encrypted := req.RefreshToken
	if encrypted == "" && req.Password == "" && stored != nil {
		encrypted = stored.RefreshToken
	}

	if encrypted != "" {
		cred := &entities.OAuthCredential{
			CatalogURL:   source,
			Login:        req.Login,
			OAuthURL:     req.OAuthURL,
			RefreshURL:   req.RefreshURL,
			RefreshToken: encrypted,
		}
		if stored != nil {
			cred.FeedIdentifier = stored.FeedIdentifier
			if encrypted == stored.RefreshToken {
				cred.KeyFingerprint = stored.KeyFingerprint
			}
			if cred.Login == "" {
				cred.Login = stored.Login
			}
			if cred.RefreshURL == "" {
				cred.RefreshURL = stored.RefreshURL
			}
		}

		_, err := m.coalesce(ctx, source, func(ctx context.Context) (*AccessToken, error) {
			return m.refresh(ctx, cred, keyHex, ivHex)
		})
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, ErrAuthRequired):
			// fall through to the password grant
		default:
			return false, err
		}
	}

	if req.Login == "" && req.Password == "" {
		return false, nil
	}

	return m.login(ctx, source, req, stored, keyHex, ivHex)
}

// Token returns a live access token for the origin of rawURL. An expired token
// triggers a coalesced refresh; false means no token is available.
func (m *Manager) Token(ctx context.Context, rawURL string) (string, bool) {
	source := httpclient.Origin(rawURL)

	m.mu.Lock()
	s, ok := m.sessions[source]
	if !ok || s.token == nil {
		m.mu.Unlock()
		return "", false
	}
	if !s.token.expiringSoon(m.now(), m.cfg.RefreshMargin) {
		value := s.token.Value
		m.mu.Unlock()
		return value, true
	}
	stale := s.token.Value
	m.mu.Unlock()

	token, err := m.HandleUnauthorized(ctx, rawURL, stale)
	if err != nil {
		return "", false
	}
	return token, true
}

// HandleUnauthorized is called after the server refused staleToken (or a
// token expired). It returns the replacement token, refreshing at most once
// per source no matter how many callers arrive together. Fails with
// ErrAuthRequired when no silent refresh is possible.
func (m *Manager) HandleUnauthorized(ctx context.Context, rawURL, staleToken string) (string, error) {
	source := httpclient.Origin(rawURL)
	if source == "" {
		return "", ErrAuthRequired
	}

	if current := m.freshToken(source, staleToken); current != nil {
		return current.Value, nil
	}

	m.mu.Lock()
	s := m.sessionLocked(source)
	if s.state == StateAuthenticated {
		s.state = StateExpired
	}
	keyHex, ivHex := s.keyHex, s.ivHex
	m.mu.Unlock()

	if keyHex == "" || ivHex == "" {
		keyHex, ivHex = m.keyMaterial("", "")
	}

	token, err := m.coalesce(ctx, source, func(ctx context.Context) (*AccessToken, error) {
		if current := m.freshToken(source, staleToken); current != nil {
			return current, nil
		}

		cred, err := m.creds.Get(ctx, source)
		if err != nil {
			return nil, err
		}
		if cred == nil || !cred.HasRefreshToken() {
			m.setState(source, StateUnauthenticated, nil)
			return nil, fmt.Errorf("%w: %w", ErrAuthRequired, ErrNoRefreshToken)
		}
		return m.refresh(ctx, cred, keyHex, ivHex)
	})
	if err != nil {
		return "", err
	}
	return token.Value, nil
}

// State reports the authentication state for the origin of rawURL.
func (m *Manager) State(rawURL string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[httpclient.Origin(rawURL)]; ok {
		return s.state
	}
	return StateUnauthenticated
}

// Logout drops the in-memory token and the stored credential of a source.
func (m *Manager) Logout(ctx context.Context, rawURL string) error {
	source := httpclient.Origin(rawURL)
	if source == "" {
		return fmt.Errorf("%w: catalog url must be absolute", ErrInvalidRequest)
	}

	m.mu.Lock()
	delete(m.sessions, source)
	m.mu.Unlock()

	if err := m.creds.Delete(ctx, source); err != nil {
		return err
	}
	m.record("logout", source, false, nil)
	return nil
}

// coalesce runs fn once per source at a time. Every caller waiting on the same
// flight receives the same token or the same error. The flight itself is
// detached from the first caller's cancellation; a caller that gives up only
// stops waiting.
func (m *Manager) coalesce(ctx context.Context, source string, fn func(ctx context.Context) (*AccessToken, error)) (*AccessToken, error) {
	ch := m.group.DoChan(source, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return fn(flightCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*AccessToken), nil
	}
}

// refresh runs the refresh grant for cred. Errors wrapping ErrAuthRequired
// mean the session is now Unauthenticated; anything else is a transport or
// storage failure and leaves the session Expired.
func (m *Manager) refresh(ctx context.Context, cred *entities.OAuthCredential, keyHex, ivHex string) (*AccessToken, error) {
	source := cred.CatalogURL
	m.setState(source, StateRefreshing, nil)

	if cred.KeyFingerprint != "" && cred.KeyFingerprint != crypto.Fingerprint(keyHex, ivHex) {
		// The token stays stored: the original key may come back.
		log.Printf("Refresh token for %s was encrypted with a different key (key changed), re-login required", source)
		m.setState(source, StateUnauthenticated, nil)
		m.record("refresh", source, false, nil)
		return nil, fmt.Errorf("%w: encryption key changed", ErrAuthRequired)
	}

	plaintext, err := m.vault.Decrypt(cred.RefreshToken, keyHex, ivHex)
	if err != nil || plaintext == "" {
		// Wrong key, tampered or truncated ciphertext: the token is unusable.
		log.Printf("Stored refresh token for %s could not be decrypted, re-login required", source)
		m.setState(source, StateUnauthenticated, nil)
		m.record("refresh", source, false, nil)
		return nil, fmt.Errorf("%w: stored refresh token unusable", ErrAuthRequired)
	}

	endpoint := cred.RefreshEndpoint()
	resp, err := m.grants.RefreshGrant(ctx, endpoint, plaintext)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			log.Printf("Refresh token for %s was rejected", source)
			if clearErr := m.creds.ClearRefreshToken(ctx, source); clearErr != nil {
				log.Printf("Failed to clear revoked refresh token for %s: %v", source, clearErr)
			}
			m.setState(source, StateUnauthenticated, nil)
			m.record("refresh", source, false, nil)
			return nil, fmt.Errorf("%w: %w", ErrAuthRequired, err)
		}

		m.setState(source, StateExpired, nil)
		m.record("refresh", source, false, err)
		return nil, err
	}

	newRefresh := resp.RefreshToken
	if newRefresh == "" {
		// Server did not rotate; keep the current one.
		newRefresh = plaintext
	}

	token, err := m.persist(ctx, cred, resp, newRefresh, keyHex, ivHex)
	if err != nil {
		m.setState(source, StateExpired, nil)
		m.record("refresh", source, false, err)
		return nil, err
	}

	m.record("refresh", source, true, nil)
	return token, nil
}

// login runs the password grant.
func (m *Manager) login(ctx context.Context, source string, req Request, stored *entities.OAuthCredential, keyHex, ivHex string) (bool, error) {
	m.setState(source, StateAuthenticating, nil)

	resp, err := m.grants.PasswordGrant(ctx, req.OAuthURL, req.Login, req.Password)
	if err != nil {
		m.setState(source, StateUnauthenticated, nil)
		if errors.Is(err, ErrRejected) {
			log.Printf("Login rejected for %s", source)
			m.record("login", source, false, nil)
			return false, nil
		}
		m.record("login", source, false, err)
		return false, err
	}

	cred := &entities.OAuthCredential{
		CatalogURL: source,
		Login:      req.Login,
		OAuthURL:   req.OAuthURL,
		RefreshURL: req.RefreshURL,
	}
	if stored != nil {
		cred.FeedIdentifier = stored.FeedIdentifier
	}
	if _, err := m.persist(ctx, cred, resp, resp.RefreshToken, keyHex, ivHex); err != nil {
		m.setState(source, StateUnauthenticated, nil)
		m.record("login", source, false, err)
		return false, err
	}

	log.Printf("Authenticated catalog source %s", source)
	m.record("login", source, true, nil)
	return true, nil
}

// persist stores the encrypted refresh token and caches the access token.
func (m *Manager) persist(ctx context.Context, cred *entities.OAuthCredential, resp *TokenResponse, refreshToken, keyHex, ivHex string) (*AccessToken, error) {
	encrypted, err := m.vault.Encrypt(refreshToken, keyHex, ivHex)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	now := m.now()
	cred.RefreshToken = encrypted
	cred.KeyFingerprint = ""
	if encrypted != "" {
		cred.KeyFingerprint = crypto.Fingerprint(keyHex, ivHex)
	}
	cred.LastRefreshedAt = &now
	if feedID := m.linkFeed(ctx, cred.CatalogURL); feedID != "" {
		cred.FeedIdentifier = feedID
	}

	if err := m.creds.Save(ctx, cred); err != nil {
		return nil, err
	}

	token := &AccessToken{
		Value:     resp.AccessToken,
		Type:      resp.TokenType,
		ExpiresAt: resp.ExpiresAt(now),
		Source:    cred.CatalogURL,
	}
	m.setState(cred.CatalogURL, StateAuthenticated, token)
	return token, nil
}

// linkFeed returns the oldest stored feed served from source, if any.
func (m *Manager) linkFeed(ctx context.Context, source string) string {
	if m.feeds == nil {
		return ""
	}
	feeds, err := m.feeds.FindByOrigin(ctx, source)
	if err != nil {
		log.Printf("Failed to look up feeds for %s: %v", source, err)
		return ""
	}
	if len(feeds) == 0 {
		return ""
	}
	return feeds[0].Identifier
}

// freshToken returns the cached token for source when it is live and is not
// the one the caller saw rejected.
func (m *Manager) freshToken(source, staleToken string) *AccessToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[source]
	if !ok || s.token == nil || s.token.Value == staleToken {
		return nil
	}
	if s.token.expiringSoon(m.now(), m.cfg.RefreshMargin) {
		return nil
	}
	return s.token
}

func (m *Manager) setState(source string, state State, token *AccessToken) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessionLocked(source)
	s.state = state
	switch state {
	case StateAuthenticated:
		s.token = token
	case StateUnauthenticated:
		s.token = nil
	}
}

func (m *Manager) rememberKeys(source, keyHex, ivHex string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessionLocked(source)
	s.keyHex = keyHex
	s.ivHex = ivHex
}

// sessionLocked returns the session for source, creating it (caller holds mu).
func (m *Manager) sessionLocked(source string) *session {
	s, ok := m.sessions[source]
	if !ok {
		s = &session{state: StateUnauthenticated}
		m.sessions[source] = s
	}
	return s
}

func (m *Manager) keyMaterial(keyHex, ivHex string) (string, string) {
	if strings.TrimSpace(keyHex) == "" {
		keyHex = m.cfg.DefaultKeyHex
	}
	if strings.TrimSpace(ivHex) == "" {
		ivHex = m.cfg.DefaultIVHex
	}
	return keyHex, ivHex
}

func (m *Manager) record(action, source string, authenticated bool, err error) {
	if m.audit != nil {
		m.audit.LogAuth(action, source, authenticated, err)
	}
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https")
}
