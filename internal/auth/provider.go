// Package auth obtains and caches the bearer credential used to talk to the
// remote document store.
package auth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/ruskoloma/bible365/internal/logger"
	"github.com/ruskoloma/bible365/internal/store"
)

// ErrNoClientID is returned by Initialize when no OAuth client id is
// configured. Callers treat it as "cloud features unavailable", not as a
// failure.
var ErrNoClientID = errors.New("no OAuth client id configured")

// expirySkew is subtracted from the recorded expiry before trusting a
// persisted token, so a token about to expire is renewed early.
const expirySkew = 60 * time.Second

// Grant is the result of a consent flow exchange.
type Grant struct {
	AccessToken  string
	RefreshToken string // empty on silent renewals
	ExpiresIn    int    // seconds
}

// Profile identifies the signed-in account.
type Profile struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// ConsentFlow abstracts the OAuth exchanges so tests can substitute fakes.
type ConsentFlow interface {
	// Interactive prompts the user and blocks until consent is granted or
	// refused.
	Interactive(ctx context.Context, clientID string) (*Grant, error)
	// Silent renews the credential without user interaction.
	Silent(ctx context.Context, clientID, refreshToken string) (*Grant, error)
	// FetchProfile looks up the account profile for a bearer token.
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// Provider caches the bearer token in memory and in the local store.
type Provider struct {
	clientID string
	store    *store.Store
	flow     ConsentFlow

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewProvider creates a token provider. Call Initialize before use.
func NewProvider(clientID string, s *store.Store, flow ConsentFlow) *Provider {
	return &Provider{clientID: clientID, store: s, flow: flow}
}

// Initialize loads any persisted token state. It fails with ErrNoClientID
// when no client credential is configured and with a plain error when no
// consent flow is available in this environment.
func (p *Provider) Initialize() error {
	if p.clientID == "" {
		return ErrNoClientID
	}
	if p.flow == nil {
		return errors.New("no consent flow available")
	}

	token, err := p.store.Get(store.KeyAccessToken)
	if err != nil {
		return err
	}
	expiryRaw, err := p.store.Get(store.KeyTokenExpiry)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
	if expiryRaw != "" {
		if unix, err := strconv.ParseInt(expiryRaw, 10, 64); err == nil {
			p.expiry = time.Unix(unix, 0)
		}
	}
	return nil
}

// cached returns the in-memory token if it is not within the skew window of
// its expiry.
func (p *Provider) cached() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == "" || !time.Now().Before(p.expiry.Add(-expirySkew)) {
		return ""
	}
	return p.token
}

// persistGrant stores a freshly granted token. Token state changes are
// written immediately so a restart can recover an unexpired token without a
// new prompt.
func (p *Provider) persistGrant(g *Grant) error {
	expiry := time.Now().Add(time.Duration(g.ExpiresIn) * time.Second)

	p.mu.Lock()
	p.token = g.AccessToken
	p.expiry = expiry
	p.mu.Unlock()

	if err := p.store.Set(store.KeyAccessToken, g.AccessToken); err != nil {
		return err
	}
	if err := p.store.Set(store.KeyTokenExpiry, strconv.FormatInt(expiry.Unix(), 10)); err != nil {
		return err
	}
	if g.RefreshToken != "" {
		if err := p.store.Set(store.KeyRefreshToken, g.RefreshToken); err != nil {
			return err
		}
	}
	return nil
}

// Token returns a valid bearer token. When interactive is false, any
// renewal failure resolves to an empty token with a nil error; callers
// treat "no token" as "stay disconnected, try again later". When
// interactive is true, acquisition failures surface to the caller.
func (p *Provider) Token(ctx context.Context, interactive bool) (string, error) {
	if token := p.cached(); token != "" {
		return token, nil
	}

	if interactive {
		grant, err := p.flow.Interactive(ctx, p.clientID)
		if err != nil {
			return "", err
		}
		if err := p.persistGrant(grant); err != nil {
			return "", err
		}
		return grant.AccessToken, nil
	}

	refreshToken, err := p.store.Get(store.KeyRefreshToken)
	if err != nil || refreshToken == "" {
		return "", nil
	}
	grant, err := p.flow.Silent(ctx, p.clientID, refreshToken)
	if err != nil {
		logger.Debug("auth: silent renewal failed: %v", err)
		return "", nil
	}
	if err := p.persistGrant(grant); err != nil {
		logger.Warn("auth: failed to persist renewed token: %v", err)
	}
	return grant.AccessToken, nil
}

// Profile returns the cached account profile, fetching and persisting it on
// first use.
func (p *Provider) Profile(ctx context.Context) (*Profile, error) {
	var cached Profile
	found, err := p.store.GetJSON(store.KeyProfile, &cached)
	if err != nil {
		return nil, err
	}
	if found {
		return &cached, nil
	}

	token, err := p.Token(ctx, false)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.New("no token available for profile lookup")
	}

	profile, err := p.flow.FetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := p.store.SetJSON(store.KeyProfile, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// SignOut clears the in-memory and persisted token, expiry, cached remote
// file identifier, and cached profile.
func (p *Provider) SignOut() error {
	p.mu.Lock()
	p.token = ""
	p.expiry = time.Time{}
	p.mu.Unlock()

	return p.store.Delete(
		store.KeyAccessToken,
		store.KeyRefreshToken,
		store.KeyTokenExpiry,
		store.KeyProfile,
		store.KeyFileID,
	)
}
