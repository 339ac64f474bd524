// Package oauth keeps the registry of OAuth/OpenID Connect providers the
// application signs users in with. Provider endpoints come from the provider's
// discovery document, fetched lazily on first use and cached.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Google provider settings.
const (
	GoogleProvider      = "google"
	GoogleDiscoveryURL  = "https://accounts.google.com/.well-known/openid-configuration"
	PromptSelectAccount = "select_account"
)

// GoogleScopes are the scopes requested from Google.
var GoogleScopes = []string{"openid", "email", "profile"}

var (
	// ErrProviderNotFound is returned when no provider is registered under a name
	ErrProviderNotFound = errors.New("oauth provider not registered")
	// ErrProviderNotConfigured is returned when a provider has no client credentials
	ErrProviderNotConfigured = errors.New("oauth provider has no client credentials")
	// ErrInsecureTransport is returned when an endpoint is plain http and insecure transport is not allowed
	ErrInsecureTransport = errors.New("oauth endpoint requires https")
)

// ProviderConfig describes one provider registration.
type ProviderConfig struct {
	Name              string
	ClientID          string
	ClientSecret      string
	ServerMetadataURL string
	Scopes            []string
	// Prompt is sent as the prompt parameter of the authorization request
	Prompt      string
	RedirectURL string
}

// Metadata is the subset of the OpenID discovery document the client uses.
type Metadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// UserInfo is the standard OpenID userinfo response.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Registry holds the registered providers.
type Registry struct {
	mu            sync.RWMutex
	clients       map[string]*Client
	http          *resty.Client
	allowInsecure bool
	logger        *zap.SugaredLogger
}

// NewRegistry creates an empty registry. allowInsecure permits plain http
// endpoints and redirect URLs, for local development only.
func NewRegistry(allowInsecure bool, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		http: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Accept", "application/json").
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond),
		allowInsecure: allowInsecure,
		logger:        logger,
	}
}

// Register adds a provider. Registering the same name twice is an error.
func (r *Registry) Register(cfg ProviderConfig) (*Client, error) {
	if cfg.Name == "" {
		return nil, errors.New("oauth provider name cannot be empty")
	}
	if cfg.ServerMetadataURL == "" {
		return nil, fmt.Errorf("oauth provider %s: server metadata URL cannot be empty", cfg.Name)
	}
	if _, err := url.ParseRequestURI(cfg.ServerMetadataURL); err != nil {
		return nil, fmt.Errorf("oauth provider %s: invalid server metadata URL: %w", cfg.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[cfg.Name]; exists {
		return nil, fmt.Errorf("oauth provider %s already registered", cfg.Name)
	}

	c := &Client{
		cfg:           cfg,
		http:          r.http,
		allowInsecure: r.allowInsecure,
		logger:        r.logger,
	}
	r.clients[cfg.Name] = c

	r.logger.Infow("OAuth provider registered",
		"provider", cfg.Name,
		"scopes", strings.Join(cfg.Scopes, " "),
		"configured", c.Configured())

	return c, nil
}

// Client returns the client registered under name.
func (r *Registry) Client(name string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return c, nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

// Client talks to one registered provider.
type Client struct {
	cfg           ProviderConfig
	http          *resty.Client
	allowInsecure bool
	logger        *zap.SugaredLogger

	mu       sync.Mutex
	metadata *Metadata
}

// Name returns the provider name.
func (c *Client) Name() string { return c.cfg.Name }

// Configured reports whether client credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// Metadata returns the discovery document, fetching it on first call.
// A failed fetch is not cached.
func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.metadata != nil {
		return c.metadata, nil
	}

	var md Metadata
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&md).
		ForceContentType("application/json").
		Get(c.cfg.ServerMetadataURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s discovery document: %w", c.cfg.Name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch %s discovery document: status %d", c.cfg.Name, resp.StatusCode())
	}
	if md.AuthorizationEndpoint == "" || md.TokenEndpoint == "" {
		return nil, fmt.Errorf("%s discovery document is missing authorization or token endpoint", c.cfg.Name)
	}
	for _, endpoint := range []string{md.AuthorizationEndpoint, md.TokenEndpoint, md.UserinfoEndpoint} {
		if err := c.checkTransport(endpoint); err != nil {
			return nil, err
		}
	}

	c.logger.Debugw("OAuth discovery document loaded",
		"provider", c.cfg.Name,
		"issuer", md.Issuer)

	c.metadata = &md
	return c.metadata, nil
}

func (c *Client) checkTransport(raw string) error {
	if raw == "" || c.allowInsecure {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid oauth endpoint %q: %w", raw, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: %s", ErrInsecureTransport, raw)
	}
	return nil
}

func (c *Client) oauth2Config(ctx context.Context) (*oauth2.Config, *Metadata, error) {
	if !c.Configured() {
		return nil, nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, c.cfg.Name)
	}
	md, err := c.Metadata(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURL,
		Scopes:       c.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  md.AuthorizationEndpoint,
			TokenURL: md.TokenEndpoint,
		},
	}, md, nil
}

// AuthCodeURL builds the authorization redirect for state.
func (c *Client) AuthCodeURL(ctx context.Context, state string) (string, error) {
	if err := c.checkTransport(c.cfg.RedirectURL); err != nil {
		return "", err
	}
	conf, _, err := c.oauth2Config(ctx)
	if err != nil {
		return "", err
	}
	var opts []oauth2.AuthCodeOption
	if c.cfg.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", c.cfg.Prompt))
	}
	return conf.AuthCodeURL(state, opts...), nil
}

// Exchange trades an authorization code for a token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	conf, _, err := c.oauth2Config(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange %s authorization code: %w", c.cfg.Name, err)
	}
	return tok, nil
}

// UserInfo fetches the signed-in user's profile with tok.
func (c *Client) UserInfo(ctx context.Context, tok *oauth2.Token) (*UserInfo, error) {
	md, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if md.UserinfoEndpoint == "" {
		return nil, fmt.Errorf("%s does not publish a userinfo endpoint", c.cfg.Name)
	}

	var info UserInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok.AccessToken).
		SetResult(&info).
		ForceContentType("application/json").
		Get(md.UserinfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s userinfo: %w", c.cfg.Name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch %s userinfo: status %d", c.cfg.Name, resp.StatusCode())
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("%s userinfo has no subject", c.cfg.Name)
	}
	return &info, nil
}
