package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// fakeProvider serves a discovery document, a token endpoint and a userinfo endpoint.
type fakeProvider struct {
	server        *httptest.Server
	discoveryHits atomic.Int32
	failDiscovery atomic.Bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		fp.discoveryHits.Add(1)
		if fp.failDiscovery.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		base := fp.server.URL
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 base,
			"authorization_endpoint": base + "/authorize",
			"token_endpoint":         base + "/token",
			"userinfo_endpoint":      base + "/userinfo",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "provider-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(UserInfo{
			Subject: "g-123",
			Email:   "ada@example.com",
			Name:    "Ada",
		})
	})
	fp.server = httptest.NewServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) config() ProviderConfig {
	return ProviderConfig{
		Name:              GoogleProvider,
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		ServerMetadataURL: fp.server.URL + "/.well-known/openid-configuration",
		Scopes:            GoogleScopes,
		Prompt:            PromptSelectAccount,
		RedirectURL:       "http://localhost:5001/auth/google/callback",
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry(true, zap.NewNop().Sugar())

	_, err := reg.Register(ProviderConfig{Name: "google", ServerMetadataURL: GoogleDiscoveryURL})
	require.NoError(t, err)

	_, err = reg.Register(ProviderConfig{Name: "google", ServerMetadataURL: GoogleDiscoveryURL})
	assert.Error(t, err, "duplicate registration must fail")

	_, err = reg.Register(ProviderConfig{Name: "", ServerMetadataURL: GoogleDiscoveryURL})
	assert.Error(t, err)

	_, err = reg.Register(ProviderConfig{Name: "other"})
	assert.Error(t, err)

	c, err := reg.Client("google")
	require.NoError(t, err)
	assert.Equal(t, "google", c.Name())
	assert.False(t, c.Configured())

	_, err = reg.Client("github")
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.Equal(t, []string{"google"}, reg.Names())
}

func TestClient_MetadataCached(t *testing.T) {
	fp := newFakeProvider(t)
	reg := NewRegistry(true, zap.NewNop().Sugar())
	c, err := reg.Register(fp.config())
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		md, err := c.Metadata(ctx)
		require.NoError(t, err)
		assert.Equal(t, fp.server.URL+"/token", md.TokenEndpoint)
	}
	assert.Equal(t, int32(1), fp.discoveryHits.Load())
}

func TestClient_MetadataFailureNotCached(t *testing.T) {
	fp := newFakeProvider(t)
	fp.failDiscovery.Store(true)
	reg := NewRegistry(true, zap.NewNop().Sugar())
	c, err := reg.Register(fp.config())
	require.NoError(t, err)

	_, err = c.Metadata(context.Background())
	require.Error(t, err)

	fp.failDiscovery.Store(false)
	_, err = c.Metadata(context.Background())
	assert.NoError(t, err)
}

func TestClient_AuthCodeURL(t *testing.T) {
	fp := newFakeProvider(t)
	reg := NewRegistry(true, zap.NewNop().Sugar())
	c, err := reg.Register(fp.config())
	require.NoError(t, err)

	raw, err := c.AuthCodeURL(context.Background(), "state-xyz")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "select_account", q.Get("prompt"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
}

func TestClient_RequiresHTTPSUnlessInsecure(t *testing.T) {
	fp := newFakeProvider(t)
	reg := NewRegistry(false, zap.NewNop().Sugar())
	c, err := reg.Register(fp.config())
	require.NoError(t, err)

	_, err = c.AuthCodeURL(context.Background(), "state")
	assert.ErrorIs(t, err, ErrInsecureTransport)
}

func TestClient_NotConfigured(t *testing.T) {
	fp := newFakeProvider(t)
	reg := NewRegistry(true, zap.NewNop().Sugar())
	cfg := fp.config()
	cfg.ClientSecret = ""
	c, err := reg.Register(cfg)
	require.NoError(t, err)

	_, err = c.AuthCodeURL(context.Background(), "state")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestClient_ExchangeAndUserInfo(t *testing.T) {
	fp := newFakeProvider(t)
	reg := NewRegistry(true, zap.NewNop().Sugar())
	c, err := reg.Register(fp.config())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Exchange(ctx, "bad-code")
	assert.Error(t, err)

	tok, err := c.Exchange(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "provider-token", tok.AccessToken)

	info, err := c.UserInfo(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "g-123", info.Subject)
	assert.Equal(t, "ada@example.com", info.Email)
}

func TestClient_DecodesJSONWithoutContentType(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"authorization_endpoint":"` + srv.URL + `/authorize",` +
			`"token_endpoint":"` + srv.URL + `/token","userinfo_endpoint":"` + srv.URL + `/userinfo"}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sub":"g-9","email":"grace@example.com"}`))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	reg := NewRegistry(true, zap.NewNop().Sugar())
	c, err := reg.Register(ProviderConfig{
		Name:              GoogleProvider,
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		ServerMetadataURL: srv.URL + "/.well-known/openid-configuration",
		Scopes:            GoogleScopes,
		RedirectURL:       "http://localhost:5001/auth/google/callback",
	})
	require.NoError(t, err)

	md, err := c.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/authorize", md.AuthorizationEndpoint)

	info, err := c.UserInfo(context.Background(), &oauth2.Token{AccessToken: "any"})
	require.NoError(t, err)
	assert.Equal(t, "g-9", info.Subject)
	assert.Equal(t, "grace@example.com", info.Email)
}
