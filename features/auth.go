package features

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/thuinanutshell/ux-interviewer/api"
	"github.com/thuinanutshell/ux-interviewer/jwtauth"
	"github.com/thuinanutshell/ux-interviewer/oauth"
	"github.com/thuinanutshell/ux-interviewer/storage"
)

const stateCookie = "oauth_state"

// Auth signs users in with Google and issues token pairs.
type Auth struct {
	tokens   *jwtauth.Manager
	registry *oauth.Registry
	users    storage.UserStorage
	secure   bool
	logger   *zap.SugaredLogger
}

// NewAuth creates the auth module.
func NewAuth(deps Deps) *Auth {
	return &Auth{
		tokens:   deps.Tokens,
		registry: deps.OAuth,
		users:    deps.Users,
		secure:   !deps.Config.InsecureTransport,
		logger:   deps.Logger,
	}
}

func (m *Auth) Name() string   { return "auth" }
func (m *Auth) Prefix() string { return "/auth" }

func (m *Auth) Routes(r *mux.Router) {
	r.HandleFunc("/google", m.googleLogin).Methods(http.MethodGet)
	r.HandleFunc("/google/callback", m.googleCallback).Methods(http.MethodGet)
	r.HandleFunc("/refresh", m.refresh).Methods(http.MethodPost)
	r.Handle("/me", m.tokens.Middleware(http.HandlerFunc(m.me))).Methods(http.MethodGet)
}

// LoginResponse is returned after a successful sign-in.
type LoginResponse struct {
	User   *storage.User `json:"user"`
	Tokens *jwtauth.Pair `json:"tokens"`
}

func (m *Auth) google(w http.ResponseWriter) (*oauth.Client, bool) {
	client, err := m.registry.Client(oauth.GoogleProvider)
	if err != nil || !client.Configured() {
		api.WriteError(w, http.StatusServiceUnavailable, "Google sign-in is not configured", nil, m.logger)
		return nil, false
	}
	return client, true
}

func (m *Auth) googleLogin(w http.ResponseWriter, r *http.Request) {
	client, ok := m.google(w)
	if !ok {
		return
	}

	state, err := newState()
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "Failed to start sign-in", err, m.logger)
		return
	}
	target, err := client.AuthCodeURL(r.Context(), state)
	if err != nil {
		api.WriteError(w, http.StatusBadGateway, "Failed to contact identity provider", err, m.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     m.Prefix(),
		MaxAge:   600,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (m *Auth) googleCallback(w http.ResponseWriter, r *http.Request) {
	client, ok := m.google(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		m.logger.Warnw("Google sign-in denied", "error", providerErr)
		api.WriteError(w, http.StatusBadRequest, "Sign-in was cancelled or denied", nil, m.logger)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	state := q.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		api.WriteError(w, http.StatusBadRequest, "Invalid OAuth state", nil, m.logger)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: m.Prefix(), MaxAge: -1, HttpOnly: true, Secure: m.secure})

	code := q.Get("code")
	if code == "" {
		api.WriteError(w, http.StatusBadRequest, "Missing authorization code", nil, m.logger)
		return
	}

	tok, err := client.Exchange(r.Context(), code)
	if err != nil {
		m.logger.Warnw("Authorization code exchange failed", "error", err)
		api.WriteError(w, http.StatusUnauthorized, "Authentication failed", nil, m.logger)
		return
	}
	info, err := client.UserInfo(r.Context(), tok)
	if err != nil {
		api.WriteError(w, http.StatusBadGateway, "Failed to fetch user profile", err, m.logger)
		return
	}
	if info.Email == "" {
		api.WriteError(w, http.StatusBadRequest, "Google account has no email address", nil, m.logger)
		return
	}

	user, err := m.users.UpsertGoogleUser(r.Context(), storage.GoogleProfile{
		Subject:       info.Subject,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		Picture:       info.Picture,
	})
	if errors.Is(err, storage.ErrUserConflict) {
		m.logger.Warnw("Google sign-in conflicts with an existing account", "error", err)
		api.WriteError(w, http.StatusConflict, "Account conflict: this email belongs to another account", nil, m.logger)
		return
	}
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "Failed to save user", err, m.logger)
		return
	}
	pair, err := m.tokens.IssuePair(user.ID, user.Email)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "Failed to issue tokens", err, m.logger)
		return
	}

	m.logger.Infow("User signed in", "user_id", user.ID, "provider", client.Name())
	api.WriteJSON(w, http.StatusOK, LoginResponse{User: user, Tokens: pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (m *Auth) refresh(w http.ResponseWriter, r *http.Request) {
	token := jwtauth.BearerToken(r)
	if token == "" {
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err != nil {
			api.WriteError(w, http.StatusBadRequest, err.Error(), nil, m.logger)
			return
		}
		token = req.RefreshToken
	}

	claims, err := m.tokens.ValidateRefresh(token)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, "Invalid or expired refresh token", nil, m.logger)
		return
	}
	user, err := m.users.GetUser(r.Context(), claims.Subject)
	if errors.Is(err, storage.ErrUserNotFound) {
		api.WriteError(w, http.StatusUnauthorized, "Invalid or expired refresh token", nil, m.logger)
		return
	}
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "Failed to load user", err, m.logger)
		return
	}

	pair, err := m.tokens.IssuePair(user.ID, user.Email)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "Failed to issue tokens", err, m.logger)
		return
	}
	api.WriteJSON(w, http.StatusOK, pair)
}

func (m *Auth) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtauth.ClaimsFromContext(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "Authorization required", nil, m.logger)
		return
	}
	user, err := m.users.GetUser(r.Context(), claims.Subject)
	if errors.Is(err, storage.ErrUserNotFound) {
		api.WriteError(w, http.StatusNotFound, "User not found", nil, m.logger)
		return
	}
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "Failed to load user", err, m.logger)
		return
	}
	api.WriteJSON(w, http.StatusOK, user)
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
