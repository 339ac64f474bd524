package features

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/thuinanutshell/ux-interviewer/api"
	"github.com/thuinanutshell/ux-interviewer/jwtauth"
	"github.com/thuinanutshell/ux-interviewer/notify"
)

// EventInvitationSent is emitted to real-time clients after an invitation goes out.
const EventInvitationSent = "invitation_sent"

// Invitation emails interview links to participants.
type Invitation struct {
	tokens  *jwtauth.Manager
	store   InvitationStore
	mailer  Mailer
	events  Emitter
	baseURL string
	logger  *zap.SugaredLogger
}

// NewInvitation creates the invitation module.
func NewInvitation(deps Deps) *Invitation {
	return &Invitation{
		tokens:  deps.Tokens,
		store:   deps.Invitations,
		mailer:  deps.Mailer,
		events:  deps.Events,
		baseURL: strings.TrimRight(deps.Config.BaseURL, "/"),
		logger:  deps.Logger,
	}
}

func (m *Invitation) Name() string   { return "invitation" }
func (m *Invitation) Prefix() string { return "/invitation" }

func (m *Invitation) Routes(r *mux.Router) {
	r.Handle("/send", m.tokens.Middleware(http.HandlerFunc(m.send))).Methods(http.MethodPost)
}

// SendRequest is the body of POST /invitation/send.
type SendRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	InterviewID string `json:"interview_id" validate:"required,max=64"`
}

func (m *Invitation) send(w http.ResponseWriter, r *http.Request) {
	if !m.mailer.Enabled() {
		api.WriteError(w, http.StatusServiceUnavailable, "Email service is not configured", nil, m.logger)
		return
	}

	var req SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error(), nil, m.logger)
		return
	}

	inv, err := m.store.CreateInvitation(r.Context(), req.InterviewID, req.Email)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "Failed to create invitation", err, m.logger)
		return
	}

	link := m.baseURL + "/interview/" + url.PathEscape(req.InterviewID) + "?invitation=" + url.QueryEscape(inv.ID)
	err = m.mailer.SendInvitation(r.Context(), req.Email, notify.Invitation{
		InterviewID: req.InterviewID,
		Link:        link,
	})
	if errors.Is(err, notify.ErrEmailDisabled) {
		api.WriteError(w, http.StatusServiceUnavailable, "Email service is not configured", nil, m.logger)
		return
	}
	if err != nil {
		api.WriteError(w, http.StatusBadGateway, "Failed to send invitation", err, m.logger)
		return
	}

	sentAt := time.Now().UTC()
	if err := m.store.MarkSent(r.Context(), inv.ID, sentAt); err != nil {
		m.logger.Errorw("Failed to mark invitation sent", "invitation_id", inv.ID, "error", err)
	} else {
		inv.SentAt = &sentAt
	}

	if m.events != nil {
		payload := map[string]string{"invitation_id": inv.ID, "interview_id": inv.InterviewID}
		if err := m.events.Emit(r.Context(), EventInvitationSent, payload); err != nil {
			m.logger.Errorw("Failed to emit invitation event", "invitation_id", inv.ID, "error", err)
		}
	}

	api.WriteJSON(w, http.StatusCreated, inv)
}
