// Package features holds the feature modules mounted by the application:
// auth, product, interview, analytics, ai_integration and invitation.
package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/thuinanutshell/ux-interviewer/api"
	"github.com/thuinanutshell/ux-interviewer/config"
	"github.com/thuinanutshell/ux-interviewer/jwtauth"
	"github.com/thuinanutshell/ux-interviewer/notify"
	"github.com/thuinanutshell/ux-interviewer/oauth"
	"github.com/thuinanutshell/ux-interviewer/storage"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// Mailer sends invitation emails.
type Mailer interface {
	Enabled() bool
	SendInvitation(ctx context.Context, to string, inv notify.Invitation) error
}

// InvitationStore persists invitations.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, interviewID, email string) (*storage.Invitation, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
}

// Emitter publishes real-time events.
type Emitter interface {
	Emit(ctx context.Context, event string, data interface{}) error
}

// Deps are the collaborators shared by the feature modules.
type Deps struct {
	Config      *config.Config
	Logger      *zap.SugaredLogger
	Tokens      *jwtauth.Manager
	OAuth       *oauth.Registry
	Users       storage.UserStorage
	Invitations InvitationStore
	Mailer      Mailer
	Events      Emitter
}

// All returns the six modules in mount order.
func All(deps Deps) []api.Module {
	return []api.Module{
		NewAuth(deps),
		NewStatus("product", "/product", "Products under research"),
		NewStatus("interview", "/interview", "Interview sessions"),
		NewStatus("analytics", "/analytics", "Interview analytics"),
		NewAIIntegration(deps.Config),
		NewInvitation(deps),
	}
}

// decodeJSON decodes a bounded request body into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return validationMessage(err)
	}
	return nil
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return fmt.Errorf("field %s failed %s validation", fe.Field(), fe.Tag())
}
