// Package notify sends transactional email through the SendGrid v3 API.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/thuinanutshell/ux-interviewer/metrics"
)

// DefaultSendGridEndpoint is the SendGrid v3 mail send URL.
const DefaultSendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

var (
	// ErrEmailDisabled is returned when sender email or API key is not configured
	ErrEmailDisabled = errors.New("email delivery is not configured")
	// ErrInvalidMessage is returned for messages missing a recipient or subject
	ErrInvalidMessage = errors.New("invalid email message")
)

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// EmailConfig configures EmailService. Nil credentials disable delivery.
type EmailConfig struct {
	SenderEmail  *string
	APIKey       *string
	SupportEmail string
	Endpoint     string
	Timeout      time.Duration
}

// EmailService delivers email on behalf of the application.
type EmailService struct {
	sender   string
	apiKey   string
	support  string
	endpoint string
	client   *resty.Client
	breaker  *Breaker
	logger   *zap.SugaredLogger
}

// NewEmailService creates the service. It never fails: without credentials
// the service is constructed disabled and Send returns ErrEmailDisabled.
func NewEmailService(cfg EmailConfig, logger *zap.SugaredLogger) *EmailService {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultSendGridEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &EmailService{
		support:  cfg.SupportEmail,
		endpoint: endpoint,
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		breaker: NewBreaker(5, time.Minute),
		logger:  logger,
	}
	if cfg.SenderEmail != nil {
		s.sender = strings.TrimSpace(*cfg.SenderEmail)
	}
	if cfg.APIKey != nil {
		s.apiKey = strings.TrimSpace(*cfg.APIKey)
	}
	if s.apiKey != "" {
		s.client.SetAuthToken(s.apiKey)
	}

	if !s.Enabled() {
		logger.Warnw("Email delivery disabled",
			"sender_configured", s.sender != "",
			"api_key_configured", s.apiKey != "")
	}
	return s
}

// Enabled reports whether both sender and API key are configured.
func (s *EmailService) Enabled() bool {
	return s.sender != "" && s.apiKey != ""
}

// SupportEmail returns the reply-to address used on outgoing mail.
func (s *EmailService) SupportEmail() string {
	return s.support
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	ReplyTo          *sgAddress          `json:"reply_to,omitempty"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// Send delivers msg. A non-2xx answer from SendGrid is an error.
func (s *EmailService) Send(ctx context.Context, msg Message) error {
	if !s.Enabled() {
		s.logger.Warnw("Email not sent: delivery disabled", "to", msg.To, "subject", msg.Subject)
		metrics.EmailsSent.WithLabelValues("disabled").Inc()
		return ErrEmailDisabled
	}
	if strings.TrimSpace(msg.To) == "" || strings.TrimSpace(msg.Subject) == "" {
		return fmt.Errorf("%w: recipient and subject are required", ErrInvalidMessage)
	}
	if msg.Text == "" && msg.HTML == "" {
		return fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}
	if err := s.breaker.Allow(); err != nil {
		metrics.EmailsSent.WithLabelValues("rejected").Inc()
		return err
	}

	mail := sgMail{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: msg.To}}}},
		From:             sgAddress{Email: s.sender},
		Subject:          msg.Subject,
	}
	if s.support != "" {
		mail.ReplyTo = &sgAddress{Email: s.support}
	}
	// SendGrid requires text/plain before text/html
	if msg.Text != "" {
		mail.Content = append(mail.Content, sgContent{Type: "text/plain", Value: msg.Text})
	}
	if msg.HTML != "" {
		mail.Content = append(mail.Content, sgContent{Type: "text/html", Value: msg.HTML})
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(mail).
		Post(s.endpoint)
	if err != nil {
		s.failed(msg, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		err := fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
		s.failed(msg, err)
		return err
	}

	s.breaker.RecordSuccess()
	metrics.EmailsSent.WithLabelValues("sent").Inc()
	s.logger.Infow("Email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (s *EmailService) failed(msg Message, err error) {
	state := s.breaker.RecordFailure()
	metrics.EmailsSent.WithLabelValues("failed").Inc()
	s.logger.Errorw("Failed to send email",
		"to", msg.To,
		"subject", msg.Subject,
		"breaker", state,
		"error", err)
}

// Invitation is the data rendered into an interview invitation email.
type Invitation struct {
	InterviewID  string
	Link         string
	SupportEmail string
}

var invitationTemplate = template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
    <h2>You're invited to a user interview</h2>
    <p>We'd love to hear about your experience. The interview takes about 15 minutes.</p>
    <p><a href="{{.Link}}">Start interview {{.InterviewID}}</a></p>
    {{if .SupportEmail}}<p>Questions? Contact <a href="mailto:{{.SupportEmail}}">{{.SupportEmail}}</a>.</p>{{end}}
</body>
</html>
`))

// SendInvitation renders and sends an interview invitation.
func (s *EmailService) SendInvitation(ctx context.Context, to string, inv Invitation) error {
	if inv.SupportEmail == "" {
		inv.SupportEmail = s.support
	}
	var buf bytes.Buffer
	if err := invitationTemplate.Execute(&buf, inv); err != nil {
		return fmt.Errorf("failed to render invitation: %w", err)
	}
	return s.Send(ctx, Message{
		To:      to,
		Subject: "You're invited to a user interview",
		Text:    fmt.Sprintf("You're invited to a user interview. Start here: %s", inv.Link),
		HTML:    buf.String(),
	})
}
