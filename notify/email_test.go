package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func strPtr(s string) *string { return &s }

// sendGridStub records requests and answers with status.
type sendGridStub struct {
	mu     sync.Mutex
	status int
	bodies []sgMail
	auth   []string
}

func (s *sendGridStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var mail sgMail
	_ = json.Unmarshal(raw, &mail)

	s.mu.Lock()
	s.bodies = append(s.bodies, mail)
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	status := s.status
	s.mu.Unlock()

	w.WriteHeader(status)
	if status >= 300 {
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad"}]}`))
	}
}

func newTestService(t *testing.T, stub *sendGridStub) *EmailService {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return NewEmailService(EmailConfig{
		SenderEmail:  strPtr("noreply@example.com"),
		APIKey:       strPtr("SG.test"),
		SupportEmail: "support@example.com",
		Endpoint:     srv.URL + "/v3/mail/send",
	}, zaptest.NewLogger(t).Sugar())
}

func TestEmailService_Enabled(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	tests := []struct {
		name   string
		sender *string
		key    *string
		want   bool
	}{
		{"both present", strPtr("a@b.c"), strPtr("key"), true},
		{"no sender", nil, strPtr("key"), false},
		{"no key", strPtr("a@b.c"), nil, false},
		{"blank key", strPtr("a@b.c"), strPtr("  "), false},
		{"nothing", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewEmailService(EmailConfig{SenderEmail: tt.sender, APIKey: tt.key}, logger)
			assert.Equal(t, tt.want, svc.Enabled())
		})
	}
}

func TestEmailService_SendDisabled(t *testing.T) {
	svc := NewEmailService(EmailConfig{SupportEmail: "support@example.com"}, zaptest.NewLogger(t).Sugar())
	err := svc.Send(context.Background(), Message{To: "x@example.com", Subject: "hi", Text: "hello"})
	assert.ErrorIs(t, err, ErrEmailDisabled)
	assert.Equal(t, "support@example.com", svc.SupportEmail())
}

func TestEmailService_Send(t *testing.T) {
	stub := &sendGridStub{status: http.StatusAccepted}
	svc := newTestService(t, stub)

	err := svc.Send(context.Background(), Message{
		To:      "user@example.com",
		Subject: "Welcome",
		Text:    "plain",
		HTML:    "<p>html</p>",
	})
	require.NoError(t, err)

	require.Len(t, stub.bodies, 1)
	mail := stub.bodies[0]
	assert.Equal(t, "Bearer SG.test", stub.auth[0])
	assert.Equal(t, "noreply@example.com", mail.From.Email)
	require.NotNil(t, mail.ReplyTo)
	assert.Equal(t, "support@example.com", mail.ReplyTo.Email)
	assert.Equal(t, "user@example.com", mail.Personalizations[0].To[0].Email)
	require.Len(t, mail.Content, 2)
	assert.Equal(t, "text/plain", mail.Content[0].Type)
	assert.Equal(t, "text/html", mail.Content[1].Type)
}

func TestEmailService_SendRejectsInvalidMessage(t *testing.T) {
	stub := &sendGridStub{status: http.StatusAccepted}
	svc := newTestService(t, stub)

	err := svc.Send(context.Background(), Message{Subject: "no recipient", Text: "x"})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	err = svc.Send(context.Background(), Message{To: "a@b.c", Subject: "empty"})
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.Empty(t, stub.bodies)
}

func TestEmailService_ProviderFailureOpensBreaker(t *testing.T) {
	stub := &sendGridStub{status: http.StatusBadRequest}
	svc := newTestService(t, stub)
	msg := Message{To: "user@example.com", Subject: "s", Text: "t"}

	for i := 0; i < 5; i++ {
		err := svc.Send(context.Background(), msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
	}
	assert.Equal(t, BreakerOpen, svc.breaker.State())

	err := svc.Send(context.Background(), msg)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Len(t, stub.bodies, 5)
}

func TestEmailService_SendInvitation(t *testing.T) {
	stub := &sendGridStub{status: http.StatusAccepted}
	svc := newTestService(t, stub)

	err := svc.SendInvitation(context.Background(), "guest@example.com", Invitation{
		InterviewID: "int-42",
		Link:        "http://localhost:5001/interview/int-42",
	})
	require.NoError(t, err)

	require.Len(t, stub.bodies, 1)
	html := stub.bodies[0].Content[1].Value
	assert.Contains(t, html, "http://localhost:5001/interview/int-42")
	assert.Contains(t, html, "mailto:support@example.com")
}
