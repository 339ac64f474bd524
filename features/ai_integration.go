package features

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/thuinanutshell/ux-interviewer/api"
	"github.com/thuinanutshell/ux-interviewer/config"
)

// AIProvider describes one AI backend without exposing its key.
type AIProvider struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
}

// AIIntegration reports which AI providers the deployment can use.
type AIIntegration struct {
	providers []AIProvider
}

// NewAIIntegration snapshots provider availability from cfg.
func NewAIIntegration(cfg *config.Config) *AIIntegration {
	return &AIIntegration{providers: []AIProvider{
		{Name: "openai", Configured: config.Value(cfg.OpenAIAPIKey) != ""},
		{Name: "gemini", Configured: config.Value(cfg.GeminiAPIKey) != ""},
	}}
}

func (m *AIIntegration) Name() string   { return "ai_integration" }
func (m *AIIntegration) Prefix() string { return "/ai_integration" }

func (m *AIIntegration) Routes(r *mux.Router) {
	r.HandleFunc("", m.status).Methods(http.MethodGet)
	r.HandleFunc("/", m.status).Methods(http.MethodGet)
	r.HandleFunc("/providers", m.listProviders).Methods(http.MethodGet)
}

func (m *AIIntegration) available() bool {
	for _, p := range m.providers {
		if p.Configured {
			return true
		}
	}
	return false
}

func (m *AIIntegration) status(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !m.available() {
		status = "unconfigured"
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"service": m.Name(), "status": status})
}

func (m *AIIntegration) listProviders(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"providers": m.providers})
}
