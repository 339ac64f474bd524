package features

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/thuinanutshell/ux-interviewer/api"
)

// Status is a module whose surface is a single status document.
type Status struct {
	name        string
	prefix      string
	description string
}

// NewStatus creates a status-only module.
func NewStatus(name, prefix, description string) *Status {
	return &Status{name: name, prefix: prefix, description: description}
}

func (m *Status) Name() string   { return m.name }
func (m *Status) Prefix() string { return m.prefix }

func (m *Status) Routes(r *mux.Router) {
	r.HandleFunc("", m.status).Methods(http.MethodGet)
	r.HandleFunc("/", m.status).Methods(http.MethodGet)
}

func (m *Status) status(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{
		"service":     m.name,
		"description": m.description,
		"status":      "ok",
	})
}
