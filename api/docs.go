package api

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	httpSwagger "github.com/swaggo/http-swagger"
	"gopkg.in/yaml.v3"
)

//go:embed static/swagger.yaml
var swaggerYAML []byte

// ErrInvalidAPIDocument is returned when the OpenAPI document cannot be served
var ErrInvalidAPIDocument = errors.New("invalid API document")

type apiDocument struct {
	OpenAPI string `yaml:"openapi"`
	Info    struct {
		Title   string `yaml:"title"`
		Version string `yaml:"version"`
	} `yaml:"info"`
	Paths map[string]map[string]interface{} `yaml:"paths"`
}

func parseAPIDocument(raw []byte) (*apiDocument, error) {
	var doc apiDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAPIDocument, err)
	}
	if doc.OpenAPI == "" {
		return nil, fmt.Errorf("%w: missing openapi version", ErrInvalidAPIDocument)
	}
	if len(doc.Paths) == 0 {
		return nil, fmt.Errorf("%w: no paths", ErrInvalidAPIDocument)
	}
	return &doc, nil
}

// DocumentedPaths lists the paths described by the served OpenAPI document.
func DocumentedPaths() ([]string, error) {
	doc, err := parseAPIDocument(swaggerYAML)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// setupDocs serves the OpenAPI document at SwaggerFile and the Swagger UI under SwaggerURL.
func (s *Server) setupDocs() {
	uiPath := strings.TrimSuffix(s.config.SwaggerURL, "/")
	if uiPath == "" || s.config.SwaggerFile == "" {
		return
	}
	doc, err := parseAPIDocument(swaggerYAML)
	if err != nil {
		s.logger.Errorw("API documentation disabled", "error", err)
		return
	}

	s.router.HandleFunc(s.config.SwaggerFile, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(swaggerYAML)
	}).Methods(http.MethodGet, http.MethodHead)

	s.router.Handle(uiPath, http.RedirectHandler(uiPath+"/index.html", http.StatusMovedPermanently))
	s.router.PathPrefix(uiPath + "/").Handler(httpSwagger.Handler(httpSwagger.URL(s.config.SwaggerFile)))

	s.logger.Infow("API documentation enabled", "ui", uiPath, "spec", s.config.SwaggerFile, "version", doc.Info.Version)
}

// docsPrefix reports whether prefix collides with the documentation routes.
func (s *Server) docsPrefix(prefix string) bool {
	if ui := strings.TrimSuffix(s.config.SwaggerURL, "/"); ui != "" && ui == prefix {
		return true
	}
	return s.config.SwaggerFile != "" && strings.HasPrefix(s.config.SwaggerFile, prefix+"/")
}
