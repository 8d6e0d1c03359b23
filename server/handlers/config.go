package handlers

import (
	"net/http"
)

// ConfigHandler serves the current configuration as YAML. Values that came
// from the environment are shown as ${NAME} references and URL credentials
// are masked.
type ConfigHandler struct {
	provider ConfigProvider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(provider ConfigProvider) *ConfigHandler {
	return &ConfigHandler{provider: provider}
}

// ServeHTTP implements http.Handler.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeYAML(w, http.StatusOK, h.provider.Config().Redacted())
}
