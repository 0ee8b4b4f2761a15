package server

import (
	"fmt"
	"net/http"
)

const DefaultPort = 8080

type Config struct {
	Port int
}

type Handler struct {
	config *Config
}

func NewHandler(config *Config) *Handler {
	return &Handler{config: config}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "listening on %d", h.config.Port)
}
