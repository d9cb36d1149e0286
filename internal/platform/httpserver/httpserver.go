// Package httpserver builds the process's single http.Server.
package httpserver

import (
	"net/http"

	"lms/internal/platform/config"
)

const maxHeaderBytes = 64 << 10

// New serves handler on addr. Idle websocket connections are closed by the
// realtime transport, not by the server.
func New(addr string, cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
}
