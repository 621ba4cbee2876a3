package httpserver

import (
	"net/http"
	"time"
)

// New builds the registry API server. Handler-level timeouts are tighter; the
// server limits exist so a stalled client cannot pin a connection forever.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
