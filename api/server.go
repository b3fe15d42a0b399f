package api

import (
	"net/http"
	"time"

	"github.com/angelmondragon/pos-agent/pkg/config"
)

// NewServer wraps the local API handler. WriteTimeout leaves room for a
// mobile-money push, which waits on the customer's phone.
func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
}
