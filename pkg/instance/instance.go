package instance

import (
	"os"

	"github.com/angelmondragon/pos-agent/pkg/env"
)

// GetID returns the terminal identifier: the configured id, then the
// container or host name, then a fixed default.
func GetID() string {
	if id := env.First("", "POS_TERMINAL_ID", "HOSTNAME"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "terminal-0"
}
