package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Terminal Configuration

[engine]
# Evaluate risk-enabled legs on this cadence
interval = "1s"
# Upper bound on legs evaluated concurrently per tick
max_concurrency = 16
# Start with the engine evaluating (false = paused)
enabled = true
# Global kill switch: suppress all automatic triggers
kill_switch = false

[executor]
# Per-instance broker call timeout
call_timeout = "10s"
# Default product type when a request carries none: MIS, CNC, NRML
default_product = "NRML"
# Retry attempts for quote and chain reads (orders are never retried)
retry_attempts = 2

[store]
# db_path = "~/.config/options-terminal/terminal.db"

[logging]
level = "info"
console = true
file = true
max_size = 100
max_backups = 7
max_age = 30

# One section per broker instance. The key must match the instance ID in
# the store.
# [brokers.primary]
# kind = "kite"
# api_key = ""
# api_secret = ""
#
# [brokers.shadow]
# kind = "paper"
`

// WriteTemplate writes the default config.toml into configDir. It refuses
// to overwrite an existing file.
func WriteTemplate(configDir string) (string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}
	return path, nil
}
