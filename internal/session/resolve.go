package session

import (
	"os"

	"github.com/matheus3301/chatfetch/internal/config"
)

const DefaultSessionName = "main"

// EnvSession names the session when no --session flag is given.
const EnvSession = "CHATFETCH_SESSION"

// Resolve picks the active session: the --session flag, then
// $CHATFETCH_SESSION, then default_session from config.toml, then "main".
// A config file that cannot be read is treated as absent.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if name := os.Getenv(EnvSession); name != "" {
		return name
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
