package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/chatfetch/internal/config"
	"github.com/matheus3301/chatfetch/internal/daemon"
	"github.com/matheus3301/chatfetch/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.chatfetch/config.toml)")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = session.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config %s: %v\n", configPath, err)
		os.Exit(1)
	}

	sessionName := *sessionFlag
	if sessionName == "" {
		sessionName = os.Getenv(session.EnvSession)
	}
	if sessionName == "" {
		sessionName = cfg.DefaultSession
	}
	if sessionName == "" {
		sessionName = session.DefaultSessionName
	}
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: sessionName, Config: cfg}),
	)

	app.Run()
}
