package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NolanRink/chatroom/internal/config"
	"github.com/NolanRink/chatroom/internal/core"
	"github.com/NolanRink/chatroom/internal/credstore"
	"github.com/NolanRink/chatroom/internal/transport/tcp"
)

// App wires the credential store, chat core, and TCP transport.
type App struct {
	server *tcp.Server
	users  *credstore.Store
	log    *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	users, err := credstore.Open(cfg.UserFile)
	if err != nil {
		return nil, fmt.Errorf("init credential store: %w", err)
	}
	logger.Info().
		Str("user_file", cfg.UserFile).
		Int("accounts", users.Len()).
		Msg("credential store loaded")

	registry := core.NewRegistry()
	router := core.NewRouter(registry, logger)
	processor := core.NewProcessor(users, registry, router, logger)
	server := tcp.NewServer(processor, cfg, logger)

	return &App{
		server: server,
		users:  users,
		log:    logger,
	}, nil
}

// Run serves until context cancellation or a fatal listener error.
func (a *App) Run(ctx context.Context) error {
	return a.server.ListenAndServe(ctx)
}
