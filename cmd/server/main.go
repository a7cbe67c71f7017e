package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NolanRink/chatroom/internal/app"
	"github.com/NolanRink/chatroom/internal/config"
	"github.com/NolanRink/chatroom/internal/log"
)

func main() {
	var (
		configPath string
		addr       string
		userFile   string
		logLevel   string
		maxClients int
	)

	root := &cobra.Command{
		Use:           "chatroomd",
		Short:         "Multi-user chat room server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(logLevel)

			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(config.Config{
				Addr:       addr,
				UserFile:   userFile,
				LogLevel:   logLevel,
				MaxClients: maxClients,
			})
			logger = log.New(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().
				Str("addr", cfg.Addr).
				Int("max_clients", cfg.MaxClients).
				Str("config", path).
				Msg("chat room server starting")
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	root.Flags().StringVar(&addr, "addr", "", "TCP listen address (overrides config)")
	root.Flags().StringVar(&userFile, "user-file", "", "credential file path (overrides config)")
	root.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.Flags().IntVar(&maxClients, "max-clients", 0, "max concurrent connections (overrides config)")

	if err := root.Execute(); err != nil {
		log.New("error").Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}
