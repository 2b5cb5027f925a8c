package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/misaki-ai/misaki/pkg/audit"
	cachepkg "github.com/misaki-ai/misaki/pkg/cache/sqlite"
	"github.com/misaki-ai/misaki/pkg/config"
	"github.com/misaki-ai/misaki/pkg/handler"
	"github.com/misaki-ai/misaki/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the request router server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			var opts []handler.Option

			if cfg.Audit.Enabled {
				auditor, err := audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit log: %w", err)
				}
				defer func() { _ = auditor.Close() }()
				opts = append(opts, handler.WithAudit(auditor))
			}

			if cfg.Cache.Enabled {
				replies, err := cachepkg.New(cfg.Cache.DBPath, cfg.Cache.TTL)
				if err != nil {
					return fmt.Errorf("init reply cache: %w", err)
				}
				defer func() { _ = replies.Close() }()
				opts = append(opts, handler.WithReplyCache(replies))
			}

			srv := server.New(cfg.Listen, handler.New(opts...))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("starting misaki with config: %s", configPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "misaki.yaml", "path to config file")
	return cmd
}

// loadConfig reads the config file, falling back to defaults when the file
// does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}
