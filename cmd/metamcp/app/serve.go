package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/metamcp/metamcp/pkg/api"
	"github.com/metamcp/metamcp/pkg/auth"
	"github.com/metamcp/metamcp/pkg/config"
	"github.com/metamcp/metamcp/pkg/gateway"
	"github.com/metamcp/metamcp/pkg/logger"
	"github.com/metamcp/metamcp/pkg/process"
	"github.com/metamcp/metamcp/pkg/proxy"
	"github.com/metamcp/metamcp/pkg/store"
	"github.com/metamcp/metamcp/pkg/streaming"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	events := streaming.NewManager()
	procs := process.NewManager(events)
	defer procs.Shutdown()

	authService := auth.NewService(
		st.APIKeys,
		auth.NewEncryptor(cfg.EncryptionKey),
		auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL),
	)
	engine := gateway.NewEngine(st.Servers, proxy.NewClient(), events)

	go procs.Supervise(ctx)
	go streaming.NewHealthPublisher(events, procs).Run(ctx)

	logger.Infow("starting metamcp gateway", "address", cfg.Address())
	return api.Serve(ctx, api.Deps{
		Config:  cfg,
		Auth:    authService,
		Servers: st.Servers,
		Engine:  engine,
		Events:  events,
	})
}
