package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitline/pitline/console"
	"github.com/pitline/pitline/internal/auth"
	"github.com/pitline/pitline/internal/eventbus"
	"github.com/pitline/pitline/sshserver"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the copilot console over SSH",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			authStore, err := auth.NewStoreWithLogger(rt.cfg.Auth.UserFile, rt.cfg.Auth.SeedUsers, logger)
			if err != nil {
				return err
			}
			bus := eventbus.New(logger)

			server := &sshserver.Server{
				Addr:        rt.cfg.SSH.Addr,
				HostKeyPath: rt.cfg.SSH.HostKeyPath,
				AuthStore:   authStore,
				EventBus:    bus,
				NewSession: func(sessCtx context.Context, cfg console.Config) (*console.Session, error) {
					built := rt.sessionConfig(sessCtx, cfg.UserID)
					built.Output = cfg.Output
					built.Chunks = cfg.Chunks
					built.Resize = cfg.Resize
					built.Events = cfg.Events
					return console.NewSession(built), nil
				},
			}

			// Give open sessions a moment to render the shutdown notice
			// before the listener closes their connections.
			serveCtx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() {
				<-ctx.Done()
				bus.Shutdown("server shutting down")
				time.Sleep(time.Second)
				cancel()
			}()

			logger.Info("ssh server listening", "addr", rt.cfg.SSH.Addr)
			return server.ListenAndServe(serveCtx)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
