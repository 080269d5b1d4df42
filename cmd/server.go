package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/kisan-mitra/internal/conversation"
	"github.com/ziadkadry99/kisan-mitra/internal/server"
)

const shutdownTimeout = 15 * time.Second

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the farmer query HTTP and WebSocket server",
	Long: `Starts the HTTP server exposing /farmer_query/chat, session history,
session listing, stored facts and a streaming WebSocket chat endpoint, plus
/healthz and Prometheus /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serverPort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctx, logger, closeLog := newLogger(ctx, cfg)
		defer closeLog()

		st, err := buildStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		srv := server.New(server.Config{
			Port:           cfg.Server.Port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}, st.db, st.metrics, logger)
		conversation.RegisterRoutes(srv.Router(), st.engine, st.history)

		logger.Info().
			Str("version", Version).
			Str("provider", string(cfg.Provider)).
			Str("model", cfg.Model).
			Str("vector_backend", string(cfg.Vector.Backend)).
			Str("history_driver", string(cfg.History.Driver)).
			Msg("kisan server starting")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 8000, "port to listen on (overrides server.port)")
	rootCmd.AddCommand(serverCmd)
}
