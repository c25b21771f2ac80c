package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/chatsignal/internal/adapters/http"
	"github.com/dkeye/chatsignal/internal/adapters/rtc"
	"github.com/dkeye/chatsignal/internal/app"
	"github.com/dkeye/chatsignal/internal/app/call"
	"github.com/dkeye/chatsignal/internal/app/orch"
	"github.com/dkeye/chatsignal/internal/config"
	"github.com/dkeye/chatsignal/internal/core"
)

func main() {
	root := &cobra.Command{
		Use:           "chatsignal",
		Short:         "Chat presence, message relay and WebRTC call signaling server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().String("env", "", "config environment, reads config/config.<env>.yaml (default dev)")
	root.Flags().Int("port", 8080, "listen port")
	root.Flags().String("mode", "release", "gin mode: debug, release or test")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("chatsignal")
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg)

	policy, err := app.PolicyByName(cfg.Policy)
	if err != nil {
		return err
	}

	rooms := core.NewRoomManager()
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(rooms),
		Rooms:    rooms,
		Calls:    call.NewSessions(cfg.Call.CandidateQueueLimit),
		Policy:   policy,
		Checker:  rtc.Validator{Strict: cfg.Call.StrictSDP},
		Options: orch.Options{
			TypingExcludeSender: cfg.Relay.TypingExcludeSender,
			NotifyCallFailure:   cfg.Call.NotifyFailure,
		},
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("chatsignal server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
