package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"content_draft_generator/config"
	"content_draft_generator/generator"
	"content_draft_generator/logger"
	"content_draft_generator/metrics"
	"content_draft_generator/server"
	"content_draft_generator/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI and JSON API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := metrics.New()
		rt, err := loadRuntime(ctx, cmd, generator.WithHooks(m.Hooks()))
		if err != nil {
			return err
		}
		defer rt.log.Sync()

		st, closeStore, err := openStore(ctx, rt.cfg.Session, rt.log)
		if err != nil {
			return err
		}
		defer closeStore()

		srv, err := server.New(rt.agent, server.Options{
			Store:          st,
			Metrics:        m,
			Logger:         rt.log,
			RequestTimeout: rt.cfg.Server.RequestTimeout.Std(),
			MaxConcurrent:  rt.cfg.Server.MaxConcurrent,
			Completion:     rt.cfg.CompletionOptions(),
			ReverseThread:  rt.cfg.Server.ReverseThread,
		})
		if err != nil {
			return err
		}

		addr := rt.cfg.Server.Addr
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			addr = v
		}
		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			rt.log.Info("starting web server", "addr", addr, "provider", rt.cfg.LLM.Provider, "store", rt.cfg.Session.Store)
			serverErrors <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			rt.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				rt.log.Warn("graceful shutdown incomplete", "error", err)
				return httpSrv.Close()
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
}

// openStore builds the session store named in the config.
func openStore(ctx context.Context, cfg config.SessionConfig, log *logger.Logger) (store.Store, func(), error) {
	switch cfg.Store {
	case config.StoreRedis:
		rs := store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			store.WithTTL(cfg.TTL.Std()),
			store.WithPrefix(cfg.Redis.Prefix),
		)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		log.Info("session store ready", "backend", "redis", "addr", cfg.Redis.Addr)
		return rs, func() { _ = rs.Close() }, nil
	default:
		log.Info("session store ready", "backend", "memory", "ttl", cfg.TTL.Std())
		return store.NewMemory(cfg.TTL.Std()), func() {}, nil
	}
}
