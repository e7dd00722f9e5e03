package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/backend"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/database"
	httpapi "github.com/Rifqin-11/PosyanduKlitikan/internal/http"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/service"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// sessionKeyPrefix 浏览器会话在 KV 中的 key 前缀
const sessionKeyPrefix = "posyandu:session:"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP backend for the browser UI",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, "posyandu-bff")
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	var kv store.KV
	var redisClient *redis.Client
	if a.cfg.Session.Store == "memory" {
		kv = store.NewMemoryKV()
		logger.Warn("Using in-memory session store, sessions are lost on restart")
	} else {
		redisClient, err = database.NewRedisClient(ctx, a.cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		kv = store.NewRedisKV(redisClient)
	}

	factory := func(sid string) httpapi.AuthSlot {
		return backend.NewAuthSession(a.client, kv, sessionKeyPrefix+sid, a.cfg.Session.TTL, logger)
	}
	secure := strings.HasPrefix(a.cfg.SiteURL, "https://")
	sessions := httpapi.NewSessions(factory, a.cfg.Session.TTL, secure, logger)

	router := httpapi.NewRouter(logger)
	router.RegisterHealthRoutes()
	router.RegisterAuthRoutes(httpapi.NewAuthHandler(a.auth, sessions, logger))
	router.RegisterParticipantRoutes(httpapi.NewParticipantHandler(a.participantS, sessions, logger))

	srv := service.NewServer(a.cfg.HTTP.Addr, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		cancel()
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("HTTP server failed", zap.Error(serveErr))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	return serveErr
}
