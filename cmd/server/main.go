package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/npezzotti/chat-backend/internal/api"
	"github.com/npezzotti/chat-backend/internal/config"
	"github.com/npezzotti/chat-backend/internal/database"
	"github.com/npezzotti/chat-backend/internal/logging"
	"github.com/npezzotti/chat-backend/internal/server"
	"github.com/npezzotti/chat-backend/internal/stats"
	"github.com/spf13/pflag"
)

const statsName = "gochat-stats"

func loadConfig() (*config.Config, error) {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	v, err := config.NewViper(fs)
	if err != nil {
		return nil, err
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	configFile, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}

	if err := config.ReadFile(v, configFile); err != nil {
		return nil, err
	}

	return config.Load(v)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, cfg.DatabaseName)
	if err != nil {
		logger.Fatalw("db open", "driver", cfg.DatabaseDriver, "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Errorw("db close", "error", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Publish(statsName)

	chatServer, err := server.NewChatServer(logger.Named("gateway"), statsUpdater, cfg.RateLimit)
	if err != nil {
		logger.Fatalw("new chat server", "error", err)
	}

	srv := api.NewGoChatApp(mux, logger.Named("api"), chatServer, db, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Infow("received signal", "signal", sig.String())
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("server", "error", err)
		}
	}

	shutDownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Errorw("HTTP server shutdown", "error", err)
	}

	logger.Info("shutting down chat server")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Errorw("chat server shutdown", "error", err)
	}

	logger.Info("shutdown complete")
}
