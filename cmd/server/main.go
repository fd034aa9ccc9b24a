// Command server serves the tic-tac-toe web UI and JSON API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jaminalder/tictactoe-bot/internal/app"
	"github.com/jaminalder/tictactoe-bot/internal/bot"
	"github.com/jaminalder/tictactoe-bot/internal/config"
	"github.com/jaminalder/tictactoe-bot/internal/store"
	"github.com/jaminalder/tictactoe-bot/internal/web"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg.Log)

	matches, err := openStore(cfg.StorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("open match store")
	}

	var player *bot.Player
	if cfg.Seed != 0 {
		player = bot.NewSeededPlayer(cfg.Seed)
	} else {
		player = bot.NewPlayer(nil)
	}
	svc := app.NewService(
		app.WithDelay(cfg.BotDelay),
		app.WithMover(player),
		app.WithRecorder(matches),
		app.WithRecordTimeout(cfg.RecordTimeout),
	)
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go svc.RunJanitor(janitorCtx, time.Minute, cfg.GameTTL)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.NewServer(svc, matches),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	log.Info().Str("addr", cfg.Addr).Dur("bot_delay", cfg.BotDelay).Dur("game_ttl", cfg.GameTTL).Msg("listening")
	var runErr error
	select {
	case <-sigCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err, ok := <-serverErrCh:
		if ok {
			runErr = err
			log.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("graceful shutdown failed")
		if closeErr := server.Close(); closeErr != nil && !errors.Is(closeErr, http.ErrServerClosed) {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}
	stopJanitor()
	// Pending bot moves are dropped; in-flight recordings finish.
	svc.Close()
	if runErr != nil {
		os.Exit(1)
	}
}

func setupLogging(c config.Log) {
	lvl, err := c.ZerologLevel()
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if c.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

func openStore(path string) (*store.Store, error) {
	if path == "" {
		return store.NewMemory(), nil
	}
	return store.Open(path)
}
