package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"toonbot/internal/fetch"
	"toonbot/internal/http/handlers"
	"toonbot/internal/http/httpapi"
	"toonbot/internal/infra"
	"toonbot/internal/pipeline"
	"toonbot/internal/session"
	"toonbot/internal/storage"
	"toonbot/internal/telegram"
	"toonbot/internal/toonapi"
)

func main() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "toonbot",
	Short:        "Telegram bot that redraws portrait photos in an anime style",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run starts the bot and the ops endpoint",
	RunE:  doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version prints build information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("toonbot: version info not available")
			return
		}
		fmt.Printf("toonbot: %s\n", info.Main.Version)
		fmt.Printf("go:      %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:  %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:    %s\n", s.Value)
			}
		}
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	// Muat .env (opsional)
	_ = godotenv.Load()

	// Konfigurasi & logger
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Koneksi Bot API
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("connect bot api: %w", err)
	}
	logger.Info().Str("username", bot.Self.UserName).Msg("bot authorized")

	// Penyimpanan artefak debug (opsional)
	var store *storage.FileStore
	if cfg.KeepFiles {
		storagePath := cfg.StoragePath
		if !filepath.IsAbs(storagePath) {
			if abs, err := filepath.Abs(storagePath); err == nil {
				storagePath = abs
			}
		}
		store, err = storage.NewFileStore(storagePath)
		if err != nil {
			return fmt.Errorf("configure storage: %w", err)
		}
		logger.Info().Str("path", store.BasePath()).Msg("keeping job artifacts")
	}

	// Rangkai pipeline & transport
	sessions := session.New[int64]()
	messenger := telegram.NewMessenger(bot)
	runs := pipeline.New(pipeline.Options{
		Sessions: sessions,
		Client: toonapi.New(toonapi.Options{
			Endpoint:       cfg.APIEndpoint,
			MaxAttempts:    cfg.SubmitAttempts,
			Backoff:        cfg.SubmitBackoff,
			RatePerSec:     cfg.SubmitRatePerSec,
			RequestTimeout: cfg.SubmitTimeout,
			Logger:         &logger,
		}),
		Fetcher: fetch.New(fetch.Options{
			MaxAttempts:    cfg.FetchAttempts,
			RequestTimeout: cfg.FetchTimeout,
			Logger:         &logger,
		}),
		Messenger: messenger,
		Store:     store,
		Logger:    logger,
	})
	transport := telegram.New(telegram.Options{
		Bot:      bot,
		Runner:   runs,
		Sessions: sessions,
		Logger:   logger,
	})

	// Bangun router ops via package httpapi (sudah ada middleware chi di dalamnya)
	app := handlers.NewApp(sessions, runs.Stats())
	server := infra.NewHTTPServer(":"+cfg.OpsPort, httpapi.NewRouter(app, logger))

	// Start async
	go func() {
		logger.Info().Msgf("ops endpoint listening on :%s", cfg.OpsPort)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("ops endpoint failed")
		}
	}()

	logger.Info().Msg("bot started")
	if err := transport.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("transport stopped with error")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown ops endpoint")
	}
	logger.Info().Msg("bot stopped")
	return nil
}
