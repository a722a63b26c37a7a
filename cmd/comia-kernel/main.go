package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MickaelSuard/ComiaV2/internal/adapters/assist"
	"github.com/MickaelSuard/ComiaV2/internal/adapters/badgerkv"
	"github.com/MickaelSuard/ComiaV2/internal/adapters/duckdb"
	appconfig "github.com/MickaelSuard/ComiaV2/internal/config"
	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/engine"
	"github.com/MickaelSuard/ComiaV2/internal/core/services"
	"github.com/MickaelSuard/ComiaV2/pkg/kernel"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting comia kernel")

	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if err := run(logger, *configPath); err != nil {
		logger.Error("kernel startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	cfg, err := appconfig.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	kv, err := badgerkv.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open data store: %w", err)
	}
	defer kv.Close()

	// The activity journal is best-effort: without it the kernel still
	// serves, the dashboard just loses its history.
	var journal services.ActivityJournal
	repo, err := duckdb.NewRepository(cfg.ActivityDB)
	if err != nil {
		logger.Error("activity journal unavailable", "error", err)
	} else {
		journal = repo
		defer repo.Close()
	}

	secretKey, err := appconfig.NewSecretKey()
	if err != nil {
		return fmt.Errorf("failed to init secret key: %w", err)
	}
	settingsStore, err := appconfig.NewSettingsStore(logger, kv, secretKey)
	if err != nil {
		return fmt.Errorf("failed to init settings store: %w", err)
	}

	backends, err := assist.Build(settingsStore.GetConfig())
	if err != nil {
		return fmt.Errorf("failed to build backends from config: %w", err)
	}

	eventBus := services.NewEventBus(logger)
	recorder := services.NewActivityRecorder(logger, journal)
	ctrlCfg := engine.ControllerConfig{
		MaxInFlight: cfg.Jobs.MaxInFlight,
		Timeout:     cfg.Jobs.Timeout,
	}

	chatSvc, err := services.NewChatService(logger, kv, eventBus, recorder, backends.Chat, ctrlCfg)
	if err != nil {
		return fmt.Errorf("failed to init chat service: %w", err)
	}
	transcriptionSvc, err := services.NewTranscriptionService(logger, kv, eventBus, recorder, backends.Transcription, ctrlCfg)
	if err != nil {
		return fmt.Errorf("failed to init transcription service: %w", err)
	}
	knowledgeSvc, err := services.NewKnowledgeService(logger, kv, eventBus, recorder, backends.Search, ctrlCfg)
	if err != nil {
		return fmt.Errorf("failed to init knowledge service: %w", err)
	}
	documentSvc, err := services.NewDocumentService(logger, kv, eventBus, recorder, backends.Summary, ctrlCfg)
	if err != nil {
		return fmt.Errorf("failed to init document service: %w", err)
	}

	stats := services.NewStatsService(logger, journal)
	stats.RegisterCounter(domain.ModuleChat, chatSvc.Len)
	stats.RegisterCounter(domain.ModuleTranscription, transcriptionSvc.Len)
	stats.RegisterCounter(domain.ModuleKnowledge, knowledgeSvc.Len)
	stats.RegisterCounter(domain.ModuleDocumentation, documentSvc.Len)

	// Hot-reload: settings changes rebuild the backends and swap them into
	// every service without restarting in-flight jobs.
	settingsStore.OnChange(func(updated *domain.AppConfig) {
		rebuilt, err := assist.Build(updated)
		if err != nil {
			logger.Error("failed to rebuild backends on settings change", "error", err)
			return
		}
		chatSvc.UpdateBackend(rebuilt.Chat)
		transcriptionSvc.UpdateBackend(rebuilt.Transcription)
		knowledgeSvc.UpdateBackend(rebuilt.Search)
		documentSvc.UpdateBackend(rebuilt.Summary)
		logger.Info("backends hot-reloaded from settings change")
	})

	apiServer := kernel.NewServer(logger, chatSvc, transcriptionSvc, knowledgeSvc, documentSvc, stats, settingsStore, eventBus)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: apiServer.Routes(),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api server", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		err := httpServer.Shutdown(shutdownCtx)

		chatSvc.Shutdown()
		transcriptionSvc.Shutdown()
		knowledgeSvc.Shutdown()
		documentSvc.Shutdown()
		return err
	})

	return g.Wait()
}
