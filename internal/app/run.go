package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"spi-dashboard/internal/config"
	"spi-dashboard/internal/db"
	"spi-dashboard/internal/httpapi"
	"spi-dashboard/internal/llm"
	"spi-dashboard/internal/migrate"
	"spi-dashboard/internal/modules/spi"
	"spi-dashboard/internal/modules/spi/controller"
	"spi-dashboard/internal/modules/spi/mapconfig"
	"spi-dashboard/internal/modules/spi/session"
	spiviews "spi-dashboard/internal/modules/spi/views"
	"spi-dashboard/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"datasetPath", cfg.DatasetPath,
		"datasetWatch", cfg.DatasetWatch,
		"dbDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"dbConnMaxLifetime", cfg.ConnMaxLifetime,
		"llmProvider", cfg.LLMProvider,
		"llmModel", cfg.LLMModel,
		"llmKeySet", cfg.LLMAPIKey != "",
		"llmTimeout", cfg.LLMTimeout,
		"sessionIdleTimeout", cfg.SessionIdleTimeout,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
	)
	dbConn, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn); err != nil {
		return err
	}
	slog.Info("database ready")

	if _, err := spi.ImportDataset(ctx, dbConn, cfg.DatasetPath); err != nil {
		return err
	}

	if err := spiviews.LoadTemplates(); err != nil {
		return err
	}
	mapCfg, err := mapconfig.Load(cfg.MapConfigPath)
	if err != nil {
		return err
	}
	model, err := llm.New(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.LLMAPIKey == "" {
		slog.Warn("LLM_API_KEY not set, chat requests will fail until it is configured")
	}
	sessions, err := session.NewManager(cfg.SessionSecret, cfg.SessionIdleTimeout, cfg.AppEnv == "prod")
	if err != nil {
		return err
	}

	// The handler must be set before Connect: the broker may deliver as soon as
	// the subscription from the connect handler is in place.
	var subscriber *mqtt.Subscriber
	var featureSub spi.MQTTSubscriber
	if cfg.MQTTEnabled() {
		subscriber = mqtt.NewSubscriber(cfg, slog.Default())
		featureSub = subscriber
	}

	mux := httpapi.NewMux(dbConn, cfg.StaticDir)
	spi.RegisterFeature(ctx, mux, dbConn, model, sessions, controller.Options{
		Title:     cfg.DatasetTitle,
		MapConfig: mapCfg,
	}, featureSub)

	bgCtx, stopBackground := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		stopBackground()
		wg.Wait()
	}()

	wg.Go(func() { sessions.Run(bgCtx) })

	if cfg.DatasetWatch {
		watcher, err := spi.NewDatasetWatcher(dbConn, cfg.DatasetPath)
		if err != nil {
			return err
		}
		wg.Go(func() { watcher.Run(bgCtx) })
		slog.Info("watching dataset for changes", "path", cfg.DatasetPath)
	}

	if subscriber != nil {
		// Short timeout so a broker outage does not block startup.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without live ingest)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if subscriber != nil {
		slog.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
