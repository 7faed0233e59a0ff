package spi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"spi-dashboard/internal/llm"
	"spi-dashboard/internal/modules/spi/chat"
	"spi-dashboard/internal/modules/spi/controller"
	"spi-dashboard/internal/modules/spi/query"
	"spi-dashboard/internal/modules/spi/repository"
	"spi-dashboard/internal/modules/spi/session"
)

// RegisterFeature wires the dashboard routes. A nil subscriber leaves live
// ingest off. ctx bounds the writes of live readings.
func RegisterFeature(ctx context.Context, mux *http.ServeMux, db *sql.DB, model llm.Client, sessions *session.Manager, opts controller.Options, subscriber MQTTSubscriber) {
	spiRepository := repository.NewRepository(db)
	chatService := chat.NewService(model, query.NewExecutor(spiRepository))
	spiController := controller.NewSPIController(chatService, spiRepository, sessions, opts)
	spiController.RegisterRoutes(mux)

	if subscriber != nil {
		registerMQTTHandler(ctx, subscriber, spiRepository, slog.Default())
	}
}
