package controller

import (
	"context"
	"net/http"

	"spi-dashboard/internal/modules/spi/chat"
	"spi-dashboard/internal/modules/spi/mapconfig"
	"spi-dashboard/internal/modules/spi/session"
	"spi-dashboard/internal/modules/spi/types"
)

// DefaultGuidance lists the example questions shown next to the chat.
var DefaultGuidance = []string{
	"What is the average SPI for Jarash?",
	"Show entire table",
	"What is the altitude of Salt?",
	"Aggregate precipitation across all stations in Amman",
	"Show dynamics of SPI in Jarash",
	"Create a chart of dynamics of SPI in Jarash",
}

type StationLister interface {
	Stations(ctx context.Context) ([]types.Station, error)
}

type Options struct {
	Title     string
	MapConfig mapconfig.Config
	Guidance  []string
}

type SPIController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type spiControllerImpl struct {
	chat     chat.Service
	stations StationLister
	sessions *session.Manager
	opts     Options
}

func NewSPIController(svc chat.Service, stations StationLister, sessions *session.Manager, opts Options) SPIController {
	if opts.Guidance == nil {
		opts.Guidance = DefaultGuidance
	}
	return &spiControllerImpl{chat: svc, stations: stations, sessions: sessions, opts: opts}
}

func (c *spiControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	withSession := func(h http.HandlerFunc) http.Handler { return c.sessions.Middleware(h) }

	mux.Handle("GET /{$}", withSession(c.handleDashboard))
	mux.Handle("POST /chat", withSession(c.handleChat))
	mux.Handle("GET /partials/chat", withSession(c.handleChatPartial))
	mux.Handle("GET /partials/table", withSession(c.handleTablePartial))

	mux.Handle("GET /api/v1/table", withSession(c.handleTable))
	mux.Handle("GET /api/v1/table.geojson", withSession(c.handleTableGeoJSON))
	mux.Handle("GET /api/v1/transcript", withSession(c.handleTranscript))
	mux.Handle("POST /api/v1/chat", withSession(c.handleChatAPI))
	mux.HandleFunc("GET /api/v1/stations", c.handleStations)
	mux.HandleFunc("GET /api/v1/map-config", c.handleMapConfig)
}
