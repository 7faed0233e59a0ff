package spi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"spi-dashboard/internal/modules/spi/loader"
	"spi-dashboard/internal/modules/spi/repository"
	"spi-dashboard/internal/modules/spi/types"
)

// MQTTSubscriber interface for attaching message handlers
type MQTTSubscriber interface {
	SetMessageHandler(handler func(reading types.Reading) error)
}

// ImportDataset replaces the base dataset with the CSV at path and returns
// the number of rows loaded. A missing file is tolerated when an earlier
// import already populated the database.
func ImportDataset(ctx context.Context, db *sql.DB, path string) (int, error) {
	repo := repository.NewRepository(db)
	readings, err := loader.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		last, ok, lastErr := repo.LastLoad(ctx)
		if lastErr != nil {
			return 0, fmt.Errorf("check previous load: %w", lastErr)
		}
		if !ok {
			return 0, fmt.Errorf("dataset %s: %w", path, err)
		}
		slog.Warn("dataset file missing, keeping previous load",
			"path", path,
			"loaded_from", last.Source,
			"rows", last.RowCount,
		)
		return last.RowCount, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load dataset: %w", err)
	}

	start := time.Now()
	if err := repo.ReplaceAll(ctx, path, readings); err != nil {
		return 0, err
	}
	slog.Info("dataset loaded", "path", path, "rows", len(readings), "took", time.Since(start))
	return len(readings), nil
}

// NewDatasetWatcher reloads the base dataset whenever the CSV changes.
// Sessions keep their active tables.
func NewDatasetWatcher(db *sql.DB, path string) (*loader.Watcher, error) {
	return loader.NewWatcher(path, func(ctx context.Context, p string) {
		if _, err := ImportDataset(ctx, db, p); err != nil {
			slog.Error("dataset reload failed", "path", p, "error", err)
		}
	})
}

// registerMQTTHandler appends each live reading to the base dataset.
func registerMQTTHandler(ctx context.Context, subscriber MQTTSubscriber, repo repository.SPIRepository, logger *slog.Logger) {
	subscriber.SetMessageHandler(func(reading types.Reading) error {
		logger.Debug("processing reading message",
			"station_id", reading.StationID,
			"time", reading.Time,
		)

		if err := repo.Append(ctx, reading); err != nil {
			logger.Error("failed to append reading",
				"station_id", reading.StationID,
				"error", err,
			)
			return err
		}
		return nil
	})
}
