package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spi-dashboard/internal/modules/spi/types"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/delete-readings.sql
var deleteReadingsSQL string

//go:embed sql/count-readings.sql
var countReadingsSQL string

//go:embed sql/get-stations.sql
var getStationsSQL string

//go:embed sql/insert-dataset-load.sql
var insertDatasetLoadSQL string

//go:embed sql/get-last-load.sql
var getLastLoadSQL string

// DatasetLoad records one wholesale replacement of the base dataset.
type DatasetLoad struct {
	Source   string
	RowCount int
	LoadedAt time.Time
}

type SPIRepository interface {
	// ReplaceAll swaps the base dataset for readings in one transaction.
	// Row ids are reassigned 1..n in slice order.
	ReplaceAll(ctx context.Context, source string, readings []types.Reading) error
	// Append adds a reading after the current last row.
	Append(ctx context.Context, r types.Reading) error
	Count(ctx context.Context) (int, error)
	Stations(ctx context.Context) ([]types.Station, error)
	LastLoad(ctx context.Context) (DatasetLoad, bool, error)
	// Query runs a read-only statement and returns its result as a table.
	Query(ctx context.Context, query string, args ...any) (types.Table, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) SPIRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) ReplaceAll(ctx context.Context, source string, readings []types.Reading) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, deleteReadingsSQL); err != nil {
		return fmt.Errorf("clear readings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertReadingSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			slog.Error("close insert statement", "error", err)
		}
	}()

	for i, rd := range readings {
		if _, err := stmt.ExecContext(ctx, insertArgs(int64(i+1), rd)...); err != nil {
			return fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}

	if _, err := tx.ExecContext(ctx, insertDatasetLoadSQL, source, len(readings)); err != nil {
		return fmt.Errorf("record dataset load: %w", err)
	}
	return tx.Commit()
}

func (r *repositoryImpl) Append(ctx context.Context, rd types.Reading) error {
	// A nil row_id lets SQLite assign max(row_id)+1.
	_, err := r.db.ExecContext(ctx, insertReadingSQL, insertArgs(nil, rd)...)
	if err != nil {
		return fmt.Errorf("append reading: %w", err)
	}
	return nil
}

func insertArgs(rowID any, rd types.Reading) []any {
	return []any{
		rowID, rd.Code, rd.StationID, rd.JMDCode, rd.StationName,
		nullable(rd.AltitudeM), rd.Latitude, rd.Longitude, rd.Time, nullable(rd.SPI),
	}
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func (r *repositoryImpl) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countReadingsSQL).Scan(&n)
	return n, err
}

func (r *repositoryImpl) Stations(ctx context.Context) ([]types.Station, error) {
	rows, err := r.db.QueryContext(ctx, getStationsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close stations rows", "error", err)
		}
	}()
	var out []types.Station
	for rows.Next() {
		var s types.Station
		if err := rows.Scan(&s.StationID, &s.Name, &s.Latitude, &s.Longitude, &s.ReadingsCnt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) LastLoad(ctx context.Context) (DatasetLoad, bool, error) {
	var (
		l  DatasetLoad
		ts string
	)
	err := r.db.QueryRowContext(ctx, getLastLoadSQL).Scan(&l.Source, &l.RowCount, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return DatasetLoad{}, false, nil
	}
	if err != nil {
		return DatasetLoad{}, false, err
	}
	l.LoadedAt, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return DatasetLoad{}, false, fmt.Errorf("parse loaded_at %q: %w", ts, err)
	}
	return l, true, nil
}

func (r *repositoryImpl) Query(ctx context.Context, query string, args ...any) (types.Table, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return types.Table{}, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close query rows", "error", err)
		}
	}()

	cols, err := rows.Columns()
	if err != nil {
		return types.Table{}, err
	}
	tbl := types.Table{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return types.Table{}, err
		}
		for i, c := range cells {
			cells[i] = normalizeCell(c)
		}
		tbl.Rows = append(tbl.Rows, cells)
	}
	return tbl, rows.Err()
}

// normalizeCell maps driver values onto string, float64, int64 or nil so
// both SQLite drivers produce identical tables.
func normalizeCell(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
