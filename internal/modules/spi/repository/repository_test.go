package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"

	"spi-dashboard/internal/migrate"
	"spi-dashboard/internal/modules/spi/types"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("close db: %v", closeErr)
		}
	})
	if err := migrate.Run(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func ptr(v float64) *float64 { return &v }

var sample = []types.Reading{
	{Code: "AL0001", StationID: "1", JMDCode: "AL0001", StationName: "Jarash", AltitudeM: ptr(575), Latitude: 32.28, Longitude: 35.88, Time: "1981-01", SPI: ptr(0.5)},
	{Code: "AL0001", StationID: "1", JMDCode: "AL0001", StationName: "Jarash", AltitudeM: ptr(575), Latitude: 32.28, Longitude: 35.88, Time: "1981-02", SPI: ptr(-0.25)},
	{Code: "AM0002", StationID: "2", StationName: "Amman Airport", Latitude: 31.98, Longitude: 35.98, Time: "1981-01"},
}

func TestReplaceAll(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	if err := repo.ReplaceAll(ctx, "first.csv", sample); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if err := repo.ReplaceAll(ctx, "second.csv", sample[:2]); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d; want 2", n)
	}

	load, ok, err := repo.LastLoad(ctx)
	if err != nil || !ok {
		t.Fatalf("LastLoad = %v, %v", ok, err)
	}
	if load.Source != "second.csv" || load.RowCount != 2 {
		t.Errorf("LastLoad = %+v", load)
	}
	if load.LoadedAt.IsZero() {
		t.Error("LoadedAt is zero")
	}

	tbl, err := repo.Query(ctx, `SELECT row_id FROM readings ORDER BY row_id`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := [][]any{{int64(1)}, {int64(2)}}
	if diff := cmp.Diff(want, tbl.Rows); diff != "" {
		t.Errorf("row ids mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaceAll_rollsBackOnCancel(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	if err := repo.ReplaceAll(context.Background(), "a.csv", sample); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := repo.ReplaceAll(ctx, "b.csv", sample[:1]); err == nil {
		t.Fatal("ReplaceAll with cancelled context = nil error")
	}

	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != len(sample) {
		t.Errorf("Count = %d; want %d after failed replace", n, len(sample))
	}
}

func TestLastLoad_empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	_, ok, err := repo.LastLoad(context.Background())
	if err != nil {
		t.Fatalf("LastLoad: %v", err)
	}
	if ok {
		t.Error("LastLoad ok = true on empty database")
	}
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))
	if err := repo.ReplaceAll(ctx, "a.csv", sample); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if err := repo.Append(ctx, types.Reading{Code: "SA0009", StationID: "9", StationName: "Salt", Latitude: 32.03, Longitude: 35.73, Time: "1981-03", SPI: ptr(1.1)}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	tbl, err := repo.Query(ctx, `SELECT row_id, station_name, jmd_code, spi FROM readings ORDER BY row_id DESC LIMIT 1`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := types.Table{
		Columns: []string{"row_id", "station_name", "jmd_code", "spi"},
		Rows:    [][]any{{int64(4), "Salt", nil, 1.1}},
	}
	if diff := cmp.Diff(want, tbl); diff != "" {
		t.Errorf("appended row mismatch (-want +got):\n%s", diff)
	}
}

func TestStations(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))
	if err := repo.ReplaceAll(ctx, "a.csv", sample); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	got, err := repo.Stations(ctx)
	if err != nil {
		t.Fatalf("Stations: %v", err)
	}
	want := []types.Station{
		{StationID: "2", Name: "Amman Airport", Latitude: 31.98, Longitude: 35.98, ReadingsCnt: 1},
		{StationID: "1", Name: "Jarash", Latitude: 32.28, Longitude: 35.88, ReadingsCnt: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Stations mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_emptyResultHasColumns(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	tbl, err := repo.Query(context.Background(), `SELECT code, spi FROM readings WHERE station_name = ?`, "Nowhere")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if diff := cmp.Diff([]string{"code", "spi"}, tbl.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len = %d; want 0", tbl.Len())
	}
}

func TestNormalizeCell(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{in: []byte("x"), want: "x"},
		{in: int(3), want: int64(3)},
		{in: float32(1.5), want: float64(1.5)},
		{in: true, want: int64(1)},
		{in: nil, want: nil},
		{in: "s", want: "s"},
	}
	for _, tt := range tests {
		if got := normalizeCell(tt.in); got != tt.want {
			t.Errorf("normalizeCell(%#v) = %#v; want %#v", tt.in, got, tt.want)
		}
	}
}
