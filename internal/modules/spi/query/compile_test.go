package query

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"spi-dashboard/internal/modules/spi/types"
)

func intPtr(v int) *int { return &v }

func TestCompile(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
		want Compiled
	}{
		{
			name: "whole dataset",
			plan: Plan{},
			want: Compiled{
				SQL: `SELECT code AS "Code", station_id AS "Station_ID", jmd_code AS "JMD_code", station_name AS "Station_Name", ` +
					`altitude_m AS "Altitude_m", latitude AS "Latitude", longitude AS "Longitude", time AS "Time", spi AS "SPI" ` +
					`FROM readings ORDER BY row_id`,
				Columns: types.Columns,
				Shape:   ShapeTable,
			},
		},
		{
			name: "filter select sort limit",
			plan: Plan{
				Select:  []string{"station_name", "time", "spi"},
				Filters: []Filter{{Column: "STATION_NAME", Op: "EQ", Value: "jarash"}, {Column: "SPI", Op: "lt", Value: json.Number("0")}},
				Sort:    []SortKey{{Column: "time", Desc: true}},
				Limit:   intPtr(10),
			},
			want: Compiled{
				SQL: `SELECT station_name AS "Station_Name", time AS "Time", spi AS "SPI" FROM readings ` +
					`WHERE station_name = ? COLLATE NOCASE AND spi < ? ORDER BY "Time" DESC LIMIT ?`,
				Args:    []any{"jarash", int64(0), int64(10)},
				Columns: []string{"Station_Name", "Time", "SPI"},
				Shape:   ShapeTable,
			},
		},
		{
			name: "group with aggregates",
			plan: Plan{
				GroupBy:    []string{"Station_Name"},
				Aggregates: []Aggregate{{Func: "avg", Column: "spi"}, {Func: "count"}},
				Sort:       []SortKey{{Column: "avg_spi"}},
			},
			want: Compiled{
				SQL: `SELECT station_name AS "Station_Name", AVG(spi) AS "avg_SPI", COUNT(*) AS "count" FROM readings ` +
					`GROUP BY station_name ORDER BY "avg_SPI"`,
				Columns: []string{"Station_Name", "avg_SPI", "count"},
				Shape:   ShapeTable,
			},
		},
		{
			name: "group keeps load order",
			plan: Plan{GroupBy: []string{"Station_Name"}},
			want: Compiled{
				SQL:     `SELECT station_name AS "Station_Name" FROM readings GROUP BY station_name ORDER BY MIN(row_id)`,
				Columns: []string{"Station_Name"},
				Shape:   ShapeTable,
			},
		},
		{
			name: "value of a global aggregate",
			plan: Plan{
				Filters:    []Filter{{Column: "Station_Name", Op: "contains", Value: "jar"}},
				Aggregates: []Aggregate{{Func: "AVG", Column: "SPI", As: "mean"}},
				Result:     "VALUE",
			},
			want: Compiled{
				SQL:     `SELECT AVG(spi) AS "mean" FROM readings WHERE instr(lower(station_name), lower(?)) > 0`,
				Args:    []any{"jar"},
				Columns: []string{"mean"},
				Shape:   ShapeValue,
			},
		},
		{
			name: "in list and null checks",
			plan: Plan{
				Distinct: true,
				Select:   []string{"Station_Name"},
				Filters: []Filter{
					{Column: "Station_ID", Op: "in", Value: []any{"1", json.Number("2")}},
					{Column: "SPI", Op: "ne", Value: nil},
				},
			},
			want: Compiled{
				SQL: `SELECT station_name AS "Station_Name" FROM readings WHERE station_id COLLATE NOCASE IN (?, ?) AND spi IS NOT NULL ` +
					`GROUP BY station_name ORDER BY MIN(row_id)`,
				Args:    []any{"1", int64(2)},
				Columns: []string{"Station_Name"},
				Shape:   ShapeTable,
			},
		},
		{
			name: "numeric in list",
			plan: Plan{Select: []string{"Code"}, Filters: []Filter{{Column: "SPI", Op: "in", Value: []any{json.Number("1"), json.Number("-1.5")}}}},
			want: Compiled{
				SQL:     `SELECT code AS "Code" FROM readings WHERE spi IN (?, ?) ORDER BY row_id`,
				Args:    []any{int64(1), -1.5},
				Columns: []string{"Code"},
				Shape:   ShapeTable,
			},
		},
		{
			name: "distinct with global aggregate",
			plan: Plan{Distinct: true, Aggregates: []Aggregate{{Func: "count"}}},
			want: Compiled{
				SQL:     `SELECT DISTINCT COUNT(*) AS "count" FROM readings`,
				Columns: []string{"count"},
				Shape:   ShapeTable,
			},
		},
		{
			name: "sort by a column that is not selected",
			plan: Plan{Select: []string{"SPI"}, Sort: []SortKey{{Column: "time"}, {Column: "spi", Desc: true}}},
			want: Compiled{
				SQL:     `SELECT spi AS "SPI" FROM readings ORDER BY time, "SPI" DESC`,
				Columns: []string{"SPI"},
				Shape:   ShapeTable,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(tt.plan)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Compile() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompile_invalid(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
	}{
		{name: "unknown column", plan: Plan{Select: []string{"Rainfall"}}},
		{name: "injection in column", plan: Plan{Select: []string{"spi; DROP TABLE readings"}}},
		{name: "unknown op", plan: Plan{Filters: []Filter{{Column: "SPI", Op: "like", Value: "1"}}}},
		{name: "contains number", plan: Plan{Filters: []Filter{{Column: "Code", Op: "contains", Value: json.Number("1")}}}},
		{name: "in empty", plan: Plan{Filters: []Filter{{Column: "Code", Op: "in", Value: []any{}}}}},
		{name: "in scalar", plan: Plan{Filters: []Filter{{Column: "Code", Op: "in", Value: "A"}}}},
		{name: "lt null", plan: Plan{Filters: []Filter{{Column: "SPI", Op: "lt", Value: nil}}}},
		{name: "object value", plan: Plan{Filters: []Filter{{Column: "SPI", Op: "eq", Value: map[string]any{}}}}},
		{name: "unknown aggregate", plan: Plan{Aggregates: []Aggregate{{Func: "median", Column: "SPI"}}}},
		{name: "sum without column", plan: Plan{Aggregates: []Aggregate{{Func: "sum"}}}},
		{name: "bad alias", plan: Plan{Aggregates: []Aggregate{{Func: "count", As: `x" FROM sqlite_master --`}}}},
		{name: "alias shadows column", plan: Plan{Aggregates: []Aggregate{{Func: "max", Column: "SPI", As: "spi"}}}},
		{name: "duplicate alias", plan: Plan{Aggregates: []Aggregate{{Func: "count"}, {Func: "count"}}}},
		{name: "ungrouped select", plan: Plan{GroupBy: []string{"Station_Name"}, Select: []string{"Time"}}},
		{name: "select with global aggregate", plan: Plan{Select: []string{"Time"}, Aggregates: []Aggregate{{Func: "count"}}}},
		{name: "sort on hidden column of a grouped plan", plan: Plan{GroupBy: []string{"Code"}, Sort: []SortKey{{Column: "SPI"}}}},
		{name: "sort on hidden column of a distinct plan", plan: Plan{Distinct: true, Select: []string{"Code"}, Sort: []SortKey{{Column: "SPI"}}}},
		{name: "unknown sort column", plan: Plan{Select: []string{"Code"}, Sort: []SortKey{{Column: "rain"}}}},
		{name: "negative limit", plan: Plan{Limit: intPtr(-1)}},
		{name: "huge limit", plan: Plan{Limit: intPtr(MaxLimit + 1)}},
		{name: "unknown shape", plan: Plan{Result: "chart"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.plan)
			if !errors.Is(err, ErrInvalidPlan) {
				t.Errorf("Compile() error = %v; want ErrInvalidPlan", err)
			}
		})
	}
}
