package query

import (
	"context"
	"errors"
	"fmt"

	"spi-dashboard/internal/modules/spi/types"
)

// Kind tells callers what an executed plan produced.
type Kind int

const (
	KindTable Kind = iota
	KindSeries
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindSeries:
		return "series"
	case KindScalar:
		return "scalar"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Series is a single labelled row.
type Series struct {
	Names  []string
	Values []any
}

// ToTable returns the series as a one-row table.
func (s Series) ToTable() types.Table {
	row := make([]any, len(s.Values))
	copy(row, s.Values)
	return types.Table{Columns: append([]string(nil), s.Names...), Rows: [][]any{row}}
}

type Result struct {
	Kind   Kind
	Table  types.Table
	Series Series
	Value  any
}

// Querier runs a read-only statement. The spi repository satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (types.Table, error)
}

type Executor struct {
	q Querier
}

func NewExecutor(q Querier) *Executor {
	return &Executor{q: q}
}

// Execute parses model text as a plan and runs it against the base dataset.
func (e *Executor) Execute(ctx context.Context, text string) (Result, error) {
	p, err := Parse(text)
	if err != nil {
		return Result{}, err
	}
	c, err := Compile(p)
	if err != nil {
		return Result{}, err
	}
	return e.Run(ctx, c)
}

// Run executes an already compiled plan.
func (e *Executor) Run(ctx context.Context, c Compiled) (Result, error) {
	tbl, err := e.q.Query(ctx, c.SQL, c.Args...)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	// Output names come from the plan so both drivers label columns alike.
	if len(c.Columns) == len(tbl.Columns) {
		tbl.Columns = c.Columns
	}

	switch c.Shape {
	case ShapeRow:
		if tbl.Len() == 0 {
			return Result{}, errors.New("query returned no rows")
		}
		return Result{Kind: KindSeries, Series: Series{Names: tbl.Columns, Values: tbl.Rows[0]}}, nil
	case ShapeValue:
		if len(tbl.Columns) != 1 {
			return Result{}, fmt.Errorf("value result needs exactly one column, got %d", len(tbl.Columns))
		}
		if tbl.Len() == 0 {
			return Result{}, errors.New("query returned no rows")
		}
		return Result{Kind: KindScalar, Value: tbl.Rows[0][0]}, nil
	default:
		return Result{Kind: KindTable, Table: tbl}, nil
	}
}
