// Package query turns a model-produced JSON query plan into a parameterized
// SELECT over the readings table and runs it. Model text is only ever decoded
// as data; identifiers come from a fixed whitelist and values are bound.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrNotSingleStatement is returned when the model text is empty or holds
	// anything besides exactly one JSON object.
	ErrNotSingleStatement = errors.New("response is not a single statement")
	// ErrInvalidPlan wraps every validation failure.
	ErrInvalidPlan = errors.New("invalid query plan")
)

// Shape selects how the result is returned.
type Shape string

const (
	ShapeTable Shape = "table"
	ShapeRow   Shape = "row"
	ShapeValue Shape = "value"
)

// Plan is the model-facing query description. The zero Plan selects the
// whole dataset in load order.
type Plan struct {
	Distinct   bool        `json:"distinct,omitempty"`
	Select     []string    `json:"select,omitempty"`
	Filters    []Filter    `json:"filters,omitempty"`
	GroupBy    []string    `json:"group_by,omitempty"`
	Aggregates []Aggregate `json:"aggregates,omitempty"`
	Sort       []SortKey   `json:"sort,omitempty"`
	Limit      *int        `json:"limit,omitempty"`
	Result     Shape       `json:"result,omitempty"`
}

type Filter struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  any    `json:"value"`
}

type Aggregate struct {
	Func   string `json:"func"`
	Column string `json:"column,omitempty"`
	As     string `json:"as,omitempty"`
}

type SortKey struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

// Parse decodes model output into a Plan. A surrounding markdown code fence
// is stripped first.
func Parse(text string) (Plan, error) {
	body := stripCodeFence(text)
	if body == "" {
		return Plan{}, fmt.Errorf("%w: empty response", ErrNotSingleStatement)
	}

	// Decoding null into a struct is a no-op, so anything but an object
	// would pass as the empty plan.
	if body[0] != '{' {
		return Plan{}, fmt.Errorf("%w: expected a JSON object", ErrNotSingleStatement)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var p Plan
	if err := dec.Decode(&p); err != nil {
		var syn *json.SyntaxError
		var typ *json.UnmarshalTypeError
		if errors.As(err, &syn) || errors.As(err, &typ) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Plan{}, fmt.Errorf("%w: %v", ErrNotSingleStatement, err)
		}
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Plan{}, fmt.Errorf("%w: unexpected content after the query plan", ErrNotSingleStatement)
	}
	return p, nil
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an info string such as "json".
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		if info := strings.TrimSpace(s[:i]); !strings.ContainsAny(info, "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
