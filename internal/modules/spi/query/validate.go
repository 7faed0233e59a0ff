package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"spi-dashboard/internal/modules/spi/types"
)

const MaxLimit = 10000

// columnSQL maps each canonical dataset column onto its readings column.
var columnSQL = map[string]string{
	types.ColCode:        "code",
	types.ColStationID:   "station_id",
	types.ColJMDCode:     "jmd_code",
	types.ColStationName: "station_name",
	types.ColAltitude:    "altitude_m",
	types.ColLatitude:    "latitude",
	types.ColLongitude:   "longitude",
	types.ColTime:        "time",
	types.ColSPI:         "spi",
}

var (
	filterOps = map[string]bool{
		"eq": true, "ne": true, "lt": true, "le": true, "gt": true, "ge": true,
		"contains": true, "in": true,
	}
	aggregateFuncs = map[string]bool{
		"count": true, "sum": true, "avg": true, "min": true, "max": true,
	}
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPlan, fmt.Sprintf(format, args...))
}

// canonicalColumn resolves a case-insensitive column name.
func canonicalColumn(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, c := range types.Columns {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// Validate checks p against the column whitelist and returns a normalized
// copy: canonical column names, lower-case operators and functions, default
// aggregate aliases and an explicit result shape.
func Validate(p Plan) (Plan, error) {
	out := Plan{Distinct: p.Distinct, Limit: p.Limit}

	switch Shape(strings.ToLower(string(p.Result))) {
	case "", ShapeTable:
		out.Result = ShapeTable
	case ShapeRow:
		out.Result = ShapeRow
	case ShapeValue:
		out.Result = ShapeValue
	default:
		return Plan{}, invalid("unknown result shape %q", p.Result)
	}

	if p.Limit != nil && (*p.Limit < 0 || *p.Limit > MaxLimit) {
		return Plan{}, invalid("limit %d out of range 0..%d", *p.Limit, MaxLimit)
	}

	for _, f := range p.Filters {
		nf, err := validateFilter(f)
		if err != nil {
			return Plan{}, err
		}
		out.Filters = append(out.Filters, nf)
	}

	grouped := make(map[string]bool, len(p.GroupBy))
	for _, g := range p.GroupBy {
		c, ok := canonicalColumn(g)
		if !ok {
			return Plan{}, invalid("unknown group_by column %q", g)
		}
		if grouped[c] {
			continue
		}
		grouped[c] = true
		out.GroupBy = append(out.GroupBy, c)
	}

	for _, s := range p.Select {
		c, ok := canonicalColumn(s)
		if !ok {
			return Plan{}, invalid("unknown column %q", s)
		}
		if len(out.GroupBy) > 0 && !grouped[c] {
			return Plan{}, invalid("column %q must appear in group_by", c)
		}
		out.Select = append(out.Select, c)
	}
	if len(out.GroupBy) == 0 && len(p.Aggregates) > 0 && len(out.Select) > 0 {
		return Plan{}, invalid("selected columns require group_by when aggregates are used")
	}

	outputs := make(map[string]bool)
	for _, c := range outputColumns(out.Select, out.GroupBy, len(p.Aggregates) > 0) {
		outputs[strings.ToLower(c)] = true
	}

	for _, a := range p.Aggregates {
		na, err := validateAggregate(a)
		if err != nil {
			return Plan{}, err
		}
		key := strings.ToLower(na.As)
		if outputs[key] {
			return Plan{}, invalid("duplicate output column %q", na.As)
		}
		outputs[key] = true
		out.Aggregates = append(out.Aggregates, na)
	}

	for _, k := range p.Sort {
		name := strings.TrimSpace(k.Column)
		if c, ok := canonicalColumn(name); ok {
			name = c
		} else {
			for _, a := range out.Aggregates {
				if strings.EqualFold(a.As, name) {
					name = a.As
				}
			}
		}
		_, isColumn := columnSQL[name]
		hidden := !outputs[strings.ToLower(name)]
		switch {
		case hidden && !isColumn:
			return Plan{}, invalid("unknown sort column %q", k.Column)
		case hidden && (len(out.GroupBy) > 0 || len(out.Aggregates) > 0 || out.Distinct):
			return Plan{}, invalid("sort column %q is not an output column", k.Column)
		}
		out.Sort = append(out.Sort, SortKey{Column: name, Desc: k.Desc})
	}

	return out, nil
}

// outputColumns lists the non-aggregate output columns of a plan.
func outputColumns(sel, groupBy []string, hasAggregates bool) []string {
	switch {
	case len(sel) > 0:
		return sel
	case len(groupBy) > 0:
		return groupBy
	case hasAggregates:
		return nil
	default:
		return types.Columns
	}
}

func validateFilter(f Filter) (Filter, error) {
	c, ok := canonicalColumn(f.Column)
	if !ok {
		return Filter{}, invalid("unknown filter column %q", f.Column)
	}
	op := strings.ToLower(strings.TrimSpace(f.Op))
	if !filterOps[op] {
		return Filter{}, invalid("unsupported filter op %q", f.Op)
	}

	switch op {
	case "in":
		list, ok := f.Value.([]any)
		if !ok || len(list) == 0 {
			return Filter{}, invalid("filter %s in: value must be a non-empty list", c)
		}
		vals := make([]any, 0, len(list))
		for _, v := range list {
			sv, err := scalar(v)
			if err != nil {
				return Filter{}, invalid("filter %s in: %v", c, err)
			}
			if sv == nil {
				return Filter{}, invalid("filter %s in: null is not allowed", c)
			}
			vals = append(vals, sv)
		}
		return Filter{Column: c, Op: op, Value: vals}, nil
	case "contains":
		s, ok := f.Value.(string)
		if !ok {
			return Filter{}, invalid("filter %s contains: value must be a string", c)
		}
		return Filter{Column: c, Op: op, Value: s}, nil
	default:
		v, err := scalar(f.Value)
		if err != nil {
			return Filter{}, invalid("filter %s %s: %v", c, op, err)
		}
		if v == nil && op != "eq" && op != "ne" {
			return Filter{}, invalid("filter %s %s: null only allowed with eq or ne", c, op)
		}
		return Filter{Column: c, Op: op, Value: v}, nil
	}
}

// scalar converts a decoded JSON value into a bindable argument.
func scalar(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", x.String())
		}
		return f, nil
	case float64:
		return x, nil
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func validateAggregate(a Aggregate) (Aggregate, error) {
	fn := strings.ToLower(strings.TrimSpace(a.Func))
	if !aggregateFuncs[fn] {
		return Aggregate{}, invalid("unsupported aggregate %q", a.Func)
	}

	col := strings.TrimSpace(a.Column)
	if col == "*" {
		col = ""
	}
	if col == "" {
		if fn != "count" {
			return Aggregate{}, invalid("aggregate %s requires a column", fn)
		}
	} else {
		c, ok := canonicalColumn(col)
		if !ok {
			return Aggregate{}, invalid("unknown aggregate column %q", a.Column)
		}
		col = c
	}

	alias := strings.TrimSpace(a.As)
	if alias == "" {
		alias = fn
		if col != "" {
			alias = fn + "_" + col
		}
	}
	if !identRe.MatchString(alias) {
		return Aggregate{}, invalid("aggregate alias %q is not an identifier", a.As)
	}
	if _, clash := canonicalColumn(alias); clash {
		return Aggregate{}, invalid("aggregate alias %q shadows a dataset column", alias)
	}
	return Aggregate{Func: fn, Column: col, As: alias}, nil
}
