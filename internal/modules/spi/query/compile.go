package query

import (
	"fmt"
	"strings"
)

// Compiled is a validated plan lowered to one parameterized statement.
type Compiled struct {
	SQL     string
	Args    []any
	Columns []string
	Shape   Shape
}

var comparisonSQL = map[string]string{
	"eq": "=", "ne": "<>", "lt": "<", "le": "<=", "gt": ">", "ge": ">=",
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Compile validates p and lowers it to SQL over the readings table.
func Compile(p Plan) (Compiled, error) {
	v, err := Validate(p)
	if err != nil {
		return Compiled{}, err
	}

	var (
		b       strings.Builder
		args    []any
		columns []string
	)

	// Distinct rows are compiled as a grouping over the output columns so
	// they keep the load order of their first occurrence.
	hasAgg := len(v.Aggregates) > 0
	outCols := outputColumns(v.Select, v.GroupBy, hasAgg)
	groupBy := v.GroupBy
	distinct := v.Distinct
	if distinct && !hasAgg && len(groupBy) == 0 {
		groupBy = outCols
		distinct = false
	}

	b.WriteString("SELECT ")
	if distinct {
		b.WriteString("DISTINCT ")
	}

	outputs := make(map[string]bool)
	var exprs []string
	for _, c := range outCols {
		exprs = append(exprs, columnSQL[c]+" AS "+quoteIdent(c))
		columns = append(columns, c)
		outputs[c] = true
	}
	for _, a := range v.Aggregates {
		arg := "*"
		if a.Column != "" {
			arg = columnSQL[a.Column]
		}
		exprs = append(exprs, strings.ToUpper(a.Func)+"("+arg+") AS "+quoteIdent(a.As))
		columns = append(columns, a.As)
		outputs[a.As] = true
	}
	b.WriteString(strings.Join(exprs, ", "))
	b.WriteString(" FROM readings")

	if len(v.Filters) > 0 {
		var conds []string
		for _, f := range v.Filters {
			cond, fargs := compileFilter(f)
			conds = append(conds, cond)
			args = append(args, fargs...)
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	if len(groupBy) > 0 {
		var cols []string
		for _, g := range groupBy {
			cols = append(cols, columnSQL[g])
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(cols, ", "))
	}

	switch {
	case len(v.Sort) > 0:
		var keys []string
		for _, k := range v.Sort {
			key := quoteIdent(k.Column)
			if !outputs[k.Column] {
				// Only ungrouped plans may sort by a column they do not return.
				key = columnSQL[k.Column]
			}
			if k.Desc {
				key += " DESC"
			}
			keys = append(keys, key)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(keys, ", "))
	case len(groupBy) > 0:
		// Groups follow the load order of their first row.
		b.WriteString(" ORDER BY MIN(row_id)")
	case !hasAgg && !distinct:
		b.WriteString(" ORDER BY row_id")
	}

	if v.Limit != nil {
		b.WriteString(" LIMIT ?")
		args = append(args, int64(*v.Limit))
	}

	return Compiled{SQL: b.String(), Args: args, Columns: columns, Shape: v.Result}, nil
}

func compileFilter(f Filter) (string, []any) {
	col := columnSQL[f.Column]
	switch f.Op {
	case "contains":
		return "instr(lower(" + col + "), lower(?)) > 0", []any{f.Value}
	case "in":
		vals := f.Value.([]any)
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
		for _, v := range vals {
			if _, isText := v.(string); isText {
				// Same case folding as eq/ne.
				return fmt.Sprintf("%s COLLATE NOCASE IN (%s)", col, marks), vals
			}
		}
		return fmt.Sprintf("%s IN (%s)", col, marks), vals
	}

	if f.Value == nil {
		if f.Op == "eq" {
			return col + " IS NULL", nil
		}
		return col + " IS NOT NULL", nil
	}
	cond := col + " " + comparisonSQL[f.Op] + " ?"
	if _, isText := f.Value.(string); isText && (f.Op == "eq" || f.Op == "ne") {
		cond += " COLLATE NOCASE"
	}
	return cond, []any{f.Value}
}
