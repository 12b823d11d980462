package history

import (
	"fmt"

	"gwasm-client/internal/database"

	"github.com/alecthomas/participle/v2"
)

/*
Parser for the history filter language:

	Query     := Expr
	Expr      := OrExpr ( "OR" OrExpr )*
	OrExpr    := AndExpr ( "AND" AndExpr )*
	AndExpr   := Condition | "NOT" Condition
	Condition := Filter | "(" Expr ")"
	Filter    := <field> Op Value
	Op        := "CONTAINS" | "<" | ">" | "="
	Value     := <string> | <number>

Text fields (name, status, network, task_id, workspace, error) compare
against quoted strings; numeric fields (bid, progress, subtasks) against
numbers. Example:

	status = "FINISHED" AND bid > 1.5 OR name CONTAINS "render"
*/

var parser = participle.MustBuild[QueryExpr](
	participle.Unquote("String"),
	participle.Union[Value](StringValue{}, NumberValue{}),
)

// ParseQuery compiles a filter expression into a Filter over recorded runs.
func ParseQuery(query string) (Filter, error) {
	q, err := parser.ParseString("", query)
	if err != nil {
		return nil, fmt.Errorf("error parsing query '%s': %w", query, err)
	}

	filter, err := q.ToFilter()
	if err != nil {
		return nil, fmt.Errorf("error converting query '%s' to filter: %w", query, err)
	}

	return filter, nil
}

type QueryExpr struct {
	Expr *Expr `parser:"@@"`
}

func (q *QueryExpr) ToFilter() (Filter, error) {
	return q.Expr.ToFilter()
}

type Expr struct {
	Ors []*OrExpr `parser:"@@ ( \"OR\" @@ )*"`
}

func (e *Expr) ToFilter() (Filter, error) {
	if len(e.Ors) == 0 {
		return nil, fmt.Errorf("empty OR expression")
	}

	if len(e.Ors) == 1 {
		return e.Ors[0].ToFilter()
	}

	var filters []Filter
	for _, cond := range e.Ors {
		f, err := cond.ToFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &OrFilter{filters: filters}, nil
}

type OrExpr struct {
	Ands []*Condition `parser:"@@ ( \"AND\" @@ )*"`
}

func (o *OrExpr) ToFilter() (Filter, error) {
	if len(o.Ands) == 0 {
		return nil, fmt.Errorf("empty AND expression")
	}

	if len(o.Ands) == 1 {
		return o.Ands[0].ToFilter()
	}

	var filters []Filter
	for _, cond := range o.Ands {
		f, err := cond.ToFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &AndFilter{filters: filters}, nil
}

type Condition struct {
	Not     bool        `parser:"@\"NOT\"? ("`
	Filter  *FilterExpr `parser:" @@"`
	SubExpr *Expr       `parser:"| \"(\" @@ \")\" )"`
}

func (c *Condition) ToFilter() (Filter, error) {
	var filter Filter
	var err error
	if c.Filter != nil {
		filter, err = c.Filter.ToFilter()
	} else if c.SubExpr != nil {
		filter, err = c.SubExpr.ToFilter()
	}

	if err != nil {
		return nil, err
	}

	if c.Not {
		filter = &NotFilter{filter: filter}
	}

	return filter, nil
}

type FilterExpr struct {
	Field string `parser:"@Ident"`
	Op    string `parser:"@(\"CONTAINS\" | \"<\" | \">\" | \"=\" )"`
	Value Value  `parser:"@@"`
}

func (f *FilterExpr) ToFilter() (Filter, error) {
	switch value := f.Value.(type) {
	case NumberValue:
		if _, ok := numberField(&database.TaskRun{}, f.Field); !ok {
			return nil, fmt.Errorf("%q is not a numeric field", f.Field)
		}

		switch f.Op {
		case "<":
			return &NumberLtFilter{field: f.Field, value: value.Value}, nil
		case ">":
			return &NumberGtFilter{field: f.Field, value: value.Value}, nil
		case "=":
			return &NumberEqFilter{field: f.Field, value: value.Value}, nil
		default:
			return nil, fmt.Errorf("invalid operator %s used with numeric value", f.Op)
		}

	case StringValue:
		if _, ok := stringField(&database.TaskRun{}, f.Field); !ok {
			return nil, fmt.Errorf("%q is not a text field", f.Field)
		}

		switch f.Op {
		case "CONTAINS":
			return &SubstringFilter{field: f.Field, substr: value.Value}, nil
		case "<":
			return &StringLtFilter{field: f.Field, value: value.Value}, nil
		case ">":
			return &StringGtFilter{field: f.Field, value: value.Value}, nil
		case "=":
			return &StringEqFilter{field: f.Field, value: value.Value}, nil
		default:
			return nil, fmt.Errorf("invalid operator %s used with string value", f.Op)
		}

	default:
		return nil, fmt.Errorf("unsupported value type %T", f.Value)
	}
}

type Value interface{ value() }

type StringValue struct {
	Value string `parser:"@String"`
}

func (s StringValue) value() {}

type NumberValue struct {
	Value float64 `parser:"@(Float | Int)"`
}

func (n NumberValue) value() {}
