// Package filter translates AIP-160 filter expressions over the event log into
// SQL conditions.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
)

// Condition is a SQL WHERE fragment with positional parameters.
type Condition struct {
	Clause string
	Params []any
}

// Empty reports whether the condition filters nothing.
func (c Condition) Empty() bool { return c.Clause == "" }

type field struct {
	column string
	value  func(any) (any, error)
}

var fields = map[string]field{
	"resident_id":     {column: "resident_id", value: asString},
	"resource_id":     {column: "resource_id", value: asString},
	"kind":            {column: "kind", value: asKind},
	"source_priority": {column: "source_priority", value: asInt},
	"ts":              {column: "ts_ms", value: asMillis},
	"seq":             {column: "seq", value: asInt},
}

var comparisons = map[string]string{
	filtering.FunctionEquals:        "=",
	filtering.FunctionNotEquals:     "!=",
	filtering.FunctionLessThan:      "<",
	filtering.FunctionLessEquals:    "<=",
	filtering.FunctionGreaterThan:   ">",
	filtering.FunctionGreaterEquals: ">=",
}

// Declarations lists the identifiers an event filter may reference.
func Declarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("resident_id", filtering.TypeString),
		filtering.DeclareIdent("resource_id", filtering.TypeString),
		filtering.DeclareIdent("kind", filtering.TypeString),
		filtering.DeclareIdent("source_priority", filtering.TypeInt),
		filtering.DeclareIdent("ts", filtering.TypeTimestamp),
		filtering.DeclareIdent("seq", filtering.TypeInt),
	)
}

// Parse checks filterStr and returns the equivalent SQL condition. An empty
// filter yields an empty condition.
func Parse(filterStr string) (Condition, error) {
	if strings.TrimSpace(filterStr) == "" {
		return Condition{}, nil
	}
	decls, err := Declarations()
	if err != nil {
		return Condition{}, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return Condition{}, fmt.Errorf("parse filter: %w", err)
	}
	return translate(parsed.CheckedExpr.GetExpr())
}

func translate(e *expr.Expr) (Condition, error) {
	call := e.GetCallExpr()
	if call == nil {
		return Condition{}, fmt.Errorf("unsupported expression %T", e.GetExprKind())
	}
	switch call.GetFunction() {
	case filtering.FunctionAnd, filtering.FunctionOr:
		return translateJunction(call)
	case filtering.FunctionNot:
		if len(call.GetArgs()) != 1 {
			return Condition{}, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := translate(call.GetArgs()[0])
		if err != nil {
			return Condition{}, err
		}
		return Condition{Clause: "NOT " + inner.Clause, Params: inner.Params}, nil
	}
	if op, ok := comparisons[call.GetFunction()]; ok {
		return translateComparison(call.GetArgs(), op)
	}
	return Condition{}, fmt.Errorf("unsupported function: %s", call.GetFunction())
}

func translateJunction(call *expr.Expr_Call) (Condition, error) {
	if len(call.GetArgs()) != 2 {
		return Condition{}, fmt.Errorf("%s requires 2 arguments", call.GetFunction())
	}
	left, err := translate(call.GetArgs()[0])
	if err != nil {
		return Condition{}, err
	}
	right, err := translate(call.GetArgs()[1])
	if err != nil {
		return Condition{}, err
	}
	return Condition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, call.GetFunction(), right.Clause),
		Params: append(left.Params, right.Params...),
	}, nil
}

func translateComparison(args []*expr.Expr, op string) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, fmt.Errorf("comparison requires 2 arguments")
	}
	ident := args[0].GetIdentExpr()
	if ident == nil {
		return Condition{}, fmt.Errorf("left side of %s must be a field", op)
	}
	f, ok := fields[ident.GetName()]
	if !ok {
		return Condition{}, fmt.Errorf("unknown field: %s", ident.GetName())
	}
	raw, err := literal(args[1])
	if err != nil {
		return Condition{}, fmt.Errorf("%s: %w", ident.GetName(), err)
	}
	value, err := f.value(raw)
	if err != nil {
		return Condition{}, fmt.Errorf("%s: %w", ident.GetName(), err)
	}
	return Condition{Clause: fmt.Sprintf("%s %s ?", f.column, op), Params: []any{value}}, nil
}

func literal(e *expr.Expr) (any, error) {
	if c := e.GetConstExpr(); c != nil {
		switch kind := c.GetConstantKind().(type) {
		case *expr.Constant_StringValue:
			return kind.StringValue, nil
		case *expr.Constant_Int64Value:
			return kind.Int64Value, nil
		case *expr.Constant_Uint64Value:
			return int64(kind.Uint64Value), nil
		case *expr.Constant_BoolValue:
			return kind.BoolValue, nil
		default:
			return nil, fmt.Errorf("unsupported constant %T", kind)
		}
	}
	if call := e.GetCallExpr(); call != nil && call.GetFunction() == filtering.FunctionTimestamp && len(call.GetArgs()) == 1 {
		return literal(call.GetArgs()[0])
	}
	return nil, fmt.Errorf("expected a literal value")
}

func asString(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func asInt(v any) (any, error) {
	n, ok := v.(int64)
	if !ok {
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
	return n, nil
}

func asKind(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected kind label, got %T", v)
	}
	kind, err := event.ParseKind(s)
	if err != nil {
		return nil, err
	}
	return kind.String(), nil
}

// asMillis converts an RFC 3339 literal to the stored millisecond column.
func asMillis(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected RFC 3339 timestamp, got %T", v)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q", s)
	}
	return t.UTC().UnixMilli(), nil
}
