// Package filter translates AIP-160 session history filters into SQL.
package filter

import (
	"fmt"
	"strings"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/louisbranch/mockinterview/internal/services/interview/domain/difficulty"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
)

// Condition is a WHERE fragment with positional parameters.
type Condition struct {
	Clause string
	Params []any
}

// Empty reports whether the condition filters nothing.
func (c Condition) Empty() bool { return c.Clause == "" }

type field struct {
	column string
	kind   *expr.Type
	valid  func(string) bool
}

var fields = map[string]field{
	"category": {column: "category", kind: filtering.TypeString, valid: func(v string) bool {
		return session.Category(v).Valid()
	}},
	"status": {column: "status", kind: filtering.TypeString, valid: func(v string) bool {
		return session.Status(v).Valid()
	}},
	"difficulty": {column: "difficulty", kind: filtering.TypeString, valid: func(v string) bool {
		return difficulty.Level(v).Valid()
	}},
	"overall": {column: "overall_score", kind: filtering.TypeInt},
}

var comparisons = map[string]string{
	filtering.FunctionEquals:        "=",
	filtering.FunctionNotEquals:     "!=",
	filtering.FunctionLessThan:      "<",
	filtering.FunctionLessEquals:    "<=",
	filtering.FunctionGreaterThan:   ">",
	filtering.FunctionGreaterEquals: ">=",
}

func declarations() (*filtering.Declarations, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	for name, f := range fields {
		opts = append(opts, filtering.DeclareIdent(name, f.kind))
	}
	return filtering.NewDeclarations(opts...)
}

// Parse checks a filter expression such as
// `category = "technical" AND status != "abandoned"` and returns its SQL
// condition. An empty filter yields an empty condition.
func Parse(filter string) (Condition, error) {
	if strings.TrimSpace(filter) == "" {
		return Condition{}, nil
	}
	decls, err := declarations()
	if err != nil {
		return Condition{}, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filter, decls)
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
		return join(call)
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
	op, ok := comparisons[call.GetFunction()]
	if !ok {
		return Condition{}, fmt.Errorf("unsupported function %s", call.GetFunction())
	}
	return compare(call.GetArgs(), op)
}

func join(call *expr.Expr_Call) (Condition, error) {
	var out Condition
	parts := make([]string, 0, len(call.GetArgs()))
	for _, arg := range call.GetArgs() {
		c, err := translate(arg)
		if err != nil {
			return Condition{}, err
		}
		parts = append(parts, c.Clause)
		out.Params = append(out.Params, c.Params...)
	}
	if len(parts) < 2 {
		return Condition{}, fmt.Errorf("%s requires at least 2 arguments", call.GetFunction())
	}
	out.Clause = "(" + strings.Join(parts, " "+call.GetFunction()+" ") + ")"
	return out, nil
}

func compare(args []*expr.Expr, op string) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, fmt.Errorf("comparison requires 2 arguments")
	}
	ident := args[0].GetIdentExpr()
	if ident == nil {
		return Condition{}, fmt.Errorf("expected field on the left of %s", op)
	}
	f, ok := fields[ident.GetName()]
	if !ok {
		return Condition{}, fmt.Errorf("unknown field %s", ident.GetName())
	}
	constant := args[1].GetConstExpr()
	if constant == nil {
		return Condition{}, fmt.Errorf("expected constant on the right of %s", ident.GetName())
	}

	var value any
	switch v := constant.GetConstantKind().(type) {
	case *expr.Constant_StringValue:
		if f.valid != nil && !f.valid(v.StringValue) {
			return Condition{}, fmt.Errorf("invalid %s %q", ident.GetName(), v.StringValue)
		}
		value = v.StringValue
	case *expr.Constant_Int64Value:
		value = v.Int64Value
	default:
		return Condition{}, fmt.Errorf("unsupported constant %T", v)
	}
	return Condition{Clause: fmt.Sprintf("%s %s ?", f.column, op), Params: []any{value}}, nil
}
