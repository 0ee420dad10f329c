// Package filter evaluates boolean expressions over event predicates. An
// expression is built once at registration time and evaluated for every
// dispatch attempt against a memo that is shared by all expressions tried
// during that attempt.
package filter

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/drblury/botflow/internal/runtime/update"
)

// Input is what predicates extract their values from. Err is set only when
// matching error handlers. Ctx carries the dispatch context, including the
// execution context and any bound state machine.
type Input struct {
	Ctx   context.Context
	Event *update.Event
	Err   error
}

// Predicate extracts a value from the input and decides whether it matches.
// Extract must depend only on the predicate's type (or its MemoKey), never on
// its fields, because its result is memoized per type within one dispatch.
type Predicate interface {
	Extract(in Input) any
	Match(value any) bool
}

// Keyed predicates choose their own memo key instead of their Go type.
// Predicates with different types but the same key share one extraction.
type Keyed interface {
	MemoKey() string
}

type op uint8

const (
	opNone op = iota
	opLiteral
	opNot
	opAnd
	opOr
)

// Expr is an immutable expression node. The zero value always matches.
type Expr struct {
	op       op
	pred     Predicate
	children []Expr
}

// None is the expression that always matches.
var None = Expr{}

func Lit(p Predicate) Expr {
	if p == nil {
		panic("botflow: filter predicate cannot be nil")
	}
	return Expr{op: opLiteral, pred: p}
}

func Not(e Expr) Expr {
	return Expr{op: opNot, children: []Expr{e}}
}

// And matches when every operand matches. And() with no operands matches.
func And(es ...Expr) Expr {
	return Expr{op: opAnd, children: append([]Expr(nil), es...)}
}

// Or matches when any operand matches. Or() with no operands never matches.
func Or(es ...Expr) Expr {
	return Expr{op: opOr, children: append([]Expr(nil), es...)}
}

func (e Expr) And(others ...Expr) Expr { return And(append([]Expr{e}, others...)...) }

func (e Expr) Or(others ...Expr) Expr { return Or(append([]Expr{e}, others...)...) }

func (e Expr) Not() Expr { return Not(e) }

func (e Expr) IsNone() bool { return e.op == opNone }

// Eval evaluates the expression, short-circuiting And and Or. A nil memo
// evaluates without caching.
func (e Expr) Eval(in Input, memo *Memo) bool {
	switch e.op {
	case opNone:
		return true
	case opLiteral:
		return e.pred.Match(memo.value(e.pred, in))
	case opNot:
		return !e.children[0].Eval(in, memo)
	case opAnd:
		for _, child := range e.children {
			if !child.Eval(in, memo) {
				return false
			}
		}
		return true
	case opOr:
		for _, child := range e.children {
			if child.Eval(in, memo) {
				return true
			}
		}
		return false
	}
	return false
}

func (e Expr) String() string {
	switch e.op {
	case opNone:
		return "*"
	case opLiteral:
		if s, ok := e.pred.(fmt.Stringer); ok {
			return s.String()
		}
		return reflect.TypeOf(e.pred).String()
	case opNot:
		return "!" + e.children[0].String()
	case opAnd:
		return join(e.children, " && ")
	case opOr:
		return join(e.children, " || ")
	}
	return "?"
}

func join(children []Expr, sep string) string {
	parts := make([]string, len(children))
	for i, child := range children {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
