package vault

import (
	"fmt"

	"github.com/fengqlin/GrandR/internal/canon"
)

// CompareOp is a predicate comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "eq"
	OpNe CompareOp = "ne"
	OpLt CompareOp = "lt"
	OpLe CompareOp = "le"
	OpGt CompareOp = "gt"
	OpGe CompareOp = "ge"
)

var validOps = map[CompareOp]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true,
}

// Predicate is a declarative row filter: column OP literal. Declarative
// rather than a Go closure so handles can report which columns a pipeline
// needs before any I/O happens.
type Predicate struct {
	Column string
	Op     CompareOp
	Value  canon.Value
}

// Eq builds an equality predicate.
func Eq(column string, value canon.Value) Predicate {
	return Predicate{Column: column, Op: OpEq, Value: value}
}

// Ne builds an inequality predicate.
func Ne(column string, value canon.Value) Predicate {
	return Predicate{Column: column, Op: OpNe, Value: value}
}

// Lt builds a less-than predicate.
func Lt(column string, value canon.Value) Predicate {
	return Predicate{Column: column, Op: OpLt, Value: value}
}

// Gt builds a greater-than predicate.
func Gt(column string, value canon.Value) Predicate {
	return Predicate{Column: column, Op: OpGt, Value: value}
}

// match evaluates the predicate against one cell.
// Null cells never match any predicate, including Ne.
func (p Predicate) match(cell canon.Value) (bool, error) {
	if _, isNull := cell.(canon.Null); isNull {
		return false, nil
	}

	cmp, err := compareValues(cell, p.Value)
	if err != nil {
		return false, fmt.Errorf("column %q: %w", p.Column, err)
	}

	switch p.Op {
	case OpEq:
		return cmp == 0, nil
	case OpNe:
		return cmp != 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLe:
		return cmp <= 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGe:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("unknown op %q", p.Op)
	}
}

// compareValues orders two scalar cells. Int and Float compare numerically
// with each other; mixing any other kinds is an error.
func compareValues(a, b canon.Value) (int, error) {
	if af, aok := numeric(a); aok {
		bf, bok := numeric(b)
		if !bok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	switch av := a.(type) {
	case canon.String:
		bv, ok := b.(canon.String)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		default:
			return 0, nil
		}
	case canon.Bool:
		bv, ok := b.(canon.Bool)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		if av == bv {
			return 0, nil
		}
		if !bool(av) {
			return -1, nil
		}
		return 1, nil
	default:
		return 0, fmt.Errorf("cells of type %T are not comparable", a)
	}
}

func numeric(v canon.Value) (float64, bool) {
	switch n := v.(type) {
	case canon.Int:
		return float64(n), true
	case canon.Float:
		return float64(n), true
	default:
		return 0, false
	}
}
