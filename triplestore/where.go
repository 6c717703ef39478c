/*
where.go - Where-clause evaluation

PURPOSE:
  Implements the operator set query_entities accepts for where-clauses:
  equality, comparison, set membership, string matching, array/size/
  existence checks, and the $and/$or logical combinators.

QUIRK (preserved knowingly):
  Unknown operators silently degrade to "no constraint" rather than
  erroring, unless strict mode is requested by the caller. This is
  documented behavior, not an oversight - see MatchOptions.Strict.

NULL SEMANTICS:
  null compares as "unknown" for relational operators ($gt/$gte/$lt/$lte):
  it never satisfies them, regardless of the other operand.
*/
package triplestore

import (
	"fmt"
	"reflect"
	"strings"
)

// MatchOptions configures clause evaluation.
type MatchOptions struct {
	// Strict, when true, makes an unrecognised operator an error
	// (ErrStrictWhereOperator) instead of silently matching everything.
	Strict bool
}

// MatchEntity reports whether entity satisfies clause.
func MatchEntity(entity Entity, clause WhereClause, opts MatchOptions) (bool, error) {
	for field, cond := range clause {
		switch field {
		case "$and":
			subs, ok := cond.([]WhereClause)
			if !ok {
				subs = toWhereClauseSlice(cond)
			}
			for _, sub := range subs {
				ok, err := MatchEntity(entity, sub, opts)
				if err != nil {
					return false, err
				}
				if !ok {
					return false, nil
				}
			}
		case "$or":
			subs, ok := cond.([]WhereClause)
			if !ok {
				subs = toWhereClauseSlice(cond)
			}
			if len(subs) == 0 {
				continue
			}
			matched := false
			for _, sub := range subs {
				ok, err := MatchEntity(entity, sub, opts)
				if err != nil {
					return false, err
				}
				if ok {
					matched = true
					break
				}
			}
			if !matched {
				return false, nil
			}
		default:
			ok, err := matchField(entity[field], cond, opts)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func toWhereClauseSlice(v Value) []WhereClause {
	raw, ok := v.([]Value)
	if !ok {
		if anySlice, ok2 := v.([]any); ok2 {
			raw = anySlice
		} else {
			return nil
		}
	}
	out := make([]WhereClause, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(WhereClause); ok {
			out = append(out, m)
		} else if m, ok := item.(map[string]Value); ok {
			out = append(out, WhereClause(m))
		}
	}
	return out
}

// matchField evaluates a single field's condition, which is either a bare
// value (equality) or an operator map like {"$gt": 5, "$lt": 10}.
func matchField(actual Value, cond Value, opts MatchOptions) (bool, error) {
	opMap, isOpMap := asOperatorMap(cond)
	if !isOpMap {
		return compareEqual(actual, cond), nil
	}

	for op, arg := range opMap {
		ok, err := applyOperator(actual, op, arg, opts)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// asOperatorMap returns (map, true) if cond looks like {"$op": ...} (every
// key starts with "$"); otherwise (nil, false) meaning cond is a bare
// equality value.
func asOperatorMap(cond Value) (map[string]Value, bool) {
	m, ok := cond.(map[string]Value)
	if !ok {
		if wm, ok2 := cond.(WhereClause); ok2 {
			m = map[string]Value(wm)
			ok = true
		}
	}
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func applyOperator(actual Value, op string, arg Value, opts MatchOptions) (bool, error) {
	switch op {
	case "$eq":
		return compareEqual(actual, arg), nil
	case "$ne":
		return !compareEqual(actual, arg), nil
	case "$gt":
		return compareOrdered(actual, arg) == 1, nil
	case "$gte":
		c := compareOrdered(actual, arg)
		return c == 1 || c == 0, nil
	case "$lt":
		return compareOrdered(actual, arg) == -1, nil
	case "$lte":
		c := compareOrdered(actual, arg)
		return c == -1 || c == 0, nil
	case "$in":
		return inSlice(actual, arg), nil
	case "$nin":
		return !inSlice(actual, arg), nil
	case "$like":
		return likeMatch(actual, arg, false), nil
	case "$ilike":
		return likeMatch(actual, arg, true), nil
	case "$contains":
		return containsValue(actual, arg), nil
	case "$size":
		n := sizeOf(actual)
		sub, ok := asOperatorMap(arg)
		if ok {
			for subOp, subArg := range sub {
				ok, err := applyOperator(n, subOp, subArg, opts)
				if err != nil || !ok {
					return ok, err
				}
			}
			return true, nil
		}
		return compareEqual(n, arg), nil
	case "$exists":
		want, _ := arg.(bool)
		return (actual != nil) == want, nil
	case "$isNull":
		want, _ := arg.(bool)
		return (actual == nil) == want, nil
	default:
		if opts.Strict {
			return false, fmt.Errorf("%w: %s", ErrStrictWhereOperator, op)
		}
		// Unknown operator: silently "no constraint".
		return true, nil
	}
}

func compareEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		return bok && as == bs
	}
	if ab, aok := a.(bool); aok {
		bb, bok := b.(bool)
		return bok && ab == bb
	}
	return reflect.DeepEqual(a, b)
}

// compareOrdered returns -1/0/1 comparing a to b under the natural order
// of the underlying JSON scalar. null is "unknown": it never compares
// equal or ordered, signalled by returning 2 (never matched by $gt/etc).
func compareOrdered(a, b Value) int {
	if a == nil || b == nil {
		return 2
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	ab, aokB := a.(bool)
	bb, bokB := b.(bool)
	if aokB && bokB {
		if ab == bb {
			return 0
		}
		if !ab && bb {
			return -1
		}
		return 1
	}
	return 2
}

func toFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func inSlice(actual Value, arg Value) bool {
	items := toAnySlice(arg)
	for _, item := range items {
		if compareEqual(actual, item) {
			return true
		}
	}
	return false
}

func toAnySlice(v Value) []Value {
	switch s := v.(type) {
	case []Value:
		return s
	case []any:
		out := make([]Value, len(s))
		copy(out, s)
		return out
	case []string:
		out := make([]Value, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	}
	return nil
}

func likeMatch(actual Value, pattern Value, insensitive bool) bool {
	s, ok := actual.(string)
	if !ok {
		return false
	}
	p, ok := pattern.(string)
	if !ok {
		return false
	}
	if insensitive {
		s = strings.ToLower(s)
		p = strings.ToLower(p)
	}
	return sqlLikeMatch(s, p)
}

// sqlLikeMatch implements SQL-style % wildcard matching (no _ support).
func sqlLikeMatch(s, pattern string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return s == pattern
	}
	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			if !strings.HasPrefix(s, part) {
				return false
			}
			pos = len(part)
			continue
		}
		if i == len(parts)-1 {
			return strings.HasSuffix(s[pos:], part)
		}
		idx := strings.Index(s[pos:], part)
		if idx == -1 {
			return false
		}
		pos += idx + len(part)
	}
	return true
}

func containsValue(actual Value, needle Value) bool {
	items := toAnySlice(actual)
	for _, item := range items {
		if compareEqual(item, needle) {
			return true
		}
	}
	return false
}

func sizeOf(actual Value) int {
	items := toAnySlice(actual)
	if items != nil {
		return len(items)
	}
	if s, ok := actual.(string); ok {
		return len(s)
	}
	return 0
}

