/*
order.go - Order-by parsing and multi-key stable sort

PURPOSE:
  Accepts the order forms query_entities allows: a single string "field dir",
  an object {field: dir}, or a list of either. Multi-key sorts are stable
  and applied right-to-left (last key least significant), so the first key
  in the list ends up the primary sort key.

NULL ORDERING:
  null sorts last under asc, first under desc - independent of the
  comparison semantics used by where-clauses (there, null is "unknown"
  and never matches; here, it needs a total order to sort by).
*/
package triplestore

import (
	"fmt"
	"sort"
	"strings"
)

type orderKey struct {
	field string
	desc  bool
}

// parseOrderBy normalizes OrderSpec into an ordered list of orderKey,
// already in application order (apply index 0 last, per the "right to
// left, last key least significant" rule).
func parseOrderBy(spec OrderSpec) []orderKey {
	switch v := spec.(type) {
	case nil:
		return nil
	case string:
		return []orderKey{parseOrderString(v)}
	case map[string]Value:
		return parseOrderObject(v)
	case WhereClause:
		return parseOrderObject(map[string]Value(v))
	case []Value:
		return parseOrderList(v)
	case []any:
		out := make([]Value, len(v))
		copy(out, v)
		return parseOrderList(out)
	}
	return nil
}

func parseOrderList(items []Value) []orderKey {
	var keys []orderKey
	for _, item := range items {
		keys = append(keys, parseOrderBy(item)...)
	}
	return keys
}

func parseOrderObject(m map[string]Value) []orderKey {
	keys := make([]orderKey, 0, len(m))
	for field, dir := range m {
		keys = append(keys, orderKey{field: field, desc: isDesc(dir)})
	}
	return keys
}

func parseOrderString(s string) orderKey {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return orderKey{}
	}
	ok := orderKey{field: parts[0]}
	if len(parts) > 1 {
		ok.desc = isDesc(parts[1])
	}
	return ok
}

func isDesc(dir Value) bool {
	s, _ := dir.(string)
	return strings.EqualFold(s, "desc")
}

// sortEntities sorts entities in place per spec's multi-key rule: keys are
// applied right-to-left so the first key in spec is the primary key.
func sortEntities(entities []Entity, spec OrderSpec) {
	keys := parseOrderBy(spec)
	if len(keys) == 0 {
		return
	}
	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]
		sort.SliceStable(entities, func(a, b int) bool {
			return lessByKey(entities[a][key.field], entities[b][key.field], key.desc)
		})
	}
}

// lessByKey orders two values for a single sort key, handling the
// null-sorts-last-under-asc / null-sorts-first-under-desc rule.
func lessByKey(a, b Value, desc bool) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil {
		return desc
	}
	if b == nil {
		return !desc
	}
	c := compareOrdered(a, b)
	if c == 2 {
		// Incomparable scalars: fall back to string form for a total,
		// deterministic order rather than leaving sort undefined.
		c = strings.Compare(toSortString(a), toSortString(b))
		if c < 0 {
			c = -1
		} else if c > 0 {
			c = 1
		}
	}
	if desc {
		return c == 1
	}
	return c == -1
}

func toSortString(v Value) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
