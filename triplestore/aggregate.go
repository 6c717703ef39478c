/*
aggregate.go - $aggregate / $groupBy reducers

PURPOSE:
  When a query carries $aggregate, query_entities returns a single-element
  result containing the reduced row; with $groupBy as well, one row per
  distinct group key tuple. Uses github.com/shopspring/decimal for
  sum/avg/min/max so two clients reducing the same synced rows never
  disagree over binary floating-point rounding - the same rationale the
  teacher engine applies to monetary balances.

REDUCERS:
  count: arg "*" counts matching entities; an attribute name counts only
         entities where that attribute is present (non-nil).
  sum, avg, min, max: numeric reducers over the named attribute, skipping
         entities where it is absent or non-numeric.
*/
package triplestore

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// runAggregate reduces entities per specs, optionally grouped by groupBy.
// Returns one Entity per group (or one overall if groupBy is empty).
func runAggregate(entities []Entity, specs []AggregateSpec, groupBy []string) []Entity {
	if len(groupBy) == 0 {
		return []Entity{reduceGroup(entities, specs, nil, nil)}
	}

	type group struct {
		key     []Value
		members []Entity
	}
	order := make([]string, 0)
	groups := make(map[string]*group)
	for _, e := range entities {
		key := make([]Value, len(groupBy))
		for i, field := range groupBy {
			key[i] = e[field]
		}
		k := fmt.Sprint(key)
		g, ok := groups[k]
		if !ok {
			g = &group{key: key}
			groups[k] = g
			order = append(order, k)
		}
		g.members = append(g.members, e)
	}
	sort.Strings(order)

	out := make([]Entity, 0, len(groups))
	for _, k := range order {
		g := groups[k]
		out = append(out, reduceGroup(g.members, specs, groupBy, g.key))
	}
	return out
}

func reduceGroup(members []Entity, specs []AggregateSpec, groupBy []string, groupKey []Value) Entity {
	row := Entity{}
	for i, field := range groupBy {
		row[field] = groupKey[i]
	}
	for _, spec := range specs {
		name := spec.As
		if name == "" {
			name = spec.Func + "_" + spec.Arg
		}
		row[name] = reduceOne(members, spec)
	}
	return row
}

func reduceOne(members []Entity, spec AggregateSpec) Value {
	switch spec.Func {
	case "count":
		if spec.Arg == "" || spec.Arg == "*" {
			return len(members)
		}
		n := 0
		for _, e := range members {
			if e[spec.Arg] != nil {
				n++
			}
		}
		return n
	case "sum":
		sum := decimal.Zero
		for _, e := range members {
			if d, ok := toDecimal(e[spec.Arg]); ok {
				sum = sum.Add(d)
			}
		}
		return toFloatOut(sum)
	case "avg":
		sum := decimal.Zero
		n := 0
		for _, e := range members {
			if d, ok := toDecimal(e[spec.Arg]); ok {
				sum = sum.Add(d)
				n++
			}
		}
		if n == 0 {
			return nil
		}
		return toFloatOut(sum.Div(decimal.NewFromInt(int64(n))))
	case "min":
		var min decimal.Decimal
		found := false
		for _, e := range members {
			if d, ok := toDecimal(e[spec.Arg]); ok {
				if !found || d.LessThan(min) {
					min = d
					found = true
				}
			}
		}
		if !found {
			return nil
		}
		return toFloatOut(min)
	case "max":
		var max decimal.Decimal
		found := false
		for _, e := range members {
			if d, ok := toDecimal(e[spec.Arg]); ok {
				if !found || d.GreaterThan(max) {
					max = d
					found = true
				}
			}
		}
		if !found {
			return nil
		}
		return toFloatOut(max)
	default:
		return nil
	}
}

func toDecimal(v Value) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	}
	return decimal.Decimal{}, false
}

func toFloatOut(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
