package query

import (
	"encoding/json"
	"sort"
)

// CacheKey returns the canonical JSON serialization of desc, used both as
// the local compilation cache key and as the remote subscription key.
// encoding/json already serializes Go maps with sorted keys, which is
// sufficient for canonicalization - no custom key-sorting walk is needed.
func CacheKey(desc Description) (string, error) {
	canon := canonicalizeDescription(desc)
	b, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// canonicalizeDescription converts desc into a plain map/slice tree so
// that field ordering in the wire JSON never depends on Go struct field
// declaration order, only on (already-sorted) map keys.
func canonicalizeDescription(desc Description) map[string]any {
	out := make(map[string]any, len(desc))
	for ns, nq := range desc {
		out[ns] = canonicalizeNamespaceQuery(nq)
	}
	return out
}

func canonicalizeNamespaceQuery(nq NamespaceQuery) map[string]any {
	m := map[string]any{}
	if len(nq.Where) > 0 {
		m["where"] = nq.Where
	}
	if nq.OrderBy != nil {
		m["order"] = nq.OrderBy
	}
	if nq.Limit != nil {
		m["limit"] = *nq.Limit
	}
	if nq.Offset != nil {
		m["offset"] = *nq.Offset
	}
	if len(nq.Aggregate) > 0 {
		aggs := make([]map[string]any, len(nq.Aggregate))
		for i, a := range nq.Aggregate {
			aggs[i] = map[string]any{"func": a.Func, "arg": a.Arg, "as": a.As}
		}
		m["$aggregate"] = aggs
	}
	if len(nq.GroupBy) > 0 {
		groupBy := append([]string(nil), nq.GroupBy...)
		sort.Strings(groupBy)
		m["$groupBy"] = groupBy
	}
	if len(nq.Include) > 0 {
		inc := make(map[string]any, len(nq.Include))
		for rel, sub := range nq.Include {
			inc[rel] = canonicalizeNamespaceQuery(sub)
		}
		m["include"] = inc
	}
	return m
}
