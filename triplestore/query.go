/*
query.go - Shared query_entities pipeline

PURPOSE:
  Both the in-memory store (memory.go) and the SQLite store
  (storage/sqlite) materialize raw entities from their own backing format,
  then hand off to ExecuteQuery here for the backend-independent part of
  the pipeline: where, then sort, then page, then optionally aggregate.
*/
package triplestore

// ExecuteQuery applies opts to an already-materialized set of entities, in
// the mandated order: where, sort, paginate, aggregate.
func ExecuteQuery(entities []Entity, opts QueryOptions) ([]Entity, error) {
	filtered := entities
	if opts.Where != nil {
		filtered = make([]Entity, 0, len(entities))
		for _, e := range entities {
			ok, err := MatchEntity(e, opts.Where, MatchOptions{Strict: opts.Strict})
			if err != nil {
				return nil, err
			}
			if ok {
				filtered = append(filtered, e)
			}
		}
	}

	if opts.OrderBy != nil {
		sortEntities(filtered, opts.OrderBy)
	}

	filtered = paginate(filtered, opts.Offset, opts.Limit)

	if len(opts.Aggregate) > 0 {
		return runAggregate(filtered, opts.Aggregate, opts.GroupBy), nil
	}
	return filtered, nil
}

// paginate applies offset then limit; offset beyond the slice length
// yields an empty result, never an error.
func paginate(entities []Entity, offset, limit *int) []Entity {
	if offset != nil {
		o := *offset
		if o < 0 {
			o = 0
		}
		if o >= len(entities) {
			return []Entity{}
		}
		entities = entities[o:]
	}
	if limit != nil {
		l := *limit
		if l < 0 {
			l = 0
		}
		if l < len(entities) {
			entities = entities[:l]
		}
	}
	return entities
}
