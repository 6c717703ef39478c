package triplestore

import "testing"

func TestMatchEntityOperators(t *testing.T) {
	e := Entity{"age": float64(30), "name": "Ada", "tags": []any{"a", "b"}, "nickname": nil}

	cases := []struct {
		name   string
		clause WhereClause
		want   bool
	}{
		{"eq bare", WhereClause{"name": "Ada"}, true},
		{"ne", WhereClause{"name": map[string]Value{"$ne": "Bob"}}, true},
		{"gt", WhereClause{"age": map[string]Value{"$gt": float64(20)}}, true},
		{"gte boundary", WhereClause{"age": map[string]Value{"$gte": float64(30)}}, true},
		{"lt false", WhereClause{"age": map[string]Value{"$lt": float64(20)}}, false},
		{"null fails relational", WhereClause{"nickname": map[string]Value{"$gt": float64(0)}}, false},
		{"in", WhereClause{"name": map[string]Value{"$in": []any{"Ada", "Bob"}}}, true},
		{"nin", WhereClause{"name": map[string]Value{"$nin": []any{"Bob"}}}, true},
		{"like", WhereClause{"name": map[string]Value{"$like": "A%"}}, true},
		{"ilike", WhereClause{"name": map[string]Value{"$ilike": "a%"}}, true},
		{"contains", WhereClause{"tags": map[string]Value{"$contains": "a"}}, true},
		{"size", WhereClause{"tags": map[string]Value{"$size": map[string]Value{"$eq": 2}}}, true},
		{"exists true", WhereClause{"name": map[string]Value{"$exists": true}}, true},
		{"isNull true", WhereClause{"nickname": map[string]Value{"$isNull": true}}, true},
		{"unknown operator degrades", WhereClause{"name": map[string]Value{"$frobnicate": 1}}, true},
		{"and", WhereClause{"$and": []Value{WhereClause{"name": "Ada"}, WhereClause{"age": map[string]Value{"$gt": float64(10)}}}}, true},
		{"or", WhereClause{"$or": []Value{WhereClause{"name": "Bob"}, WhereClause{"name": "Ada"}}}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MatchEntity(e, tc.clause, MatchOptions{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("clause %+v: got %v, want %v", tc.clause, got, tc.want)
			}
		})
	}
}

func TestMatchEntityStrictUnknownOperatorErrors(t *testing.T) {
	e := Entity{"name": "Ada"}
	_, err := MatchEntity(e, WhereClause{"name": map[string]Value{"$frobnicate": 1}}, MatchOptions{Strict: true})
	if err == nil {
		t.Fatal("expected error in strict mode for unknown operator")
	}
}
