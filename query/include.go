package query

import (
	"context"
	"strings"

	"github.com/relaydb/relaydb-go/triplestore"
)

// expandIncludes resolves nq.Include for each entity of namespace, ns,
// writing the resolved relation (entity or entity list) into the parent
// under the relation key. The foreign-key convention is explicit and must
// be preserved verbatim:
//   - plural relation key (ends in "s"): one-to-many. Child rows are
//     those whose foreign key equals the parent's id; the foreign key is
//     "authorId" for relation "posts", else "<singular-parent-ns>Id".
//   - singular relation key: one-to-one. The parent is assumed to carry a
//     "<relation>Id" attribute; the target namespace is "users" for
//     relation "author" or "user", else "<relation>s".
func expandIncludes(ctx context.Context, store triplestore.Store, ns string, entities []triplestore.Entity, include map[string]NamespaceQuery, strict bool) error {
	for relation, sub := range include {
		if isPlural(relation) {
			if err := expandOneToMany(ctx, store, ns, relation, entities, sub, strict); err != nil {
				return err
			}
			continue
		}
		if err := expandOneToOne(ctx, store, relation, entities, sub, strict); err != nil {
			return err
		}
	}
	return nil
}

func isPlural(relation string) bool {
	return strings.HasSuffix(relation, "s")
}

func expandOneToMany(ctx context.Context, store triplestore.Store, parentNS, relation string, parents []triplestore.Entity, sub NamespaceQuery, strict bool) error {
	fk := foreignKeyFor(relation, parentNS)
	for i, parent := range parents {
		parentID, _ := parent["id"].(string)
		opts := namespaceQueryToOptions(sub)
		opts.Strict = strict
		opts.Where = mergeWhere(opts.Where, triplestore.WhereClause{fk: parentID})

		children, err := store.QueryEntities(ctx, relation, opts)
		if err != nil {
			return err
		}
		if err := expandIncludes(ctx, store, relation, children, sub.Include, strict); err != nil {
			return err
		}
		parents[i][relation] = children
	}
	return nil
}

// foreignKeyFor resolves the foreign key attribute on a child of relation
// that points back to parentNS, by the convention: "authorId" for
// relation "posts", otherwise "<singular-parent-ns>Id".
func foreignKeyFor(relation, parentNS string) string {
	if relation == "posts" {
		return "authorId"
	}
	return singularize(parentNS) + "Id"
}

func expandOneToOne(ctx context.Context, store triplestore.Store, relation string, parents []triplestore.Entity, sub NamespaceQuery, strict bool) error {
	targetNS := targetNamespaceFor(relation)
	fkAttr := relation + "Id"

	for i, parent := range parents {
		fk, ok := parent[fkAttr].(string)
		if !ok || fk == "" {
			continue
		}
		opts := namespaceQueryToOptions(sub)
		opts.Strict = strict
		opts.Where = mergeWhere(opts.Where, triplestore.WhereClause{"id": fk})

		matches, err := store.QueryEntities(ctx, targetNS, opts)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			continue
		}
		if err := expandIncludes(ctx, store, targetNS, matches[:1], sub.Include, strict); err != nil {
			return err
		}
		parents[i][relation] = matches[0]
	}
	return nil
}

// targetNamespaceFor resolves the namespace a singular relation key
// refers to: "author" and "user" both resolve to "users", otherwise the
// relation name pluralized with a trailing "s".
func targetNamespaceFor(relation string) string {
	switch relation {
	case "author", "user":
		return "users"
	default:
		return relation + "s"
	}
}

func singularize(namespace string) string {
	if strings.HasSuffix(namespace, "s") && len(namespace) > 1 {
		return namespace[:len(namespace)-1]
	}
	return namespace
}

func mergeWhere(base triplestore.WhereClause, extra triplestore.WhereClause) triplestore.WhereClause {
	if len(base) == 0 {
		return extra
	}
	merged := make(triplestore.WhereClause, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func namespaceQueryToOptions(nq NamespaceQuery) triplestore.QueryOptions {
	return triplestore.QueryOptions{
		Where:     nq.Where,
		OrderBy:   nq.OrderBy,
		Limit:     nq.Limit,
		Offset:    nq.Offset,
		Aggregate: nq.Aggregate,
		GroupBy:   nq.GroupBy,
	}
}
