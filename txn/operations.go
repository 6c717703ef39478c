package txn

import "github.com/relaydb/relaydb-go/triplestore"

// UnknownEntityType is the placeholder EntityType written by LegacyUpdate,
// preserved for backward compatibility with callers that never learned
// the entity's namespace before updating it. New code should
// always prefer Update, which requires the namespace.
const UnknownEntityType = "unknown"

// Add constructs an operation that creates entityID in namespace with the
// given attribute values, including the namespace's implicit "__type"
// triple.
func Add(namespace, entityID string, data map[string]triplestore.Value) triplestore.Operation {
	return triplestore.Operation{
		Kind:       triplestore.OpAdd,
		EntityType: namespace,
		EntityID:   entityID,
		Data:       data,
	}
}

// Update constructs an operation that merges data into entityID's existing
// attributes. Attributes not present in data are left untouched.
func Update(namespace, entityID string, data map[string]triplestore.Value) triplestore.Operation {
	return triplestore.Operation{
		Kind:       triplestore.OpUpdate,
		EntityType: namespace,
		EntityID:   entityID,
		Data:       data,
	}
}

// LegacyUpdate constructs an update operation without a known namespace,
// matching the behavior of an older single-attribute update helper that
// never required callers to supply one. EntityType is recorded as
// UnknownEntityType rather than left empty, since update operations never
// write a "__type" triple and the namespace is only used for routing.
func LegacyUpdate(entityID string, data map[string]triplestore.Value) triplestore.Operation {
	return triplestore.Operation{
		Kind:       triplestore.OpUpdate,
		EntityType: UnknownEntityType,
		EntityID:   entityID,
		Data:       data,
	}
}

// Delete constructs an operation that removes every triple for entityID.
func Delete(entityID string) triplestore.Operation {
	return triplestore.Operation{
		Kind:     triplestore.OpDelete,
		EntityID: entityID,
	}
}
