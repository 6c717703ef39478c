/*
Package attrregistry provides the bidirectional (namespace, attribute name)
to server-assigned attribute id mapping used by the Sync Engine.

PURPOSE:
  Attribute ids are authoritative and server-assigned. Until an attribute
  is registered here, the Sync Engine cannot transmit it (it must not
  invent ids), and incoming triples referencing an unknown attribute id
  are skipped. The registry grows on session init (init-ok's attrs array)
  and on remote add-attr steps; it never shrinks within a session.

INVARIANT:
  Once an attr_id maps to (namespace, name), it never maps to anything
  else for the lifetime of the registry. A conflicting Add is ignored
  (it returns false) rather than applied, so a buggy or malicious payload
  cannot redirect an existing id.

CONCURRENCY:
  Single writer (the Sync Engine), concurrent readers (the Sync Engine's
  translation paths, devtools), guarded by sync.RWMutex.
*/
package attrregistry

import "sync"

// Descriptor is one (namespace, attribute name) <-> id binding.
type Descriptor struct {
	ID            string
	Namespace     string
	AttributeName string
}

type key struct {
	namespace string
	name      string
}

// Registry is the append-only attribute bimap.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]Descriptor
	byNSName map[key]Descriptor
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byID:     make(map[string]Descriptor),
		byNSName: make(map[key]Descriptor),
	}
}

// Add registers a descriptor. If id is already bound to a different
// (namespace, name), the call is ignored and ok is false - ids are
// append-only, never remapped.
func (r *Registry) Add(d Descriptor) (ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, found := r.byID[d.ID]; found {
		return existing.Namespace == d.Namespace && existing.AttributeName == d.AttributeName
	}
	r.byID[d.ID] = d
	r.byNSName[key{d.Namespace, d.AttributeName}] = d
	return true
}

// AttrID looks up the attribute id for (namespace, name). Callers must not
// transmit an attribute that has not yet been registered by the server.
func (r *Registry) AttrID(namespace, name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byNSName[key{namespace, name}]
	return d.ID, ok
}

// Lookup resolves an attribute id back to its (namespace, name).
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// Snapshot returns every registered descriptor, for devtools introspection
// and tests. The returned slice is a copy; mutating it has no effect on
// the registry.
func (r *Registry) Snapshot() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	return out
}

// Len returns the number of registered attributes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
