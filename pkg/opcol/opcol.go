// Package opcol implements the Op Collection Manager of §4.3: it maps a
// logical collection name to its op collection ("o_" + name) and
// guarantees, once per process per collection, that the collection is
// ready to receive indexed op writes.
package opcol

import "sync"

// Manager tracks which op collections have already been ensured, mirroring
// the teacher catalog's guarded per-process map of known tables
// (pkg/meta.Catalog.tables/ids in the retrieved yep_crdt module).
type Manager struct {
	mu                   sync.Mutex
	ensured              map[string]bool
	disableIndexCreation bool
}

// New creates an Op Collection Manager. When disableIndexCreation is
// true, EnsureIndexes becomes a no-op that still marks the collection as
// visited, matching §4.3's "if index creation is administratively
// disabled, skip and return immediately."
func New(disableIndexCreation bool) *Manager {
	return &Manager{
		ensured:              make(map[string]bool),
		disableIndexCreation: disableIndexCreation,
	}
}

// OpCollectionName returns the physical op-collection name for a
// logical collection.
func OpCollectionName(collection string) string {
	return "o_" + collection
}

// EnsureIndexes marks the op collection for collection as ready,
// performing whatever one-time setup this store needs the first time
// each process touches it. On the embedded engine backing this module
// there is no separate background index build: every op insert
// (pkg/commit) writes its {d,v} and {src,seq,v} secondary keys directly
// via pkg/opindex, so "ensuring" the indexes here is purely the
// once-per-process gate the spec requires, not a bulk build step.
func (m *Manager) EnsureIndexes(collection string) error {
	name := OpCollectionName(collection)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured[name] = true
	return nil
}

// Ensured reports whether EnsureIndexes has already run for collection
// in this process.
func (m *Manager) Ensured(collection string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensured[OpCollectionName(collection)]
}

// IndexCreationDisabled reports whether administrative index creation is
// disabled for this manager (§6 DisableIndexCreation).
func (m *Manager) IndexCreationDisabled() bool {
	return m.disableIndexCreation
}
