package aggregator

import (
	"reflect"
	"sync"
)

// handlerRegistry is an insertion-ordered collection of handler records of
// one variant (sync or async), guarded by a single mutex. The lock is held
// only to mutate or copy the slice, never while a handler runs; dispatch
// iterates a snapshot so a handler may subscribe, unsubscribe or publish
// reentrantly without deadlocking or observing a half-mutated registry.
type handlerRegistry struct {
	mu      sync.Mutex
	records []*record
}

// add appends rec unless a record with an equal identity is already present.
// Returns the record that is in the registry after the call and whether rec
// was newly added. A duplicate subscribe is a silent no-op.
func (r *handlerRegistry) add(rec *record) (*record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.key == rec.key && existing.eventType == rec.eventType {
			return existing, false
		}
	}
	r.records = append(r.records, rec)
	return rec, true
}

// remove deletes all records whose identity equals key for the given event
// type. At most one exists given the add invariant. Returns true if a record
// was removed.
func (r *handlerRegistry) remove(eventType reflect.Type, key identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := false
	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.key == key && rec.eventType == eventType {
			removed = true
			continue
		}
		kept = append(kept, rec)
	}
	// Drop trailing pointers so removed records can be collected.
	for i := len(kept); i < len(r.records); i++ {
		r.records[i] = nil
	}
	r.records = kept
	return removed
}

// snapshotFor copies all records registered for eventType, in insertion
// order. The copy is taken under lock and iterated outside it.
func (r *handlerRegistry) snapshotFor(eventType reflect.Type) []*record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var snapshot []*record
	for _, rec := range r.records {
		if rec.eventType == eventType {
			snapshot = append(snapshot, rec)
		}
	}
	return snapshot
}

// contains reports whether a record with the given identity is registered
// for eventType.
func (r *handlerRegistry) contains(eventType reflect.Type, key identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.key == key && rec.eventType == eventType {
			return true
		}
	}
	return false
}

// size returns the number of registered records.
func (r *handlerRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
