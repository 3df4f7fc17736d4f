package aggregator

import (
	"context"
	"testing"
)

func pingRecord(t *testing.T, owner any) *record {
	t.Helper()
	rec, err := newRecord[Ping](discardPing, owner)
	if err != nil {
		t.Fatalf("newRecord failed: %v", err)
	}
	return rec
}

func TestRegistryAdd(t *testing.T) {
	var reg handlerRegistry

	rec := pingRecord(t, nil)
	if _, added := reg.add(rec); !added {
		t.Fatal("first add rejected")
	}
	if reg.size() != 1 {
		t.Fatalf("expected 1 record, got %d", reg.size())
	}

	dup := pingRecord(t, nil)
	stored, added := reg.add(dup)
	if added {
		t.Error("duplicate identity added")
	}
	if stored != rec {
		t.Error("duplicate add did not return the existing record")
	}
	if reg.size() != 1 {
		t.Errorf("expected 1 record after duplicate add, got %d", reg.size())
	}

	other := pingRecord(t, "other-owner")
	if _, added := reg.add(other); !added {
		t.Error("distinct owner rejected")
	}
}

func TestRegistryRemove(t *testing.T) {
	var reg handlerRegistry

	rec := pingRecord(t, nil)
	reg.add(rec)

	if reg.remove(EventType[Pong](), rec.key) {
		t.Error("removed a record under the wrong event type")
	}
	if !reg.remove(EventType[Ping](), rec.key) {
		t.Error("failed to remove existing record")
	}
	if reg.remove(EventType[Ping](), rec.key) {
		t.Error("second remove reported removal")
	}
	if reg.size() != 0 {
		t.Errorf("expected empty registry, got %d", reg.size())
	}
}

func TestRegistryContains(t *testing.T) {
	var reg handlerRegistry

	rec := pingRecord(t, nil)
	if reg.contains(rec.eventType, rec.key) {
		t.Error("empty registry contains record")
	}
	reg.add(rec)
	if !reg.contains(rec.eventType, rec.key) {
		t.Error("registry missing added record")
	}
}

func TestRegistrySnapshot(t *testing.T) {
	var reg handlerRegistry

	first := pingRecord(t, "a")
	second := pingRecord(t, "b")
	third := pingRecord(t, "c")
	reg.add(first)
	reg.add(second)
	reg.add(third)

	noteRec, err := newRecordFor(EventType[Note](), func(ctx context.Context, n Note) error { return nil }, nil)
	if err != nil {
		t.Fatalf("newRecordFor failed: %v", err)
	}
	reg.add(noteRec)

	t.Run("matches only the requested type, in insertion order", func(t *testing.T) {
		snapshot := reg.snapshotFor(EventType[Ping]())
		if len(snapshot) != 3 {
			t.Fatalf("expected 3 records, got %d", len(snapshot))
		}
		if snapshot[0] != first || snapshot[1] != second || snapshot[2] != third {
			t.Error("snapshot out of insertion order")
		}
	})

	t.Run("unmatched type yields empty snapshot", func(t *testing.T) {
		if got := reg.snapshotFor(EventType[Pong]()); len(got) != 0 {
			t.Errorf("expected no records, got %d", len(got))
		}
	})

	t.Run("snapshot is immune to later mutation", func(t *testing.T) {
		snapshot := reg.snapshotFor(EventType[Ping]())
		reg.remove(first.eventType, first.key)
		reg.remove(second.eventType, second.key)
		if len(snapshot) != 3 {
			t.Errorf("snapshot changed after removal: %d records", len(snapshot))
		}
	})
}
