package trace

import (
	"testing"
	"time"
)

func TestStoreAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	for i, kind := range []EventKind{EventPlaced, EventFilled, EventCanceled} {
		e, err := store.Append(Entry{BarTime: now.Add(time.Duration(i) * time.Minute), Instrument: "ES", OrderID: "o1", Event: kind})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if e.Sequence != uint64(i+1) {
			t.Errorf("Append sequence = %d, want %d", e.Sequence, i+1)
		}
	}

	entries, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ReadAll returned %d entries, want 3", len(entries))
	}
	if entries[1].Event != EventFilled {
		t.Errorf("entries[1].Event = %s, want %s", entries[1].Event, EventFilled)
	}
}

func TestStoreReopenPreservesSequence(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s1.Append(Entry{Instrument: "ES", OrderID: "o1", Event: EventPlaced}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	e, err := s2.Append(Entry{Instrument: "ES", OrderID: "o2", Event: EventPlaced})
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if e.Sequence != 2 {
		t.Errorf("Sequence after reopen = %d, want 2", e.Sequence)
	}
}

func TestStoreFilter(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	entries := []Entry{
		{Instrument: "ES", OrderID: "o1", Event: EventPlaced},
		{Instrument: "ES", OrderID: "o1", Event: EventFilled, Quantity: 1, Price: 100},
		{Instrument: "NQ", OrderID: "o2", Event: EventPlaced},
		{Instrument: "NQ", OrderID: "o2", Event: EventRejected, Reason: "insufficient_margin"},
	}
	for _, e := range entries {
		if _, err := store.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	byInstrument, err := store.Filter("ES", "", "")
	if err != nil {
		t.Fatalf("Filter by instrument: %v", err)
	}
	if len(byInstrument) != 2 {
		t.Fatalf("Filter by instrument returned %d entries, want 2", len(byInstrument))
	}

	rejected, err := store.Filter("", "", EventRejected)
	if err != nil {
		t.Fatalf("Filter by event: %v", err)
	}
	if len(rejected) != 1 || rejected[0].OrderID != "o2" {
		t.Fatalf("Filter by event = %+v, want single o2 entry", rejected)
	}
}
