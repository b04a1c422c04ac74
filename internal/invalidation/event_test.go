package invalidation

import (
	"testing"
	"time"

	"github.com/mohammed-shakir/pgstac-api/internal/transactions"
)

func mustTS() time.Time { return time.Date(2025, 10, 26, 12, 30, 45, 0, time.UTC) }

func TestFromChange_Validates(t *testing.T) {
	ch := transactions.Change{Op: transactions.OpUpdate, CollectionID: "c1", ItemIDs: []string{"i1"}}
	ev := FromChange(ch, "node-a", 7, mustTS())
	if err := ev.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if ev.Collection != "c1" || ev.Seq != 7 || ev.Op != "update" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestEvent_Validate_Rejects(t *testing.T) {
	base := Event{Version: 1, Op: "delete", Collection: "c1", TS: mustTS(), Source: "a"}
	cases := map[string]func(*Event){
		"version":    func(e *Event) { e.Version = 2 },
		"op":         func(e *Event) { e.Op = "truncate" },
		"collection": func(e *Event) { e.Collection = " " },
		"ts":         func(e *Event) { e.TS = time.Time{} },
		"source":     func(e *Event) { e.Source = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			ev := base
			mutate(&ev)
			if err := ev.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDedupe_SkipsStaleAndRepeated(t *testing.T) {
	d := NewDedupe(16)
	if d.Stale("a|c1", 5) {
		t.Fatalf("unseen key cannot be stale")
	}
	d.Record("a|c1", 5)
	if !d.Stale("a|c1", 5) || !d.Stale("a|c1", 4) {
		t.Fatalf("repeated and older events must be stale")
	}
	if d.Stale("a|c2", 1) {
		t.Fatalf("keys are independent")
	}
	d.Record("a|c1", 3)
	if d.Stale("a|c1", 6) {
		t.Fatalf("lower record must not replace higher")
	}
}
