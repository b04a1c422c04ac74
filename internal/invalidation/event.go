// Package invalidation defines the collection change event carried over Kafka
// between API instances.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/pgstac-api/internal/transactions"
)

// Event is the wire form of a committed catalog write.
type Event struct {
	Version    int       `json:"version"`
	Op         string    `json:"op"`
	Collection string    `json:"collection"`
	ItemIDs    []string  `json:"item_ids,omitempty"`
	TS         time.Time `json:"ts"`
	// Source identifies the publishing instance; Seq increases per source.
	Source string `json:"source"`
	Seq    uint64 `json:"seq"`
}

func FromChange(ch transactions.Change, source string, seq uint64, now time.Time) Event {
	return Event{
		Version:    1,
		Op:         string(ch.Op),
		Collection: ch.CollectionID,
		ItemIDs:    ch.ItemIDs,
		TS:         now.UTC(),
		Source:     source,
		Seq:        seq,
	}
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch transactions.Op(e.Op) {
	case transactions.OpCreate, transactions.OpUpdate, transactions.OpDelete, transactions.OpUpsert:
	default:
		return fmt.Errorf("op must be create|update|delete|upsert")
	}
	if strings.TrimSpace(e.Collection) == "" {
		return fmt.Errorf("collection is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if strings.TrimSpace(e.Source) == "" {
		return fmt.Errorf("source is required")
	}
	return nil
}

// DedupeKey groups events whose Seq values are comparable.
func (e Event) DedupeKey() string { return e.Source + "|" + e.Collection }
