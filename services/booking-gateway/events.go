package main

import (
	"context"
	"log"
	"time"

	"tripvault/core/events"
	"tripvault/core/types"
)

// feedEmitter persists ledger events into the SQLite event feed served under
// /v1/events.
type feedEmitter struct {
	store *SQLiteStore
	nowFn func() time.Time
}

func newFeedEmitter(store *SQLiteStore) *feedEmitter {
	return &feedEmitter{store: store, nowFn: time.Now}
}

func (f *feedEmitter) Emit(evt events.Event) {
	if f == nil || f.store == nil || evt == nil {
		return
	}
	payload := map[string]string{}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if inner := carrier.Event(); inner != nil {
			for k, v := range inner.Attributes {
				payload[k] = v
			}
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.store.InsertEvent(ctx, evt.EventType(), payload, f.nowFn().UTC()); err != nil {
		log.Printf("persist event %s: %v", evt.EventType(), err)
	}
}
