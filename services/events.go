package services

import (
	"sync"
	"time"

	"fortune-entitlements-service/models"
)

// TrialEvent is emitted whenever a trial changes state (started, ended,
// swept to expired).
type TrialEvent struct {
	AccountID string             `json:"account_id"`
	Status    models.TrialStatus `json:"status"`
	EndDate   time.Time          `json:"end_date"`
	At        time.Time          `json:"at"`
}

// TrialSubscription is a live feed of one account's trial events. Callers
// must Unsubscribe when done; after that C is closed.
type TrialSubscription struct {
	C           <-chan TrialEvent
	Unsubscribe func()
}

// TrialEventBus fans trial state changes out to subscribers. Delivery is
// best-effort: a subscriber that stops draining loses events rather than
// blocking the publisher, and reconnecting clients re-read the stored
// trial state anyway.
type TrialEventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan TrialEvent // account ID -> subscriber set
}

func NewTrialEventBus() *TrialEventBus {
	return &TrialEventBus{subs: make(map[string]map[int]chan TrialEvent)}
}

// Subscribe registers a listener for one account's trial events.
func (b *TrialEventBus) Subscribe(accountID string) *TrialSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan TrialEvent, 8)
	if b.subs[accountID] == nil {
		b.subs[accountID] = make(map[int]chan TrialEvent)
	}
	b.subs[accountID][id] = ch

	return &TrialSubscription{
		C: ch,
		Unsubscribe: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[accountID]; ok {
				if got, ok := set[id]; ok {
					delete(set, id)
					close(got)
				}
				if len(set) == 0 {
					delete(b.subs, accountID)
				}
			}
		},
	}
}

// Publish delivers evt to every subscriber of its account.
func (b *TrialEventBus) Publish(evt TrialEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[evt.AccountID] {
		select {
		case ch <- evt:
		default: // slow subscriber, drop
		}
	}
}
