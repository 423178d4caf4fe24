package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortune-entitlements-service/models"
)

func TestTrialEventBus_PublishReachesOnlyMatchingAccount(t *testing.T) {
	bus := NewTrialEventBus()
	subA := bus.Subscribe(accountA)
	subB := bus.Subscribe(accountB)
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	evt := TrialEvent{AccountID: accountA, Status: models.TrialStatusActive, At: time.Now().UTC()}
	bus.Publish(evt)

	select {
	case got := <-subA.C:
		assert.Equal(t, models.TrialStatusActive, got.Status)
	case <-time.After(time.Second):
		t.Fatal("subscriber A never received the event")
	}

	select {
	case got := <-subB.C:
		t.Fatalf("subscriber B received foreign event %+v", got)
	default:
	}
}

func TestTrialEventBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewTrialEventBus()
	sub := bus.Subscribe(accountA)

	sub.Unsubscribe()
	_, open := <-sub.C
	assert.False(t, open)

	// Publishing after unsubscribe is a no-op, and double unsubscribe is safe.
	bus.Publish(TrialEvent{AccountID: accountA, Status: models.TrialStatusExpired})
	sub.Unsubscribe()
}

func TestTrialEventBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewTrialEventBus()
	sub := bus.Subscribe(accountA)
	defer sub.Unsubscribe()

	// Overfill the buffer without draining; Publish must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			bus.Publish(TrialEvent{AccountID: accountA, Status: models.TrialStatusActive})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// Buffered events are still there, capped at the channel size.
	drained := 0
	for {
		select {
		case <-sub.C:
			drained++
			continue
		default:
		}
		break
	}
	require.LessOrEqual(t, drained, 8)
	require.Greater(t, drained, 0)
}

func TestTrialEventBus_FanOutToMultipleSubscribers(t *testing.T) {
	bus := NewTrialEventBus()
	first := bus.Subscribe(accountA)
	second := bus.Subscribe(accountA)
	defer first.Unsubscribe()
	defer second.Unsubscribe()

	bus.Publish(TrialEvent{AccountID: accountA, Status: models.TrialStatusConverted})

	for _, sub := range []*TrialSubscription{first, second} {
		select {
		case got := <-sub.C:
			assert.Equal(t, models.TrialStatusConverted, got.Status)
		case <-time.After(time.Second):
			t.Fatal("a subscriber missed the fan-out")
		}
	}
}
