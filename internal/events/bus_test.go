package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(nil)
	bus.now = func() time.Time { return time.UnixMilli(1000) }

	var got []Event
	unsubscribe := bus.Subscribe(func(e Event) { got = append(got, e) })

	bus.Publish(Event{Kind: KindSyncStarted})
	bus.Publish(Event{Kind: KindSyncProgress, Current: 1, Total: 2, At: 5})
	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Kind: KindSyncCompleted})

	require.Len(t, got, 2)
	assert.Equal(t, Event{Kind: KindSyncStarted, At: 1000}, got[0])
	assert.Equal(t, Event{Kind: KindSyncProgress, Current: 1, Total: 2, At: 5}, got[1])
	assert.Equal(t, 0, bus.Subscribers())
}

func TestBus_PanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(func(Event) { panic("boom") })
	delivered := 0
	bus.Subscribe(func(Event) { delivered++ })

	assert.NotPanics(t, func() { bus.Publish(Event{Kind: KindSyncStarted}) })
	assert.Equal(t, 1, delivered)
}

func TestBus_ConcurrentSubscribeAndPublish(t *testing.T) {
	bus := NewBus(nil)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsubscribe := bus.Subscribe(func(Event) {})
			unsubscribe()
		}()
		go func() {
			defer wg.Done()
			bus.Publish(Event{Kind: KindSyncProgress})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.Subscribers())
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func TestForward(t *testing.T) {
	bus := NewBus(nil)
	pub := &recordingPublisher{}
	stop := Forward(bus, pub, time.Second, nil)

	bus.Publish(Event{Kind: KindMigrationCompleted, Synced: 3, At: 1})
	stop()
	bus.Publish(Event{Kind: KindSyncStarted, At: 2})

	require.Len(t, pub.events, 1)
	assert.Equal(t, KindMigrationCompleted, pub.events[0].Kind)
	assert.Equal(t, 3, pub.events[0].Synced)
}

func TestForward_PublishFailureIsNotFatal(t *testing.T) {
	bus := NewBus(nil)
	pub := &recordingPublisher{err: errors.New("connection refused")}
	Forward(bus, pub, time.Second, nil)

	assert.NotPanics(t, func() { bus.Publish(Event{Kind: KindSyncStarted}) })
	assert.Len(t, pub.events, 1)
}

func TestNewRedisPublisher_Validation(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), " ", "learnsync:events", nil)
	assert.Error(t, err)
	_, err = NewRedisPublisher(context.Background(), "localhost:6379", "", nil)
	assert.Error(t, err)
}
