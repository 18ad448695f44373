package eventbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/eventbus"
)

func TestBusPublishDeliver(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	sub := bus.Subscribe(eventbus.TopicActions)
	defer sub.Close()

	a := action.Destroy("desk")
	bus.Publish(context.Background(), eventbus.Envelope{
		Topic:   eventbus.TopicActions,
		Source:  eventbus.SourceStore,
		Payload: a,
	})

	select {
	case env := <-sub.C():
		got, ok := env.Payload.(action.Action)
		require.True(t, ok, "payload type %T", env.Payload)
		assert.Equal(t, a, got)
		assert.Equal(t, eventbus.SourceStore, env.Source)
		assert.False(t, env.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	assert.Equal(t, uint64(1), bus.Metrics().PublishTotal)
}

func TestBusDropOldest(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe(eventbus.TopicActions, eventbus.WithSubscriptionBuffer(1))
	defer sub.Close()

	ctx := context.Background()
	bus.Publish(ctx, eventbus.Envelope{Topic: eventbus.TopicActions, Payload: 1})
	bus.Publish(ctx, eventbus.Envelope{Topic: eventbus.TopicActions, Payload: 2})

	env := <-sub.C()
	assert.Equal(t, 2, env.Payload)
	assert.Equal(t, uint64(1), sub.Dropped())
	assert.Equal(t, uint64(1), bus.Metrics().DroppedTotal)
}

func TestBusDropNewest(t *testing.T) {
	bus := eventbus.New(eventbus.WithTopicPolicy(eventbus.TopicActions, eventbus.DeliveryPolicy{Strategy: eventbus.StrategyDropNewest}))
	sub := bus.Subscribe(eventbus.TopicActions, eventbus.WithSubscriptionBuffer(1))
	defer sub.Close()

	ctx := context.Background()
	bus.Publish(ctx, eventbus.Envelope{Topic: eventbus.TopicActions, Payload: 1})
	bus.Publish(ctx, eventbus.Envelope{Topic: eventbus.TopicActions, Payload: 2})

	env := <-sub.C()
	assert.Equal(t, 1, env.Payload)
	assert.Equal(t, uint64(1), sub.Dropped())
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe(eventbus.TopicActions)
	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)

	// Publishing after close must not panic.
	bus.Publish(context.Background(), eventbus.Envelope{Topic: eventbus.TopicActions, Payload: 1})
}

func TestSubscriptionClosedByContext(t *testing.T) {
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(eventbus.TopicActions, eventbus.WithContext(ctx))

	cancel()

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed by its context")
	}
}

func TestNilBus(t *testing.T) {
	var bus *eventbus.Bus
	bus.Publish(context.Background(), eventbus.Envelope{Topic: eventbus.TopicActions})
	bus.Shutdown()

	sub := bus.Subscribe(eventbus.TopicActions)
	_, ok := <-sub.C()
	assert.False(t, ok)
	sub.Close()

	typed := eventbus.SubscribeTo(bus, eventbus.Actions)
	_, ok = <-typed.C()
	assert.False(t, ok)
	typed.Close()
}

func TestTypedSubscriptionSkipsMismatchedPayloads(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	sub := eventbus.SubscribeTo(bus, eventbus.Actions)
	defer sub.Close()

	ctx := context.Background()
	bus.Publish(ctx, eventbus.Envelope{Topic: eventbus.TopicActions, Payload: "not an action"})
	want := action.SetInputDevice("mic-1")
	eventbus.Publish(ctx, bus, eventbus.Actions, eventbus.SourceStore, want)

	select {
	case env := <-sub.C():
		assert.Equal(t, want, env.Payload)
		assert.Equal(t, eventbus.TopicActions, env.Topic)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for typed event")
	}
}

func TestConsumeStopsWhenSubscriptionCloses(t *testing.T) {
	bus := eventbus.New()
	sub := eventbus.SubscribeTo(bus, eventbus.Actions)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []string
	)
	wg.Add(1)
	go eventbus.Consume(context.Background(), sub, &wg, func(a action.Action) {
		mu.Lock()
		got = append(got, a.Type)
		mu.Unlock()
	})

	a := action.Destroy("x")
	eventbus.Publish(context.Background(), bus, eventbus.Actions, eventbus.SourceStore, a)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)

	sub.Close()
	wg.Wait()
	assert.Equal(t, []string{a.Type}, got)
}
