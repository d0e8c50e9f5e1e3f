package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixora/pixora/pkg/channels/gochannel"
	"github.com/pixora/pixora/pkg/eventbus"
	"github.com/pixora/pixora/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestPublishAndSubscribe(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.WorkflowCompleted, 1)

	require.NoError(t, bus.Handle(events.WorkflowCompletedEvent, func(_ context.Context, event any) error {
		completed, ok := event.(*events.WorkflowCompleted)
		require.True(t, ok)
		received <- completed

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "wf-1", events.WorkflowCompleted{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.WorkflowCompletedEvent,
			Timestamp:  time.Now(),
			WorkflowID: "wf-1",
			UserID:     "user-1",
		},
		ImageCount: 3,
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "wf-1", event.WorkflowID)
		assert.Equal(t, 3, event.ImageCount)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnhandledEventTypeIsAcked(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.StepCompleted, 2)

	require.NoError(t, bus.Handle(events.StepCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.StepCompleted)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for this type; it must not wedge the stream.
	require.NoError(t, bus.Publish(ctx, "wf-1", events.WorkflowStarted{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.WorkflowStartedEvent, WorkflowID: "wf-1"},
	}))

	require.NoError(t, bus.Publish(ctx, "wf-1", events.StepCompleted{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.StepCompletedEvent, WorkflowID: "wf-1"},
		StepName:  "categorize",
	}))

	select {
	case event := <-received:
		assert.Equal(t, "categorize", event.StepName)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestGenerateIDUnique(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
