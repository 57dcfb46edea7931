package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToSubscriber(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	bus.Emit(TopicUploadStart, UploadStart{UploadID: "op-1", Filename: "a.txt"})

	ev := <-ch
	assert.Equal(t, TopicUploadStart, ev.Topic)
	payload := ev.Payload.(UploadStart)
	assert.Equal(t, "op-1", payload.UploadID)
}

func TestBus_NoSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	// Must return immediately with nobody listening.
	bus.Emit(TopicUploadComplete, UploadComplete{UploadID: "op-1"})
}

func TestBus_FullSubscriberDropsEvents(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Emit(TopicUploadProgress, UploadProgress{Part: 1})
	bus.Emit(TopicUploadProgress, UploadProgress{Part: 2})

	first := <-ch
	assert.Equal(t, int64(1), first.Payload.(UploadProgress).Part)

	select {
	case ev := <-ch:
		t.Fatalf("expected second event to be dropped, got %v", ev)
	default:
	}
}

func TestBus_CancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()

	_, open := <-ch
	require.False(t, open)

	// Emitting after cancel must not panic.
	bus.Emit(TopicUploadComplete, UploadComplete{})

	// Cancelling twice is safe.
	cancel()
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe(1)
	defer cancelA()
	b, cancelB := bus.Subscribe(1)
	defer cancelB()

	bus.Emit(TopicDownloadStart, DownloadStart{Filename: "x", TotalBytes: 9})

	assert.Equal(t, int64(9), (<-a).Payload.(DownloadStart).TotalBytes)
	assert.Equal(t, int64(9), (<-b).Payload.(DownloadStart).TotalBytes)
}
