package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessBusDispatches(t *testing.T) {
	bus := NewInProcessBus()

	var mu sync.Mutex
	var received []*Task
	bus.Subscribe(TypeAnalyzeRecording, func(_ context.Context, task *Task) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, task)
		return nil
	})

	err := bus.Publish(context.Background(), &Task{Type: TypeAnalyzeRecording, CallID: "c-1"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "c-1", received[0].CallID)
	assert.NotEmpty(t, received[0].ID)
	assert.False(t, received[0].CreatedAt.IsZero())
}

func TestInProcessBusNoHandlerIsNotAnError(t *testing.T) {
	bus := NewInProcessBus()
	err := bus.Publish(context.Background(), &Task{Type: TypeAnalyzeRecording, CallID: "c-1"})
	assert.NoError(t, err)
}

func TestInProcessBusHandlerErrorIsSwallowed(t *testing.T) {
	bus := NewInProcessBus()
	done := make(chan struct{})
	bus.Subscribe(TypeAnalyzeRecording, func(_ context.Context, _ *Task) error {
		close(done)
		return context.DeadlineExceeded
	})

	require.NoError(t, bus.Publish(context.Background(), &Task{Type: TypeAnalyzeRecording}))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}
