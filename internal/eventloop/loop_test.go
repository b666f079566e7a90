package eventloop_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/eventloop"
)

// TestLoop_RunPending_OneTurn tests that jobs posted during a turn run on the next turn.
func TestLoop_RunPending_OneTurn(t *testing.T) {
	loop := eventloop.New()
	var order []string

	loop.Post(func() {
		order = append(order, "first")
		loop.Post(func() { order = append(order, "nested") })
	})
	loop.Post(func() { order = append(order, "second") })

	assert.Equal(t, 2, loop.RunPending())
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 1, loop.Len())

	assert.Equal(t, 1, loop.Drain())
	assert.Equal(t, []string{"first", "second", "nested"}, order)
}

// TestLoop_Run_Invoke tests running the loop on its own goroutine.
func TestLoop_Run_Invoke(t *testing.T) {
	loop := eventloop.New()
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	counter := 0
	for i := 0; i < 10; i++ {
		require.NoError(t, loop.Invoke(context.Background(), func() { counter++ }))
	}
	assert.Equal(t, 10, counter)

	cancel()
	wg.Wait()
}

// TestLoop_Invoke_ContextCancelled tests that Invoke gives up when nobody runs the loop.
func TestLoop_Invoke_ContextCancelled(t *testing.T) {
	loop := eventloop.New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := loop.Invoke(ctx, func() {})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestLoop_Close tests that a closed loop rejects work but keeps what was queued.
func TestLoop_Close(t *testing.T) {
	loop := eventloop.New()
	ran := false
	assert.True(t, loop.Post(func() { ran = true }))

	loop.Close()

	assert.False(t, loop.Post(func() {}))
	assert.ErrorIs(t, loop.Invoke(context.Background(), func() {}), eventloop.ErrClosed)
	loop.Drain()
	assert.True(t, ran)
}
