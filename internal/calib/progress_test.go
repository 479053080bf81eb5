package calib

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelEmit(t *testing.T) {
	ch := NewChannel(4)
	ch.Emit(1, 3, "a.png")
	ch.Emit(2, 3, "b.png")

	require.Len(t, ch.Events(), 2)
	assert.Equal(t, Progress{Step: 1, Total: 3, Label: "a.png"}, <-ch.Events())
	assert.Equal(t, Progress{Step: 2, Total: 3, Label: "b.png"}, <-ch.Events())
	assert.Zero(t, ch.Dropped())
}

func TestChannelDropsWhenFull(t *testing.T) {
	ch := NewChannel(2)
	for i := 1; i <= 5; i++ {
		ch.Emit(i, 5, "")
	}
	assert.Len(t, ch.Events(), 2)
	assert.EqualValues(t, 3, ch.Dropped())
}

func TestChannelDefaultBuffer(t *testing.T) {
	ch := NewChannel(0)
	assert.Equal(t, defaultChannelBuffer, cap(ch.events))
}

func TestChannelClearStop(t *testing.T) {
	ch := NewChannel(1)
	ch.RequestStop()
	require.True(t, ch.IsStopRequested())
	ch.ClearStop()
	assert.False(t, ch.IsStopRequested())
}

func TestChannelStop(t *testing.T) {
	ch := NewChannel(1)
	assert.False(t, ch.IsStopRequested())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch.RequestStop()
		}()
	}
	wg.Wait()
	assert.True(t, ch.IsStopRequested())
}
