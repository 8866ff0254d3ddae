package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualScheduler_RunsInOrder(t *testing.T) {
	s := NewManualScheduler()
	var order []int
	s.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	s.AfterFunc(time.Second, func() { order = append(order, 1) })

	s.Advance(500 * time.Millisecond)
	assert.Empty(t, order)
	assert.Equal(t, 2, s.Pending())

	s.Advance(5 * time.Second)
	assert.Equal(t, []int{1, 2}, order)
	assert.Zero(t, s.Pending())
}

func TestManualScheduler_Stop(t *testing.T) {
	s := NewManualScheduler()
	fired := false
	timer := s.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	s.Advance(time.Minute)
	assert.False(t, fired)
}

func TestManualScheduler_StopAfterFire(t *testing.T) {
	s := NewManualScheduler()
	timer := s.AfterFunc(time.Second, func() {})

	s.Advance(time.Second)

	assert.False(t, timer.Stop())
}

func TestEventBroadcaster_CloseDeliversFinalEvent(t *testing.T) {
	var b EventBroadcaster
	ch := b.AddListener()

	b.SendEvent(Event{Type: EventState})
	b.Close(Event{Type: EventClosed})
	b.Close(Event{Type: EventClosed})

	var got []string
	for ev := range ch {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []string{EventState, EventClosed}, got)

	late := b.AddListener()
	_, ok := <-late
	assert.False(t, ok, "listener added after close must be closed")
}

func TestEventBroadcaster_RemoveListener(t *testing.T) {
	var b EventBroadcaster
	ch := b.AddListener()

	b.RemoveListener(ch)
	b.SendEvent(Event{Type: EventState})

	_, ok := <-ch
	assert.False(t, ok)
}
