package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishFansOutAndFilters(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	firings, unsubFirings := b.Subscribe(4, TypeFiringFinished)
	defer unsubFirings()

	b.Publish(Event{Type: TypeConfigApplied})
	b.Publish(Event{Type: TypeFiringFinished, Data: 3})

	require.Len(t, all, 2)
	require.Len(t, firings, 1)
	e := <-firings
	require.Equal(t, 3, e.Data)
	require.False(t, e.Time.IsZero())
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})

	require.Len(t, ch, 1)
	require.Equal(t, "a", (<-ch).Type)
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
	b.Publish(Event{Type: "after"})
}
