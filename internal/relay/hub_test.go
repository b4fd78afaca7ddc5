package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAudienceOnly(t *testing.T) {
	hub := NewHub(4)
	client := hub.Subscribe(1)
	pro := hub.Subscribe(2)
	other := hub.Subscribe(3)
	defer client.Close()
	defer pro.Close()
	defer other.Close()

	n := hub.Publish(Event{Table: TableServiceRequests, Op: OpUpdate, RowID: 9, RequestID: 9, Audience: []uint{1, 2, 2}})
	assert.Equal(t, 2, n)

	ev := <-client.Events()
	assert.Equal(t, uint(9), ev.RequestID)
	assert.False(t, ev.At.IsZero())
	require.Len(t, pro.Events(), 1)
	assert.Len(t, other.Events(), 0)
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe(1)
	defer sub.Close()

	assert.Equal(t, 1, hub.Publish(Event{Table: TableMessages, Audience: []uint{1}}))
	assert.Equal(t, 0, hub.Publish(Event{Table: TableMessages, Audience: []uint{1}}))
}

func TestCloseUnsubscribes(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe(5)
	assert.Equal(t, 1, hub.SubscriberCount())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.SubscriberCount())
	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Publish(Event{Audience: []uint{5}}))
}
