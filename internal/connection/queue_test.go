package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socsync/pkg/models"
)

func item(id string) outbound {
	return outbound{msg: &models.Message{ID: id}, data: []byte(id)}
}

func itemIDs(items []outbound) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.msg.ID
	}
	return out
}

func TestQueuePushDrainKeepsOrder(t *testing.T) {
	q := NewQueue(3)
	for _, id := range []string{"a", "b", "c"} {
		_, dropped := q.Push(item(id))
		require.False(t, dropped)
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"a", "b", "c"}, itemIDs(q.Drain()))
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestQueueEvictsOldest(t *testing.T) {
	q := NewQueue(2)
	q.Push(item("a"))
	q.Push(item("b"))

	evicted, dropped := q.Push(item("c"))
	require.True(t, dropped)
	assert.Equal(t, "a", evicted.msg.ID)

	evicted, dropped = q.Push(item("d"))
	require.True(t, dropped)
	assert.Equal(t, "b", evicted.msg.ID)

	assert.Equal(t, []string{"c", "d"}, itemIDs(q.Drain()))
}

func TestQueueRequeuePutsItemsFirst(t *testing.T) {
	q := NewQueue(3)
	q.Push(item("late"))

	dropped := q.Requeue([]outbound{item("x"), item("y"), item("z")})
	assert.Equal(t, []string{"x"}, itemIDs(dropped))
	assert.Equal(t, []string{"y", "z", "late"}, itemIDs(q.Drain()))
}

func TestQueueMinimumCapacity(t *testing.T) {
	q := NewQueue(0)
	assert.Equal(t, 1, q.Cap())
	q.Push(item("a"))
	evicted, dropped := q.Push(item("b"))
	assert.True(t, dropped)
	assert.Equal(t, "a", evicted.msg.ID)
}
