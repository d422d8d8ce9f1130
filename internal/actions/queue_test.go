package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundedQueue_OldestFirst(t *testing.T) {
	q := newBoundedQueue[int](3)
	assert.Empty(t, q.snapshot())

	assert.False(t, q.push(1))
	assert.False(t, q.push(2))
	assert.Equal(t, []int{1, 2}, q.snapshot())

	assert.False(t, q.push(3))
	assert.True(t, q.push(4), "full queue evicts")
	assert.True(t, q.push(5))
	assert.Equal(t, []int{3, 4, 5}, q.snapshot())
	assert.Equal(t, 3, q.len())
}

func TestBoundedQueue_MinimumCapacity(t *testing.T) {
	q := newBoundedQueue[string](0)
	q.push("a")
	q.push("b")
	assert.Equal(t, []string{"b"}, q.snapshot())
}
