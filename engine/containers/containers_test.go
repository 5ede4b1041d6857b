package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingWrapsAround(t *testing.T) {
	r := NewRing(3, func(i int) int { return i * 10 })
	require.Equal(t, 3, r.Len())

	seen := []int{}
	for i := 0; i < 5; i++ {
		v, err := r.Get()
		require.NoError(t, err)
		seen = append(seen, v)
		r.Next()
	}
	assert.Equal(t, []int{0, 10, 20, 0, 10}, seen)
	assert.Equal(t, 2, r.Index())

	r.Set(99)
	v, _ := r.Get()
	assert.Equal(t, 99, v)

	r.Reset()
	assert.Equal(t, 0, r.Index())
}

func TestEmptyRing(t *testing.T) {
	r := NewRing[string](0, nil)
	_, err := r.Get()
	assert.ErrorIs(t, err, ErrRingEmpty)
	assert.Equal(t, 0, r.Next())
}

func TestArenaStaleHandle(t *testing.T) {
	a := NewArena[string]()
	h1 := a.Insert("a")
	h2 := a.Insert("b")
	assert.Equal(t, 2, a.Len())

	v, ok := a.Remove(h1)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	h3 := a.Insert("c")
	_, ok = a.Get(h1)
	assert.False(t, ok, "stale handle must not alias the new occupant")
	v, ok = a.Get(h3)
	assert.True(t, ok)
	assert.Equal(t, "c", v)

	*a.Ptr(h2) = "bb"
	v, _ = a.Get(h2)
	assert.Equal(t, "bb", v)

	var zero Handle
	assert.False(t, zero.Valid())
	assert.Nil(t, a.Ptr(zero))

	count := 0
	a.Each(func(Handle, string) { count++ })
	assert.Equal(t, 2, count)
}
