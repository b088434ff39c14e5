package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableGetPutDelete(t *testing.T) {
	tbl := NewTable()

	_, ok := tbl.Get(String("missing"))
	assert.False(t, ok)

	require.NoError(t, tbl.Put(String("a"), Number(1)))
	v, ok := tbl.Get(String("a"))
	require.True(t, ok)
	assert.Equal(t, Number(1), v)

	require.NoError(t, tbl.Put(String("a"), Number(2)), "put overwrites an existing key")
	v, _ = tbl.Get(String("a"))
	assert.Equal(t, Number(2), v)

	assert.True(t, tbl.Delete(String("a")))
	_, ok = tbl.Get(String("a"))
	assert.False(t, ok)
	assert.False(t, tbl.Delete(String("a")), "deleting an absent key reports false")
}

func TestTablePutRejectsNilValue(t *testing.T) {
	tbl := NewTable()
	err := tbl.Put(String("a"), Nil())
	assert.ErrorIs(t, err, errNilBinding)
}

func TestTablePutRejectsUnhashableKey(t *testing.T) {
	tbl := NewTable()
	err := tbl.Put(ErrorValue("x"), Number(1))
	assert.Error(t, err)
}

func TestTableGetUnhashableKeyIsJustAMiss(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Get(EOFValue())
	assert.False(t, ok)
}

func TestTableGrowsPastInitialCapacity(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < tableInitialCapacity*2; i++ {
		require.NoError(t, tbl.Put(Number(float64(i)), Number(float64(i*2))))
	}
	assert.Equal(t, tableInitialCapacity*2, tbl.Len())
	for i := 0; i < tableInitialCapacity*2; i++ {
		v, ok := tbl.Get(Number(float64(i)))
		require.True(t, ok)
		assert.Equal(t, Number(float64(i*2)), v)
	}
}

func TestTableReinsertionAfterDeleteKeepsLaterEntriesFindable(t *testing.T) {
	// Build a cluster of keys that collide on the same initial probe slot so
	// that deleting the first one exercises the probe-run re-insertion in
	// Table.Delete, then confirm every surviving key is still reachable.
	tbl := &Table{slots: make([]tableSlot, 4)}
	keys := []Value{Number(0), Number(4), Number(8), Number(12)}
	for i, k := range keys {
		require.NoError(t, tbl.Put(k, Number(float64(i))))
	}

	require.True(t, tbl.Delete(keys[0]))
	for i := 1; i < len(keys); i++ {
		v, ok := tbl.Get(keys[i])
		require.True(t, ok, "key %v should survive the probe-run re-insertion", keys[i])
		assert.Equal(t, Number(float64(i)), v)
	}
}

func TestHashMapIsATableUnderOneRoof(t *testing.T) {
	h := NewHashMap()
	require.NoError(t, h.Put(String("k"), Number(1)))
	v, ok := h.Get(String("k"))
	require.True(t, ok)
	assert.Equal(t, Number(1), v)
	assert.Equal(t, 1, h.Len())
}
