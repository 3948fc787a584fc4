package deferred

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	data   []byte
	err    error
	reads  int
	closes int
}

func (s *countingSource) Read() ([]byte, error) {
	s.reads++
	return s.data, s.err
}

func (s *countingSource) Close() error {
	s.closes++
	return nil
}

func atoi(b []byte) (int, error) {
	return strconv.Atoi(string(b))
}

func TestForceIsIdempotent(t *testing.T) {
	src := &countingSource{data: []byte("42")}
	h := New(src, atoi)

	assert.False(t, h.Forced())

	v1, err1 := h.Force()
	v2, err2 := h.Force()

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, 42, v1)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, src.reads)
	assert.Equal(t, 1, src.closes)
	assert.True(t, h.Forced())
}

func TestForceCachesReadError(t *testing.T) {
	boom := errors.New("reset")
	src := &countingSource{err: boom}
	h := New(src, atoi)

	_, err1 := h.Force()
	_, err2 := h.Force()

	assert.ErrorIs(t, err1, boom)
	assert.ErrorIs(t, err2, boom)
	assert.Equal(t, 1, src.reads)
	assert.Equal(t, 1, src.closes, "resource released even on failure")
}

func TestForceCachesDecodeError(t *testing.T) {
	src := &countingSource{data: []byte("nope")}
	h := New(src, atoi)

	_, err1 := h.Force()
	_, err2 := h.Force()

	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Equal(t, 1, src.reads)
}

func TestCloseWithoutForce(t *testing.T) {
	src := &countingSource{data: []byte("1")}
	h := New(src, atoi)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Equal(t, 1, src.closes)
	assert.Equal(t, 0, src.reads)

	_, err := h.Force()
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, 0, src.reads)
}

func TestCloseAfterForce(t *testing.T) {
	src := &countingSource{data: []byte("1")}
	h := New(src, atoi)

	_, err := h.Force()
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Equal(t, 1, src.closes)
}

func TestFailed(t *testing.T) {
	boom := errors.New("boom")
	h := Failed[string](boom)

	_, err := h.Force()
	assert.ErrorIs(t, err, boom)
	assert.True(t, h.Forced())
	assert.NoError(t, h.Close())
}

func TestMap(t *testing.T) {
	src := &countingSource{data: []byte("20")}
	h := Map(New(src, atoi), func(n int) (int, error) { return n + 1, nil })

	v, err := h.Force()
	require.NoError(t, err)
	assert.Equal(t, 21, v)

	v, err = h.Force()
	require.NoError(t, err)
	assert.Equal(t, 21, v)
	assert.Equal(t, 1, src.reads)
	assert.Equal(t, 1, src.closes)
}

func TestMapPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	h := Map(New(&countingSource{err: boom}, atoi), func(n int) (int, error) { return n, nil })

	_, err := h.Force()
	assert.ErrorIs(t, err, boom)
}

func TestMapCloseReleasesInner(t *testing.T) {
	src := &countingSource{data: []byte("1")}
	h := Map(New(src, atoi), func(n int) (int, error) { return n, nil })

	require.NoError(t, h.Close())
	assert.Equal(t, 1, src.closes)
	assert.Equal(t, 0, src.reads)
}
