package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSlot_Unwritten(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		got, err := b.ReadSlot(context.Background(), testAccount(1), testSlot(1), 10, 4)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 0, 0}, got)
	})
}

func TestReadSlot_ZeroPadsPastWrittenData(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.WriteSlot(ctx, testAccount(1), testSlot(1), 0, []byte{1, 2, 3}))

		got, err := b.ReadSlot(ctx, testAccount(1), testSlot(1), 1, 6)
		require.NoError(t, err)
		assert.Equal(t, []byte{2, 3, 0, 0, 0, 0}, got)

		got, err = b.ReadSlot(ctx, testAccount(1), testSlot(1), 100, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0}, got)
	})
}

func TestWriteSlot_ExtendsWithZeros(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.WriteSlot(ctx, testAccount(1), testSlot(1), 0, []byte{0xaa}))
		require.NoError(t, b.WriteSlot(ctx, testAccount(1), testSlot(1), 4, []byte{0xbb, 0xcc}))

		got, err := b.ReadSlot(ctx, testAccount(1), testSlot(1), 0, 6)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xaa, 0, 0, 0, 0xbb, 0xcc}, got)
	})
}

func TestWriteSlot_OverwritesInPlace(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.WriteSlot(ctx, testAccount(1), testSlot(1), 0, []byte{1, 2, 3, 4}))
		require.NoError(t, b.WriteSlot(ctx, testAccount(1), testSlot(1), 1, []byte{9, 9}))

		got, err := b.ReadSlot(ctx, testAccount(1), testSlot(1), 0, 4)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 9, 9, 4}, got)
	})
}

func TestSlots_IsolatedByAccountAndSlot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		require.NoError(t, b.WriteSlot(ctx, testAccount(1), testSlot(1), 0, []byte{1}))
		require.NoError(t, b.WriteSlot(ctx, testAccount(2), testSlot(1), 0, []byte{2}))
		require.NoError(t, b.WriteSlot(ctx, testAccount(1), testSlot(2), 0, []byte{3}))

		for _, tt := range []struct {
			account, slot byte
			want          byte
		}{
			{1, 1, 1},
			{2, 1, 2},
			{1, 2, 3},
			{2, 2, 0},
		} {
			got, err := b.ReadSlot(ctx, testAccount(tt.account), testSlot(tt.slot), 0, 1)
			require.NoError(t, err)
			assert.Equal(t, []byte{tt.want}, got, "account %d slot %d", tt.account, tt.slot)
		}
	})
}

func TestSlots_PersistAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/slots.db"
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteSlot(ctx, testAccount(1), testSlot(1), 0, []byte("hello")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.ReadSlot(ctx, testAccount(1), testSlot(1), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}
