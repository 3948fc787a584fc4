package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
)

func TestLeaderResult_AbsentUntilAppended(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()

		_, ok, err := b.LeaderResult(ctx, "tx-1", 0)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = b.Append(ctx, Entry{
			Tx:     "tx-1",
			Node:   "leader",
			Kind:   KindLeaderResult,
			CallNo: 0,
			Result: result.Return{Value: calldata.NewInt(42)},
		})
		require.NoError(t, err)

		got, ok, err := b.LeaderResult(ctx, "tx-1", 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, result.Equal(result.Return{Value: calldata.NewInt(42)}, got))

		_, ok, err = b.LeaderResult(ctx, "tx-1", 1)
		require.NoError(t, err)
		assert.False(t, ok, "other call numbers stay absent")

		_, ok, err = b.LeaderResult(ctx, "tx-2", 0)
		require.NoError(t, err)
		assert.False(t, ok, "other transactions stay absent")
	})
}

func TestAppend_NondetIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		e := Entry{Tx: "tx-1", Node: "v1", Kind: KindVote, CallNo: 3, Result: result.Vote(true)}

		first, err := b.Append(ctx, e)
		require.NoError(t, err)

		e.Result = result.Vote(false)
		second, err := b.Append(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		entries, err := b.Entries(ctx, "tx-1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, result.Equal(result.Vote(true), entries[0].Result), "first vote wins")
	})
}

func TestAppend_MessagesNotDeduplicated(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		e := Entry{Tx: "tx-1", Node: "leader", Kind: KindEvent, Detail: calldata.Map{"n": calldata.NewInt(1)}}

		_, err := b.Append(ctx, e)
		require.NoError(t, err)
		_, err = b.Append(ctx, e)
		require.NoError(t, err)

		entries, err := b.Entries(ctx, "tx-1")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestEntries_OrderAndContent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		appends := []Entry{
			{Tx: "tx-1", Node: "leader", Kind: KindLeaderResult, CallNo: 0, Result: result.UserError{Message: "no"}},
			{Tx: "tx-2", Node: "leader", Kind: KindOutcome, Result: result.Rollback{Message: "x"}},
			{Tx: "tx-1", Node: "leader", Kind: KindMessage, Detail: calldata.Map{"to": calldata.Bytes{1, 2}}},
			{Tx: "tx-1", Node: "leader", Kind: KindOutcome, Result: result.Return{Value: calldata.Null{}}},
		}
		for _, e := range appends {
			_, err := b.Append(ctx, e)
			require.NoError(t, err)
		}

		entries, err := b.Entries(ctx, "tx-1")
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.Equal(t, KindLeaderResult, entries[0].Kind)
		assert.Equal(t, KindMessage, entries[1].Kind)
		assert.Equal(t, KindOutcome, entries[2].Kind)
		assert.Less(t, entries[0].Seq, entries[1].Seq)
		assert.Less(t, entries[1].Seq, entries[2].Seq)

		assert.True(t, result.Equal(result.UserError{Message: "no"}, entries[0].Result))
		assert.Nil(t, entries[1].Result)
		assert.True(t, calldata.Equal(calldata.Map{"to": calldata.Bytes{1, 2}}, entries[1].Detail))

		txs, err := b.Transactions(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"tx-1", "tx-2"}, txs)
	})
}

func TestEntries_EmptyNotNil(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		entries, err := b.Entries(context.Background(), "nothing")
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})
}
