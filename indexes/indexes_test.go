// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
)

func newTestAssigner(t *testing.T) *Assigner {
	t.Helper()

	a, err := NewAssigner(log.NoLog{}, metric.NewRegistry())
	require.NoError(t, err)
	return a
}

func TestJoinAssignsDenseSlots(t *testing.T) {
	require := require.New(t)

	a := newTestAssigner(t)
	require.NoError(a.InitializeQuorum(0, 0))

	id1 := ids.GenerateTestID()
	id2 := ids.GenerateTestID()
	id3 := ids.GenerateTestID()

	count, err := a.Join(0, id1, 10)
	require.NoError(err)
	require.Equal(uint32(1), count)

	count, err = a.Join(0, id2, 20)
	require.NoError(err)
	require.Equal(uint32(2), count)

	count, err = a.Join(0, id3, 30)
	require.NoError(err)
	require.Equal(uint32(3), count)

	for i, id := range []ids.ID{id1, id2, id3} {
		slot, err := a.Slot(0, id)
		require.NoError(err)
		require.Equal(uint32(i), slot)
	}

	roster, err := a.RosterAt(0, 30)
	require.NoError(err)
	require.Equal([]ids.ID{id1, id2, id3}, roster)
}

func TestLeaveSwapsLastIntoFreedSlot(t *testing.T) {
	require := require.New(t)

	a := newTestAssigner(t)
	require.NoError(a.InitializeQuorum(0, 0))

	id1 := ids.GenerateTestID()
	id2 := ids.GenerateTestID()
	id3 := ids.GenerateTestID()
	for i, id := range []ids.ID{id1, id2, id3} {
		_, err := a.Join(0, id, uint64(10*(i+1)))
		require.NoError(err)
	}

	// Removing the first member moves the last member into slot 0.
	require.NoError(a.Leave(0, id1, 40))

	slot, err := a.Slot(0, id3)
	require.NoError(err)
	require.Zero(slot)

	_, err = a.Slot(0, id1)
	require.ErrorIs(err, ErrNotMember)

	count, err := a.Count(0)
	require.NoError(err)
	require.Equal(uint32(2), count)

	roster, err := a.RosterAt(0, 40)
	require.NoError(err)
	require.Equal([]ids.ID{id3, id2}, roster)

	// The pre-departure roster is still reconstructible.
	roster, err = a.RosterAt(0, 39)
	require.NoError(err)
	require.Equal([]ids.ID{id1, id2, id3}, roster)

	// Removing the member already in the last slot shrinks without a swap.
	require.NoError(a.Leave(0, id2, 50))
	roster, err = a.RosterAt(0, 50)
	require.NoError(err)
	require.Equal([]ids.ID{id3}, roster)
}

func TestReplaceKeepsCount(t *testing.T) {
	require := require.New(t)

	a := newTestAssigner(t)
	require.NoError(a.InitializeQuorum(0, 0))

	id1 := ids.GenerateTestID()
	id2 := ids.GenerateTestID()
	id3 := ids.GenerateTestID()
	for i, id := range []ids.ID{id1, id2} {
		_, err := a.Join(0, id, uint64(10*(i+1)))
		require.NoError(err)
	}

	require.NoError(a.Replace(0, id1, id3, 30))

	count, err := a.Count(0)
	require.NoError(err)
	require.Equal(uint32(2), count)

	// The replacement fills the evicted member's slot with the previous
	// last member and appends the joiner at the end.
	roster, err := a.RosterAt(0, 30)
	require.NoError(err)
	require.Equal([]ids.ID{id2, id3}, roster)

	roster, err = a.RosterAt(0, 29)
	require.NoError(err)
	require.Equal([]ids.ID{id1, id2}, roster)

	require.ErrorIs(a.Replace(0, id1, ids.GenerateTestID(), 40), ErrNotMember)
}

func TestRosterAtUsesCache(t *testing.T) {
	require := require.New(t)

	a := newTestAssigner(t)
	require.NoError(a.InitializeQuorum(0, 0))

	id := ids.GenerateTestID()
	_, err := a.Join(0, id, 10)
	require.NoError(err)

	first, err := a.RosterAt(0, 10)
	require.NoError(err)
	second, err := a.RosterAt(0, 10)
	require.NoError(err)
	require.Equal(first, second)
}

func TestRosterAtCallersOwnReturnedSlice(t *testing.T) {
	require := require.New(t)

	a := newTestAssigner(t)
	require.NoError(a.InitializeQuorum(0, 0))

	id1 := ids.GenerateTestID()
	id2 := ids.GenerateTestID()
	_, err := a.Join(0, id1, 10)
	require.NoError(err)
	_, err = a.Join(0, id2, 20)
	require.NoError(err)

	// Scribbling over a returned roster must not leak into later queries,
	// whether the first query filled the cache or hit it.
	for i := 0; i < 2; i++ {
		roster, err := a.RosterAt(0, 20)
		require.NoError(err)
		roster[0] = ids.GenerateTestID()
	}

	roster, err := a.RosterAt(0, 20)
	require.NoError(err)
	require.Equal([]ids.ID{id1, id2}, roster)
}

func TestUninitializedQuorum(t *testing.T) {
	require := require.New(t)

	a := newTestAssigner(t)

	_, err := a.Join(1, ids.GenerateTestID(), 10)
	require.ErrorIs(err, ErrNotInitialized)
	require.ErrorIs(a.Leave(1, ids.GenerateTestID(), 10), ErrNotInitialized)
	_, err = a.Count(1)
	require.ErrorIs(err, ErrNotInitialized)
	_, err = a.RosterAt(1, 10)
	require.ErrorIs(err, ErrNotInitialized)
}
