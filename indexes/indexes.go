// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package indexes assigns each quorum member a dense slot index and keeps
// enough append-only history to reconstruct the exact ordered roster of a
// quorum at any past height. The live roster is compacted with swap-and-shrink
// on removal; the checkpoint trail is never rewritten.
package indexes

import (
	"errors"
	"fmt"
	"slices"

	"github.com/luxfi/cache/lru"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/history"
)

const rosterCacheSize = 64

var (
	ErrAlreadyInitialized = errors.New("quorum already initialized")
	ErrNotInitialized     = errors.New("quorum not initialized")
	ErrNotMember          = errors.New("operator is not a member of the quorum")
)

// quorumIndex is the live ordering of one quorum plus its history. Slots are
// always densely packed [0, len(roster)). Each slot ever used has its own
// checkpoint stream recording which operator occupied it from which height;
// the size stream bounds which slots are live at a given height.
type quorumIndex struct {
	roster []ids.ID
	slots  map[ids.ID]int

	slotStreams []*history.Stream[ids.ID]
	sizes       *history.Stream[uint32]

	// rosterCache is flushed on every mutation: a cached roster for a height
	// at or past the open checkpoints would otherwise go stale.
	rosterCache *lru.Cache[uint64, []ids.ID]
}

// Assigner owns one quorumIndex per initialized quorum.
//
// Assigner is not safe for concurrent use.
type Assigner struct {
	log     log.Logger
	quorums map[uint8]*quorumIndex

	rostersCached  metric.Counter
	rostersCreated metric.Counter
}

func NewAssigner(log log.Logger, registerer metric.Registerer) (*Assigner, error) {
	a := &Assigner{
		log:     log,
		quorums: make(map[uint8]*quorumIndex),
		rostersCached: metric.NewCounter(metric.CounterOpts{
			Name: "rosters_cached",
			Help: "Total number of roster reconstructions served from cache",
		}),
		rostersCreated: metric.NewCounter(metric.CounterOpts{
			Name: "rosters_created",
			Help: "Total number of rosters reconstructed from checkpoint streams",
		}),
	}
	err := errors.Join(
		registerer.Register(metric.AsCollector(a.rostersCached)),
		registerer.Register(metric.AsCollector(a.rostersCreated)),
	)
	return a, err
}

// InitializeQuorum seeds [quorum]'s size stream with zero members at [height].
// Must be called exactly once per quorum, before any membership update.
func (a *Assigner) InitializeQuorum(quorum uint8, height uint64) error {
	if _, ok := a.quorums[quorum]; ok {
		return fmt.Errorf("%w: quorum %d", ErrAlreadyInitialized, quorum)
	}
	q := &quorumIndex{
		slots:       make(map[ids.ID]int),
		sizes:       history.NewStream[uint32](),
		rosterCache: lru.NewCache[uint64, []ids.ID](rosterCacheSize),
	}
	if err := q.sizes.Append(height, 0); err != nil {
		return err
	}
	a.quorums[quorum] = q
	a.log.Debug("initialized index streams",
		log.Uint32("quorum", uint32(quorum)),
		log.Uint64("height", height),
	)
	return nil
}

// Initialized reports whether [quorum] has been initialized.
func (a *Assigner) Initialized(quorum uint8) bool {
	_, ok := a.quorums[quorum]
	return ok
}

// ReadyAt reports whether [quorum]'s streams accept an update at [height].
func (a *Assigner) ReadyAt(quorum uint8, height uint64) error {
	q, ok := a.quorums[quorum]
	if !ok {
		return fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	if err := q.sizes.ReadyAt(height); err != nil {
		return err
	}
	for _, stream := range q.slotStreams {
		if err := stream.ReadyAt(height); err != nil {
			return err
		}
	}
	return nil
}

// Join appends [operatorID] at the next free slot from [height] and returns
// the new member count.
func (a *Assigner) Join(quorum uint8, operatorID ids.ID, height uint64) (uint32, error) {
	q, ok := a.quorums[quorum]
	if !ok {
		return 0, fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	slot := len(q.roster)
	if err := q.assign(slot, operatorID, height); err != nil {
		return 0, err
	}
	size := uint32(slot + 1)
	if err := q.sizes.Append(height, size); err != nil {
		return 0, err
	}
	q.roster = append(q.roster, operatorID)
	q.slots[operatorID] = slot
	q.rosterCache.Flush()
	return size, nil
}

// Leave removes [operatorID] from [quorum] at [height]. If the freed slot is
// not the last one, the last member is swapped into it (with a checkpoint
// recording the move) before the roster shrinks.
func (a *Assigner) Leave(quorum uint8, operatorID ids.ID, height uint64) error {
	q, ok := a.quorums[quorum]
	if !ok {
		return fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	slot, ok := q.slots[operatorID]
	if !ok {
		return fmt.Errorf("%w: %s in quorum %d", ErrNotMember, operatorID, quorum)
	}
	last := len(q.roster) - 1
	if slot != last {
		moved := q.roster[last]
		if err := q.assign(slot, moved, height); err != nil {
			return err
		}
		q.roster[slot] = moved
		q.slots[moved] = slot
	}
	if err := q.sizes.Append(height, uint32(last)); err != nil {
		return err
	}
	q.roster = q.roster[:last]
	delete(q.slots, operatorID)
	q.rosterCache.Flush()
	return nil
}

// Replace atomically swaps [oldID] out for [newID] at [height], touching each
// affected slot stream once and leaving the size stream untouched. Used by
// churn so that an eviction plus admission at one height never double-updates
// a stream.
func (a *Assigner) Replace(quorum uint8, oldID, newID ids.ID, height uint64) error {
	q, ok := a.quorums[quorum]
	if !ok {
		return fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	slot, ok := q.slots[oldID]
	if !ok {
		return fmt.Errorf("%w: %s in quorum %d", ErrNotMember, oldID, quorum)
	}
	last := len(q.roster) - 1
	if slot != last {
		// The evicted member's slot takes the current last member, and the
		// last slot takes the new member, mirroring a leave followed by a
		// join.
		moved := q.roster[last]
		if err := q.assign(slot, moved, height); err != nil {
			return err
		}
		if err := q.assign(last, newID, height); err != nil {
			return err
		}
		q.roster[slot] = moved
		q.slots[moved] = slot
	} else if err := q.assign(slot, newID, height); err != nil {
		return err
	}
	q.roster[last] = newID
	q.slots[newID] = last
	delete(q.slots, oldID)
	q.rosterCache.Flush()
	return nil
}

// Count returns [quorum]'s live member count.
func (a *Assigner) Count(quorum uint8) (uint32, error) {
	q, ok := a.quorums[quorum]
	if !ok {
		return 0, fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	return uint32(len(q.roster)), nil
}

// Slot returns [operatorID]'s current slot in [quorum].
func (a *Assigner) Slot(quorum uint8, operatorID ids.ID) (uint32, error) {
	q, ok := a.quorums[quorum]
	if !ok {
		return 0, fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	slot, ok := q.slots[operatorID]
	if !ok {
		return 0, fmt.Errorf("%w: %s in quorum %d", ErrNotMember, operatorID, quorum)
	}
	return uint32(slot), nil
}

// RosterAt reconstructs [quorum]'s ordered roster as of [height] by combining
// the size stream with the most recent checkpoint of every live slot.
func (a *Assigner) RosterAt(quorum uint8, height uint64) ([]ids.ID, error) {
	q, ok := a.quorums[quorum]
	if !ok {
		return nil, fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	if roster, ok := q.rosterCache.Get(height); ok {
		a.rostersCached.Inc()
		return slices.Clone(roster), nil
	}

	sizeCP, err := q.sizes.At(height)
	if err != nil {
		return nil, err
	}
	size := int(sizeCP.Payload)
	roster := make([]ids.ID, size)
	for slot := 0; slot < size; slot++ {
		cp, err := q.slotStreams[slot].At(height)
		if err != nil {
			return nil, fmt.Errorf("slot %d of quorum %d at height %d: %w", slot, quorum, height, err)
		}
		roster[slot] = cp.Payload
	}

	q.rosterCache.Put(height, roster)
	a.rostersCreated.Inc()
	return slices.Clone(roster), nil
}

// assign checkpoints [operatorID] as the occupant of [slot] from [height],
// growing the slot streams if [slot] has never been used.
func (q *quorumIndex) assign(slot int, operatorID ids.ID, height uint64) error {
	if slot == len(q.slotStreams) {
		q.slotStreams = append(q.slotStreams, history.NewStream[ids.ID]())
	}
	return q.slotStreams[slot].Append(height, operatorID)
}
