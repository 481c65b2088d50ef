// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package history implements append-only, height-ordered checkpoint streams
// supporting "value effective as of height H" queries via binary search.
package history

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound        = errors.New("no checkpoint at or before requested height")
	ErrStaleCheckpoint = errors.New("checkpoint height not after latest checkpoint")
)

// Checkpoint records a payload and the height range over which it was
// effective. ToHeight is 0 while the checkpoint is still current.
type Checkpoint[P any] struct {
	FromHeight uint64
	ToHeight   uint64
	Payload    P
}

// Open reports whether the checkpoint has no upper bound yet.
func (c Checkpoint[P]) Open() bool {
	return c.ToHeight == 0
}

// Stream is an append-only log of checkpoints with strictly increasing
// FromHeights. At most the last checkpoint is open. Checkpoints are never
// mutated after being appended, except to close their height range exactly
// once when the next checkpoint supersedes them.
//
// Stream is not safe for concurrent use.
type Stream[P any] struct {
	entries []Checkpoint[P]
}

func NewStream[P any]() *Stream[P] {
	return &Stream[P]{}
}

// Append closes the currently open checkpoint at [height] and appends a new
// open checkpoint carrying [payload]. At most one append per height is
// permitted: [height] must be strictly greater than the latest checkpoint's
// FromHeight or the append fails with ErrStaleCheckpoint.
func (s *Stream[P]) Append(height uint64, payload P) error {
	if err := s.ReadyAt(height); err != nil {
		return err
	}
	if n := len(s.entries); n > 0 {
		s.entries[n-1].ToHeight = height
	}
	s.entries = append(s.entries, Checkpoint[P]{
		FromHeight: height,
		Payload:    payload,
	})
	return nil
}

// ReadyAt reports whether an append at [height] would be accepted.
func (s *Stream[P]) ReadyAt(height uint64) error {
	n := len(s.entries)
	if n == 0 {
		return nil
	}
	if latest := s.entries[n-1].FromHeight; height <= latest {
		return fmt.Errorf("%w: height %d <= %d", ErrStaleCheckpoint, height, latest)
	}
	return nil
}

// At returns the checkpoint whose height range contains [height]. It fails
// with ErrNotFound if the stream is empty or [height] precedes the first
// checkpoint.
func (s *Stream[P]) At(height uint64) (Checkpoint[P], error) {
	// Index of the first checkpoint effective strictly after [height]; the
	// predecessor, if any, is the one in effect at [height].
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].FromHeight > height
	})
	if i == 0 {
		return Checkpoint[P]{}, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}
	return s.entries[i-1], nil
}

// Latest returns the open checkpoint, if any.
func (s *Stream[P]) Latest() (Checkpoint[P], bool) {
	if len(s.entries) == 0 {
		return Checkpoint[P]{}, false
	}
	return s.entries[len(s.entries)-1], true
}

func (s *Stream[P]) Len() int {
	return len(s.entries)
}
