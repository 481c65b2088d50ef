// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package apk maintains, per quorum, the aggregate BLS public key of all
// current members, checkpointing a truncated digest of the aggregate on every
// membership change so verifiers can ask for the group key at any past height.
package apk

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/log"

	"github.com/luxfi/quorum/history"
)

// DigestLen is the length of a truncated aggregate key digest.
const DigestLen = 24

var (
	ErrAlreadyInitialized = errors.New("quorum already initialized")
	ErrNotInitialized     = errors.New("quorum not initialized")
	ErrKeyNotInQuorum     = errors.New("key is not part of the quorum aggregate")

	// ZeroDigest is the digest checkpointed while a quorum has no members.
	ZeroDigest = Digest{}
)

// Digest is the truncated hash of an aggregate public key.
type Digest [DigestLen]byte

// DigestKey computes the checkpoint digest of a single aggregate key. A nil
// key (the empty aggregate) digests to [ZeroDigest].
func DigestKey(pk *bls.PublicKey) Digest {
	if pk == nil {
		return ZeroDigest
	}
	var d Digest
	h := hash.ComputeHash256Array(bls.PublicKeyToUncompressedBytes(pk))
	copy(d[:], h[:DigestLen])
	return d
}

// accumulator holds the live membership keys of one quorum. The running
// aggregate always equals the sum of exactly the keys in [members]; callers
// must report every membership transition exactly once or the aggregate
// silently diverges from the roster.
type accumulator struct {
	members   []*bls.PublicKey
	aggregate *bls.PublicKey // nil while the quorum is empty
	digests   *history.Stream[Digest]
}

// Maintainer owns one accumulator and digest stream per initialized quorum.
//
// Maintainer is not safe for concurrent use.
type Maintainer struct {
	log     log.Logger
	quorums map[uint8]*accumulator
}

func NewMaintainer(log log.Logger) *Maintainer {
	return &Maintainer{
		log:     log,
		quorums: make(map[uint8]*accumulator),
	}
}

// InitializeQuorum seeds [quorum]'s accumulator at the identity point and
// checkpoints the empty digest at [height]. Must be called exactly once per
// quorum, before any membership update.
func (m *Maintainer) InitializeQuorum(quorum uint8, height uint64) error {
	if _, ok := m.quorums[quorum]; ok {
		return fmt.Errorf("%w: quorum %d", ErrAlreadyInitialized, quorum)
	}
	acc := &accumulator{digests: history.NewStream[Digest]()}
	if err := acc.digests.Append(height, ZeroDigest); err != nil {
		return err
	}
	m.quorums[quorum] = acc
	m.log.Debug("initialized aggregate key stream",
		log.Uint32("quorum", uint32(quorum)),
		log.Uint64("height", height),
	)
	return nil
}

// Initialized reports whether [quorum] has been initialized.
func (m *Maintainer) Initialized(quorum uint8) bool {
	_, ok := m.quorums[quorum]
	return ok
}

// ReadyAt reports whether [quorum]'s digest stream accepts an update at
// [height].
func (m *Maintainer) ReadyAt(quorum uint8, height uint64) error {
	acc, ok := m.quorums[quorum]
	if !ok {
		return fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	return acc.digests.ReadyAt(height)
}

// Join adds [pk] to [quorum]'s aggregate and checkpoints the new digest at
// [height].
func (m *Maintainer) Join(quorum uint8, pk *bls.PublicKey, height uint64) (Digest, error) {
	acc, ok := m.quorums[quorum]
	if !ok {
		return ZeroDigest, fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	agg, err := add(acc.aggregate, pk)
	if err != nil {
		return ZeroDigest, err
	}
	digest := DigestKey(agg)
	if err := acc.digests.Append(height, digest); err != nil {
		return ZeroDigest, err
	}
	acc.members = append(acc.members, pk)
	acc.aggregate = agg
	return digest, nil
}

// Leave removes [pk] from [quorum]'s aggregate and checkpoints the new digest
// at [height].
func (m *Maintainer) Leave(quorum uint8, pk *bls.PublicKey, height uint64) (Digest, error) {
	acc, ok := m.quorums[quorum]
	if !ok {
		return ZeroDigest, fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	members, err := remove(acc.members, pk)
	if err != nil {
		return ZeroDigest, err
	}
	agg, err := sum(members)
	if err != nil {
		return ZeroDigest, err
	}
	digest := DigestKey(agg)
	if err := acc.digests.Append(height, digest); err != nil {
		return ZeroDigest, err
	}
	acc.members = members
	acc.aggregate = agg
	return digest, nil
}

// Replace atomically swaps [oldPK] for [newPK] in [quorum]'s aggregate,
// producing a single checkpoint at [height]. Used by churn so that an
// eviction and the admission it makes room for never double-update the
// digest stream at one height.
func (m *Maintainer) Replace(quorum uint8, oldPK, newPK *bls.PublicKey, height uint64) (Digest, error) {
	acc, ok := m.quorums[quorum]
	if !ok {
		return ZeroDigest, fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	members, err := remove(acc.members, oldPK)
	if err != nil {
		return ZeroDigest, err
	}
	members = append(members, newPK)
	agg, err := sum(members)
	if err != nil {
		return ZeroDigest, err
	}
	digest := DigestKey(agg)
	if err := acc.digests.Append(height, digest); err != nil {
		return ZeroDigest, err
	}
	acc.members = members
	acc.aggregate = agg
	return digest, nil
}

// Aggregate returns [quorum]'s live aggregate key, nil when the quorum is
// empty.
func (m *Maintainer) Aggregate(quorum uint8) (*bls.PublicKey, error) {
	acc, ok := m.quorums[quorum]
	if !ok {
		return nil, fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	return acc.aggregate, nil
}

// DigestAt returns the digest of [quorum]'s aggregate key as of [height].
func (m *Maintainer) DigestAt(quorum uint8, height uint64) (Digest, error) {
	acc, ok := m.quorums[quorum]
	if !ok {
		return ZeroDigest, fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	cp, err := acc.digests.At(height)
	if err != nil {
		return ZeroDigest, err
	}
	return cp.Payload, nil
}

// Checkpoints returns the number of digest checkpoints recorded for [quorum].
func (m *Maintainer) Checkpoints(quorum uint8) (int, error) {
	acc, ok := m.quorums[quorum]
	if !ok {
		return 0, fmt.Errorf("%w: quorum %d", ErrNotInitialized, quorum)
	}
	return acc.digests.Len(), nil
}

// add folds one key into a running aggregate. The curve arithmetic is opaque:
// only the bls package's aggregation primitive is used.
func add(agg, pk *bls.PublicKey) (*bls.PublicKey, error) {
	if agg == nil {
		return pk, nil
	}
	return bls.AggregatePublicKeys([]*bls.PublicKey{agg, pk})
}

// sum recomputes an aggregate from scratch. The bls package exposes no point
// negation, so removal is recomputation over the remaining members.
func sum(members []*bls.PublicKey) (*bls.PublicKey, error) {
	if len(members) == 0 {
		return nil, nil
	}
	return bls.AggregatePublicKeys(members)
}

func remove(members []*bls.PublicKey, pk *bls.PublicKey) ([]*bls.PublicKey, error) {
	target := bls.PublicKeyToCompressedBytes(pk)
	for i, member := range members {
		if !bytes.Equal(bls.PublicKeyToCompressedBytes(member), target) {
			continue
		}
		out := make([]*bls.PublicKey, 0, len(members)-1)
		out = append(out, members[:i]...)
		out = append(out, members[i+1:]...)
		return out, nil
	}
	return nil, ErrKeyNotInQuorum
}
