// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keys maps operators to their long-term BLS public key identity.
// Each operator holds at most one key and each key belongs to at most one
// operator. An operator's derived identifier is the hash of its key, and is
// how the operator appears in quorum rosters.
package keys

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

var (
	ErrAlreadyRegistered = errors.New("operator already registered a key")
	ErrNotRegistered     = errors.New("operator never registered a key")
	ErrDuplicateKey      = errors.New("public key already registered to another operator")
	ErrZeroKey           = errors.New("public key is the identity point")

	// zeroKeyID is the identifier of the additive identity point. Keys are
	// rejected by comparing their identifier against this sentinel rather
	// than by inspecting curve internals.
	zeroKeyID = func() ids.ID {
		var infinity [bls.PublicKeyLen]byte
		infinity[0] = 0xc0 // compressed encoding of the point at infinity
		return ids.ID(hash.ComputeHash256Array(infinity[:]))
	}()
)

// KeyID derives an operator identifier from a public key.
func KeyID(pk *bls.PublicKey) ids.ID {
	return ids.ID(hash.ComputeHash256Array(bls.PublicKeyToCompressedBytes(pk)))
}

type entry struct {
	pk *bls.PublicKey
	id ids.ID
}

// Registry owns the operator→key and keyID→operator mappings. Entries are
// never deleted: once registered, an operator's identifier is permanent until
// replaced through Update.
//
// Registry is not safe for concurrent use.
type Registry struct {
	log log.Logger

	byOperator map[ids.ShortID]entry
	byID       map[ids.ID]ids.ShortID
}

func NewRegistry(log log.Logger) *Registry {
	return &Registry{
		log:        log,
		byOperator: make(map[ids.ShortID]entry),
		byID:       make(map[ids.ID]ids.ShortID),
	}
}

// Register records [operator]'s key after validating the proof of possession.
// It returns the derived operator identifier.
func (r *Registry) Register(operator ids.ShortID, pop *ProofOfPossession) (ids.ID, error) {
	if _, ok := r.byOperator[operator]; ok {
		return ids.Empty, fmt.Errorf("%w: %s", ErrAlreadyRegistered, operator)
	}
	return r.record(operator, pop)
}

// Update replaces [operator]'s key with a newly proven one. The caller is
// responsible for ensuring the operator is not an active member of any quorum;
// swapping keys while contributing to aggregate sums would corrupt them.
func (r *Registry) Update(operator ids.ShortID, pop *ProofOfPossession) (ids.ID, error) {
	old, ok := r.byOperator[operator]
	if !ok {
		return ids.Empty, fmt.Errorf("%w: %s", ErrNotRegistered, operator)
	}
	id, err := r.record(operator, pop)
	if err != nil {
		return ids.Empty, err
	}
	if old.id != id {
		delete(r.byID, old.id)
	}
	return id, nil
}

func (r *Registry) record(operator ids.ShortID, pop *ProofOfPossession) (ids.ID, error) {
	id := ids.ID(hash.ComputeHash256Array(pop.PublicKey[:]))
	if id == zeroKeyID {
		return ids.Empty, ErrZeroKey
	}
	if owner, ok := r.byID[id]; ok && owner != operator {
		return ids.Empty, fmt.Errorf("%w: key %s owned by %s", ErrDuplicateKey, id, owner)
	}
	if err := pop.Verify(operator); err != nil {
		return ids.Empty, err
	}

	r.byOperator[operator] = entry{pk: pop.Key(), id: id}
	r.byID[id] = operator
	r.log.Info("registered operator key",
		log.Stringer("operator", operator),
		log.Stringer("operatorID", id),
	)
	return id, nil
}

// Restore records a previously proven key without re-verifying possession.
// Used only when rebuilding the registry from persisted state.
func (r *Registry) Restore(operator ids.ShortID, pk *bls.PublicKey) {
	id := KeyID(pk)
	r.byOperator[operator] = entry{pk: pk, id: id}
	r.byID[id] = operator
}

// OperatorID returns [operator]'s derived identifier, or ids.Empty if the
// operator never registered a key.
func (r *Registry) OperatorID(operator ids.ShortID) ids.ID {
	return r.byOperator[operator].id
}

// PublicKey returns [operator]'s registered key.
func (r *Registry) PublicKey(operator ids.ShortID) (*bls.PublicKey, error) {
	e, ok := r.byOperator[operator]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, operator)
	}
	return e.pk, nil
}

// Operator resolves a derived identifier back to its account.
func (r *Registry) Operator(id ids.ID) (ids.ShortID, bool) {
	operator, ok := r.byID[id]
	return operator, ok
}
