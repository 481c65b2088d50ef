// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keys

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/ids"
)

var (
	ErrInvalidProof = errors.New("invalid proof of possession")

	registrationDomain = []byte("quorum registry key registration")
)

// RegistrationMessage is the message an operator's proof of possession must
// sign over: a domain-prefixed digest binding the public key to the account
// registering it, so a proof cannot be replayed for a different operator.
func RegistrationMessage(operator ids.ShortID, pkBytes []byte) []byte {
	opBytes := operator.Bytes()
	msg := make([]byte, 0, len(registrationDomain)+len(opBytes)+len(pkBytes))
	msg = append(msg, registrationDomain...)
	msg = append(msg, opBytes...)
	msg = append(msg, pkBytes...)
	return hash.ComputeHash256(msg)
}

// ProofOfPossession proves ownership of the secret key behind a BLS public
// key. The signature covers [RegistrationMessage] for the registering
// operator.
type ProofOfPossession struct {
	PublicKey         [bls.PublicKeyLen]byte `serialize:"true" json:"publicKey"`
	ProofOfPossession [bls.SignatureLen]byte `serialize:"true" json:"proofOfPossession"`

	// pk is the parsed public key, populated by Verify.
	pk *bls.PublicKey
}

// NewProofOfPossession signs a registration proof for [operator] with
// [signer]'s key.
func NewProofOfPossession(signer bls.Signer, operator ids.ShortID) (*ProofOfPossession, error) {
	pk := signer.PublicKey()
	pkBytes := bls.PublicKeyToCompressedBytes(pk)
	sig, err := signer.SignProofOfPossession(RegistrationMessage(operator, pkBytes))
	if err != nil {
		return nil, err
	}
	sigBytes := bls.SignatureToBytes(sig)

	pop := &ProofOfPossession{pk: pk}
	copy(pop.PublicKey[:], pkBytes)
	copy(pop.ProofOfPossession[:], sigBytes)
	return pop, nil
}

// Verify checks the proof against the registration message for [operator].
func (p *ProofOfPossession) Verify(operator ids.ShortID) error {
	pk, err := bls.PublicKeyFromCompressedBytes(p.PublicKey[:])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	sig, err := bls.SignatureFromBytes(p.ProofOfPossession[:])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	if !bls.VerifyProofOfPossession(pk, sig, RegistrationMessage(operator, p.PublicKey[:])) {
		return ErrInvalidProof
	}
	p.pk = pk
	return nil
}

// Key returns the public key the proof covers.
//
// Invariant: only called after [Verify] returns nil.
func (p *ProofOfPossession) Key() *bls.PublicKey {
	return p.pk
}
