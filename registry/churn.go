// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"time"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	"github.com/luxfi/quorum/utils/timer/mockable"
)

// Kick names the incumbent a joiner proposes to evict from one quorum.
type Kick struct {
	Quorum   uint8
	Operator ids.ShortID
}

// Approval authorizes exactly one (joiner, kick list) pair. The salt makes
// each approval single-use; the expiry bounds how long it may sit unused.
type Approval struct {
	Signature [bls.SignatureLen]byte
	Salt      ids.ID
	Expiry    time.Time
}

// ChurnApprover checks that an approval authorizes the churn being attempted.
type ChurnApprover interface {
	VerifyApproval(joiner ids.ShortID, kicks []Kick, approval Approval) error
}

var approvalDomain = []byte("quorum registry churn approval")

// ApprovalMessage is the message a churn approver signs: a domain-prefixed
// digest over the joiner, the full kick list, the salt, and the expiry.
func ApprovalMessage(joiner ids.ShortID, kicks []Kick, salt ids.ID, expiry time.Time) []byte {
	msg := make([]byte, 0, len(approvalDomain)+len(joiner.Bytes())+len(kicks)*21+len(salt)+8)
	msg = append(msg, approvalDomain...)
	msg = append(msg, joiner.Bytes()...)
	for _, kick := range kicks {
		msg = append(msg, kick.Quorum)
		msg = append(msg, kick.Operator.Bytes()...)
	}
	msg = append(msg, salt[:]...)
	msg = binary.BigEndian.AppendUint64(msg, uint64(expiry.Unix()))
	return hash.ComputeHash256(msg)
}

// BLSChurnApprover verifies approvals against a fixed approver public key and
// tracks used salts so an approval cannot be replayed.
type BLSChurnApprover struct {
	pk        *bls.PublicKey
	clk       *mockable.Clock
	usedSalts set.Set[ids.ID]
}

func NewBLSChurnApprover(pk *bls.PublicKey, clk *mockable.Clock) *BLSChurnApprover {
	return &BLSChurnApprover{
		pk:        pk,
		clk:       clk,
		usedSalts: set.NewSet[ids.ID](16),
	}
}

func (a *BLSChurnApprover) VerifyApproval(joiner ids.ShortID, kicks []Kick, approval Approval) error {
	if a.clk.Time().After(approval.Expiry) {
		return fmt.Errorf("%w: at %s", ErrApprovalExpired, approval.Expiry)
	}
	if a.usedSalts.Contains(approval.Salt) {
		return fmt.Errorf("%w: %s", ErrSaltUsed, approval.Salt)
	}
	sig, err := bls.SignatureFromBytes(approval.Signature[:])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidApproval, err)
	}
	if !bls.Verify(a.pk, sig, ApprovalMessage(joiner, kicks, approval.Salt, approval.Expiry)) {
		return ErrInvalidApproval
	}
	a.usedSalts.Add(approval.Salt)
	return nil
}

// churnJustified decides whether [incumbentStake] may be churned out in favor
// of [joinerStake]: the joiner must beat the incumbent by the configured
// margin, and the incumbent's share of total quorum stake must be below the
// ejectability ceiling. Both inputs come from the stake oracle; nothing is
// computed here.
func churnJustified(params OperatorSetParams, joinerStake, incumbentStake, totalStake uint64) bool {
	return gt128(joinerStake, BipsDenominator, incumbentStake, BipsDenominator+uint64(params.ChurnMarginBips)) &&
		gt128(totalStake, uint64(params.EjectabilityCeilingBips), incumbentStake, BipsDenominator)
}

// gt128 reports a*am > b*bm using full 128-bit products, so bips scaling
// cannot overflow for any uint64 stake.
func gt128(a, am, b, bm uint64) bool {
	aHi, aLo := bits.Mul64(a, am)
	bHi, bLo := bits.Mul64(b, bm)
	return aHi > bHi || (aHi == bHi && aLo > bLo)
}
