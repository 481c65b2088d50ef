// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"time"

	"github.com/luxfi/quorum/quorums"
)

// Status is an operator's lifecycle state. Transitions:
//
//	Unregistered -> Registered    first key registration + first quorum join
//	Registered   -> Deregistered  membership bitmap becomes empty
//	Deregistered -> Registered    ejection cooldown elapsed + re-join
//
// Records are never deleted; a deregistered operator keeps its key identity
// and history.
type Status uint8

const (
	StatusUnregistered Status = iota
	StatusRegistered
	StatusDeregistered
)

func (s Status) String() string {
	switch s {
	case StatusUnregistered:
		return "unregistered"
	case StatusRegistered:
		return "registered"
	case StatusDeregistered:
		return "deregistered"
	default:
		return "unknown"
	}
}

// operator is the coordinator's live view of one participant.
type operator struct {
	status       Status
	bitmap       quorums.Bitmap
	socket       string
	lastEjection time.Time // zero until the operator is first ejected
}

func newOperator() *operator {
	return &operator{bitmap: quorums.New()}
}
