// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import "github.com/luxfi/ids"

// Op names the mutating operation an event reports.
type Op uint8

const (
	OpJoin Op = iota
	OpLeave
	OpEvict
	OpEject
	OpKeyUpdated
	OpSocketUpdated
)

func (o Op) String() string {
	switch o {
	case OpJoin:
		return "join"
	case OpLeave:
		return "leave"
	case OpEvict:
		return "evict"
	case OpEject:
		return "eject"
	case OpKeyUpdated:
		return "keyUpdated"
	case OpSocketUpdated:
		return "socketUpdated"
	default:
		return "unknown"
	}
}

// Event is an advisory notification of a completed mutation. Events are not
// part of correctness; consumers must not rely on delivery.
type Event struct {
	Op         Op
	Operator   ids.ShortID
	OperatorID ids.ID
	Quorums    []uint8
	Height     uint64
}

// EventSink receives advisory events from the coordinator.
type EventSink interface {
	Notify(Event)
}

// MembershipSink is informed when an operator's overall standing changes:
// when it first becomes a member of any quorum, and when it leaves its last
// one.
type MembershipSink interface {
	OnFirstJoin(operator ids.ShortID)
	OnFullLeave(operator ids.ShortID)
}

// StakeOracle supplies the read-only stake figures churn decisions are made
// from. The coordinator never computes stake itself.
type StakeOracle interface {
	StakeOf(operator ids.ShortID, quorum uint8) (uint64, error)
	TotalStake(quorum uint8) (uint64, error)
}

type noopEventSink struct{}

func (noopEventSink) Notify(Event) {}

type noopMembershipSink struct{}

func (noopMembershipSink) OnFirstJoin(ids.ShortID) {}
func (noopMembershipSink) OnFullLeave(ids.ShortID) {}
