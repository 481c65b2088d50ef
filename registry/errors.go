// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import "errors"

var (
	ErrEmptyQuorumSet    = errors.New("quorum set is empty")
	ErrUnknownQuorum     = errors.New("quorum does not exist")
	ErrTooManyQuorums    = errors.New("quorum count limit reached")
	ErrAlreadyMember     = errors.New("operator is already a member of a requested quorum")
	ErrNotCurrentMember  = errors.New("operator is not a member of every requested quorum")
	ErrQuorumFull        = errors.New("quorum operator cap reached")
	ErrCooldownActive    = errors.New("ejection cooldown has not elapsed")
	ErrKeyRequired       = errors.New("operator has no registered key and no proof was supplied")
	ErrActiveMember      = errors.New("operator is an active member of at least one quorum")
	ErrNotRegistered     = errors.New("operator is not registered")
	ErrMissingKick       = errors.New("no churn target supplied for a full quorum")
	ErrKickNotMember     = errors.New("churn target is not a member of the quorum")
	ErrSelfChurn         = errors.New("churn target is the joining operator")
	ErrChurnNotJustified = errors.New("churn conditions not met")

	ErrApprovalExpired = errors.New("churn approval expired")
	ErrSaltUsed        = errors.New("churn approval salt already used")
	ErrInvalidApproval = errors.New("churn approval signature invalid")
)
