// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"errors"
	"fmt"
	"time"
)

// BipsDenominator is the denominator for all basis-point parameters.
const BipsDenominator = 10_000

const DefaultEjectionCooldown = 3 * 24 * time.Hour

var (
	errZeroOperatorCap = errors.New("max operator count must be positive")
	errCeilingTooLarge = errors.New("ejectability ceiling above 100%")
)

// Config carries the coordinator-wide knobs.
type Config struct {
	// EjectionCooldown is how long an ejected operator must wait before it
	// may register again.
	EjectionCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		EjectionCooldown: DefaultEjectionCooldown,
	}
}

// OperatorSetParams is the externally configured capacity policy of one
// quorum.
type OperatorSetParams struct {
	// MaxOperatorCount is the quorum's member cap. Admission beyond the cap
	// requires churning an incumbent out.
	MaxOperatorCount uint32

	// ChurnMarginBips is how far, in basis points over par, a joiner's stake
	// must exceed an incumbent's before the incumbent may be evicted.
	ChurnMarginBips uint16

	// EjectabilityCeilingBips caps, in basis points of total quorum stake,
	// how large an incumbent's share may be while still being evictable.
	EjectabilityCeilingBips uint16
}

func (p OperatorSetParams) Validate() error {
	if p.MaxOperatorCount == 0 {
		return errZeroOperatorCap
	}
	if p.EjectabilityCeilingBips > BipsDenominator {
		return fmt.Errorf("%w: %d bips", errCeilingTooLarge, p.EjectabilityCeilingBips)
	}
	return nil
}
