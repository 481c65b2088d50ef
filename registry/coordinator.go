// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry coordinates operator membership across quorums: it owns
// the per-operator membership bitmap and lifecycle state machine, runs the
// churn admission protocol, and drives the aggregate key and index streams so
// that a verifier can later ask who belonged to a quorum at any past height
// and what the group's aggregate key was.
package registry

import (
	"fmt"
	"time"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/apk"
	"github.com/luxfi/quorum/indexes"
	"github.com/luxfi/quorum/keys"
	"github.com/luxfi/quorum/quorums"
	"github.com/luxfi/quorum/state"
	"github.com/luxfi/quorum/utils/timer/mockable"
)

// Coordinator is the single entry point for all membership mutations. Every
// mutating call either applies all of its per-quorum updates or fails with no
// observable state change; guards are evaluated before anything is mutated.
//
// The host is expected to serialize all mutating calls, matching the
// execution model of the ledger this registry records. Coordinator performs
// no internal locking.
type Coordinator struct {
	log     log.Logger
	clk     mockable.Clock
	cfg     Config
	metrics *coordinatorMetrics

	keys    *keys.Registry
	apks    *apk.Maintainer
	indexes *indexes.Assigner
	store   *state.Store

	oracle     StakeOracle
	approver   ChurnApprover
	membership MembershipSink
	events     EventSink

	operators map[ids.ShortID]*operator
	quorums   []OperatorSetParams
}

// New builds a Coordinator over [db], reloading any state a previous instance
// persisted there. [oracle] and [approver] are only consulted by
// JoinWithChurn and may be nil if churn is never used.
func New(
	cfg Config,
	db database.Database,
	oracle StakeOracle,
	approver ChurnApprover,
	membership MembershipSink,
	events EventSink,
	logger log.Logger,
	registerer metric.Registerer,
) (*Coordinator, error) {
	if membership == nil {
		membership = noopMembershipSink{}
	}
	if events == nil {
		events = noopEventSink{}
	}
	metrics, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	assigner, err := indexes.NewAssigner(logger, registerer)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		log:        logger,
		cfg:        cfg,
		metrics:    metrics,
		keys:       keys.NewRegistry(logger),
		apks:       apk.NewMaintainer(logger),
		indexes:    assigner,
		store:      state.New(db),
		oracle:     oracle,
		approver:   approver,
		membership: membership,
		events:     events,
		operators:  make(map[ids.ShortID]*operator),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Clock returns the coordinator's clock, so hosts and tests can control time.
func (c *Coordinator) Clock() *mockable.Clock {
	return &c.clk
}

// CreateQuorum initializes the next quorum number with [params] at [height]
// and returns it. A quorum must be created before operators can join it.
func (c *Coordinator) CreateQuorum(params OperatorSetParams, height uint64) (uint8, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	if len(c.quorums) >= quorums.MaxQuorums {
		return 0, ErrTooManyQuorums
	}
	quorum := uint8(len(c.quorums))
	if err := c.apks.InitializeQuorum(quorum, height); err != nil {
		return 0, err
	}
	if err := c.indexes.InitializeQuorum(quorum, height); err != nil {
		return 0, err
	}
	c.quorums = append(c.quorums, params)

	if err := c.store.PutQuorum(quorum, state.QuorumRecord{
		MaxOperatorCount:        params.MaxOperatorCount,
		ChurnMarginBips:         params.ChurnMarginBips,
		EjectabilityCeilingBips: params.EjectabilityCeilingBips,
	}); err != nil {
		return 0, err
	}
	if err := c.store.AppendTransition(height, state.Transition{
		Kind:   state.QuorumCreated,
		Quorum: quorum,
	}); err != nil {
		return 0, err
	}
	c.metrics.setQuorumOperators(quorum, 0)
	c.log.Info("created quorum",
		log.Uint32("quorum", uint32(quorum)),
		log.Uint32("maxOperators", params.MaxOperatorCount),
		log.Uint64("height", height),
	)
	return quorum, nil
}

// Join admits [account] into every quorum in [nums] at [height], registering
// its key from [pop] if this is the first time the account is seen. It
// returns the new member count of each quorum joined, in input order.
func (c *Coordinator) Join(
	account ids.ShortID,
	nums []uint8,
	socket string,
	pop *keys.ProofOfPossession,
	height uint64,
) ([]uint32, error) {
	bm, err := c.validateJoin(account, nums, height)
	if err != nil {
		return nil, err
	}
	for _, q := range nums {
		count, err := c.indexes.Count(q)
		if err != nil {
			return nil, err
		}
		if count >= c.quorums[q].MaxOperatorCount {
			return nil, fmt.Errorf("%w: quorum %d at %d operators", ErrQuorumFull, q, count)
		}
	}
	id, pk, err := c.ensureKey(account, pop)
	if err != nil {
		return nil, err
	}

	keyBytes := bls.PublicKeyToCompressedBytes(pk)
	counts := make([]uint32, len(nums))
	for i, q := range nums {
		if _, err := c.apks.Join(q, pk, height); err != nil {
			return nil, err
		}
		count, err := c.indexes.Join(q, id, height)
		if err != nil {
			return nil, err
		}
		counts[i] = count
		c.metrics.setQuorumOperators(q, count)
		if err := c.store.AppendTransition(height, state.Transition{
			Kind:     state.Joined,
			Quorum:   q,
			Operator: account,
			Key:      keyBytes,
		}); err != nil {
			return nil, err
		}
	}
	if err := c.commitJoin(account, bm, socket, id, height); err != nil {
		return nil, err
	}
	return counts, nil
}

// JoinWithChurn is Join, except that for any quorum already at its operator
// cap it consults [kicks] for an incumbent to evict. The eviction and the
// admission it makes room for are applied as one atomic replacement, so every
// checkpoint stream is updated at most once at [height].
func (c *Coordinator) JoinWithChurn(
	account ids.ShortID,
	nums []uint8,
	socket string,
	kicks []Kick,
	approval Approval,
	pop *keys.ProofOfPossession,
	height uint64,
) ([]uint32, error) {
	bm, err := c.validateJoin(account, nums, height)
	if err != nil {
		return nil, err
	}

	kickFor := make(map[uint8]Kick, len(kicks))
	for _, kick := range kicks {
		kickFor[kick.Quorum] = kick
	}

	// Plan evictions. All stake figures are read here, before any eviction
	// in this call mutates anything: later decisions within one call use the
	// same pre-call stakes.
	type eviction struct {
		account ids.ShortID
		id      ids.ID
		pk      *bls.PublicKey
	}
	evictions := make(map[uint8]*eviction)
	for _, q := range nums {
		count, err := c.indexes.Count(q)
		if err != nil {
			return nil, err
		}
		if count < c.quorums[q].MaxOperatorCount {
			continue
		}
		kick, ok := kickFor[q]
		if !ok {
			return nil, fmt.Errorf("%w: quorum %d", ErrMissingKick, q)
		}
		if kick.Operator == account {
			return nil, fmt.Errorf("%w: quorum %d", ErrSelfChurn, q)
		}
		incumbent := c.operators[kick.Operator]
		if incumbent == nil || !incumbent.bitmap.Contains(q) {
			return nil, fmt.Errorf("%w: %s in quorum %d", ErrKickNotMember, kick.Operator, q)
		}
		joinerStake, err := c.oracle.StakeOf(account, q)
		if err != nil {
			return nil, err
		}
		incumbentStake, err := c.oracle.StakeOf(kick.Operator, q)
		if err != nil {
			return nil, err
		}
		totalStake, err := c.oracle.TotalStake(q)
		if err != nil {
			return nil, err
		}
		if !churnJustified(c.quorums[q], joinerStake, incumbentStake, totalStake) {
			return nil, fmt.Errorf("%w: quorum %d", ErrChurnNotJustified, q)
		}
		pk, err := c.keys.PublicKey(kick.Operator)
		if err != nil {
			return nil, err
		}
		evictions[q] = &eviction{
			account: kick.Operator,
			id:      c.keys.OperatorID(kick.Operator),
			pk:      pk,
		}
	}

	// The approval covers exactly this (joiner, kick list) pair. Verified
	// after every other guard so a valid approval's salt is only burned when
	// the churn will apply.
	if len(evictions) > 0 {
		if err := c.approver.VerifyApproval(account, kicks, approval); err != nil {
			return nil, err
		}
	}

	id, pk, err := c.ensureKey(account, pop)
	if err != nil {
		return nil, err
	}

	keyBytes := bls.PublicKeyToCompressedBytes(pk)
	counts := make([]uint32, len(nums))
	for i, q := range nums {
		ev := evictions[q]
		if ev == nil {
			if _, err := c.apks.Join(q, pk, height); err != nil {
				return nil, err
			}
			count, err := c.indexes.Join(q, id, height)
			if err != nil {
				return nil, err
			}
			counts[i] = count
			if err := c.store.AppendTransition(height, state.Transition{
				Kind:     state.Joined,
				Quorum:   q,
				Operator: account,
				Key:      keyBytes,
			}); err != nil {
				return nil, err
			}
		} else {
			if _, err := c.apks.Replace(q, ev.pk, pk, height); err != nil {
				return nil, err
			}
			if err := c.indexes.Replace(q, ev.id, id, height); err != nil {
				return nil, err
			}
			count, err := c.indexes.Count(q)
			if err != nil {
				return nil, err
			}
			counts[i] = count
			if err := c.store.AppendTransition(height, state.Transition{
				Kind:       state.Replaced,
				Quorum:     q,
				Operator:   account,
				Key:        keyBytes,
				Evicted:    ev.account,
				EvictedKey: bls.PublicKeyToCompressedBytes(ev.pk),
			}); err != nil {
				return nil, err
			}
			if err := c.recordEviction(ev.account, ev.id, q, height); err != nil {
				return nil, err
			}
		}
		c.metrics.setQuorumOperators(q, counts[i])
	}
	if err := c.commitJoin(account, bm, socket, id, height); err != nil {
		return nil, err
	}
	return counts, nil
}

// Leave removes [account] from every quorum in [nums] at [height]. If the
// account's bitmap empties, its lifecycle flips to deregistered and the
// ejection timestamp starts the re-registration cooldown.
func (c *Coordinator) Leave(account ids.ShortID, nums []uint8, height uint64) error {
	return c.leave(account, nums, height, false)
}

// Eject forcibly removes [account] from every quorum in [nums] at [height],
// stamping its ejection time regardless of remaining memberships. Callers are
// responsible for authorizing ejections.
func (c *Coordinator) Eject(account ids.ShortID, nums []uint8, height uint64) error {
	return c.leave(account, nums, height, true)
}

func (c *Coordinator) leave(account ids.ShortID, nums []uint8, height uint64, forced bool) error {
	bm, err := quorums.FromNumbers(nums)
	if err != nil {
		return err
	}
	if bm.IsEmpty() {
		return ErrEmptyQuorumSet
	}
	o := c.operators[account]
	if o == nil || !bm.IsSubsetOf(o.bitmap) {
		return fmt.Errorf("%w: %s", ErrNotCurrentMember, account)
	}
	for _, q := range nums {
		if err := c.apks.ReadyAt(q, height); err != nil {
			return err
		}
		if err := c.indexes.ReadyAt(q, height); err != nil {
			return err
		}
	}
	pk, err := c.keys.PublicKey(account)
	if err != nil {
		return err
	}
	id := c.keys.OperatorID(account)

	keyBytes := bls.PublicKeyToCompressedBytes(pk)
	for _, q := range nums {
		if _, err := c.apks.Leave(q, pk, height); err != nil {
			return err
		}
		if err := c.indexes.Leave(q, id, height); err != nil {
			return err
		}
		count, err := c.indexes.Count(q)
		if err != nil {
			return err
		}
		c.metrics.setQuorumOperators(q, count)
		if err := c.store.AppendTransition(height, state.Transition{
			Kind:     state.Left,
			Quorum:   q,
			Operator: account,
			Key:      keyBytes,
		}); err != nil {
			return err
		}
	}

	o.bitmap = o.bitmap.Difference(bm)
	if forced {
		o.lastEjection = c.clk.Time()
	}
	if o.bitmap.IsEmpty() {
		o.status = StatusDeregistered
		o.lastEjection = c.clk.Time()
		c.membership.OnFullLeave(account)
	}
	if err := c.putOperator(account, o); err != nil {
		return err
	}

	op := OpLeave
	if forced {
		op = OpEject
		c.metrics.forcedEjections.Inc()
	} else {
		c.metrics.leaves.Inc()
	}
	c.events.Notify(Event{
		Op:         op,
		Operator:   account,
		OperatorID: id,
		Quorums:    bm.Quorums(),
		Height:     height,
	})
	c.log.Info("operator left quorums",
		log.Stringer("operator", account),
		log.Stringer("operatorID", id),
		log.Uint64("height", height),
		log.Bool("forced", forced),
	)
	return nil
}

// UpdateSocket replaces the socket advertised for [account].
func (c *Coordinator) UpdateSocket(account ids.ShortID, socket string) error {
	o := c.operators[account]
	if o == nil || o.status != StatusRegistered {
		return fmt.Errorf("%w: %s", ErrNotRegistered, account)
	}
	o.socket = socket
	if err := c.putOperator(account, o); err != nil {
		return err
	}
	c.events.Notify(Event{
		Op:         OpSocketUpdated,
		Operator:   account,
		OperatorID: c.keys.OperatorID(account),
	})
	return nil
}

// UpdateKey replaces [account]'s key identity. Key swaps are only permitted
// while the account is a member of zero quorums; a member's key is part of
// live aggregate sums.
func (c *Coordinator) UpdateKey(account ids.ShortID, pop *keys.ProofOfPossession) (ids.ID, error) {
	if o := c.operators[account]; o != nil && !o.bitmap.IsEmpty() {
		return ids.Empty, fmt.Errorf("%w: %s", ErrActiveMember, account)
	}
	id, err := c.keys.Update(account, pop)
	if err != nil {
		return ids.Empty, err
	}
	pk, err := c.keys.PublicKey(account)
	if err != nil {
		return ids.Empty, err
	}
	if err := c.store.PutKey(account, pk); err != nil {
		return ids.Empty, err
	}
	c.metrics.keyRegistrations.Inc()
	c.events.Notify(Event{
		Op:         OpKeyUpdated,
		Operator:   account,
		OperatorID: id,
	})
	return id, nil
}

// QuorumCount returns the number of created quorums.
func (c *Coordinator) QuorumCount() int {
	return len(c.quorums)
}

// QuorumParams returns the capacity policy of [quorum].
func (c *Coordinator) QuorumParams(quorum uint8) (OperatorSetParams, error) {
	if int(quorum) >= len(c.quorums) {
		return OperatorSetParams{}, fmt.Errorf("%w: %d", ErrUnknownQuorum, quorum)
	}
	return c.quorums[quorum], nil
}

// Status returns [account]'s lifecycle status.
func (c *Coordinator) Status(account ids.ShortID) Status {
	if o := c.operators[account]; o != nil {
		return o.status
	}
	return StatusUnregistered
}

// Bitmap returns [account]'s current quorum membership bitmap.
func (c *Coordinator) Bitmap(account ids.ShortID) quorums.Bitmap {
	if o := c.operators[account]; o != nil {
		return o.bitmap
	}
	return quorums.New()
}

// Socket returns the socket advertised for [account].
func (c *Coordinator) Socket(account ids.ShortID) string {
	if o := c.operators[account]; o != nil {
		return o.socket
	}
	return ""
}

// OperatorID returns [account]'s derived key identifier, or ids.Empty if the
// account never registered a key.
func (c *Coordinator) OperatorID(account ids.ShortID) ids.ID {
	return c.keys.OperatorID(account)
}

// Operator resolves a derived identifier back to its account.
func (c *Coordinator) Operator(id ids.ID) (ids.ShortID, bool) {
	return c.keys.Operator(id)
}

// AggregateKey returns [quorum]'s live aggregate key, nil while the quorum is
// empty.
func (c *Coordinator) AggregateKey(quorum uint8) (*bls.PublicKey, error) {
	return c.apks.Aggregate(quorum)
}

// AggregateKeyDigestAt returns the digest of [quorum]'s aggregate key as it
// was at [height].
func (c *Coordinator) AggregateKeyDigestAt(quorum uint8, height uint64) (apk.Digest, error) {
	return c.apks.DigestAt(quorum, height)
}

// RosterAt returns [quorum]'s ordered member roster as it was at [height].
func (c *Coordinator) RosterAt(quorum uint8, height uint64) ([]ids.ID, error) {
	return c.indexes.RosterAt(quorum, height)
}

// OperatorCount returns [quorum]'s live member count.
func (c *Coordinator) OperatorCount(quorum uint8) (uint32, error) {
	return c.indexes.Count(quorum)
}

// validateJoin runs every read-only admission guard shared by Join and
// JoinWithChurn. Nothing is mutated.
func (c *Coordinator) validateJoin(account ids.ShortID, nums []uint8, height uint64) (quorums.Bitmap, error) {
	bm, err := quorums.FromNumbers(nums)
	if err != nil {
		return quorums.Bitmap{}, err
	}
	if bm.IsEmpty() {
		return quorums.Bitmap{}, ErrEmptyQuorumSet
	}
	for _, q := range nums {
		if int(q) >= len(c.quorums) {
			return quorums.Bitmap{}, fmt.Errorf("%w: %d", ErrUnknownQuorum, q)
		}
	}
	if o := c.operators[account]; o != nil {
		if bm.Overlaps(o.bitmap) {
			return quorums.Bitmap{}, fmt.Errorf("%w: %s", ErrAlreadyMember, account)
		}
		if !o.lastEjection.IsZero() {
			eligible := o.lastEjection.Add(c.cfg.EjectionCooldown)
			if !c.clk.Time().After(eligible) {
				return quorums.Bitmap{}, fmt.Errorf("%w: eligible after %s", ErrCooldownActive, eligible)
			}
		}
	}
	for _, q := range nums {
		if err := c.apks.ReadyAt(q, height); err != nil {
			return quorums.Bitmap{}, err
		}
		if err := c.indexes.ReadyAt(q, height); err != nil {
			return quorums.Bitmap{}, err
		}
	}
	return bm, nil
}

// ensureKey resolves [account]'s key identity, registering the key proven by
// [pop] if the account has none yet.
func (c *Coordinator) ensureKey(account ids.ShortID, pop *keys.ProofOfPossession) (ids.ID, *bls.PublicKey, error) {
	if id := c.keys.OperatorID(account); id != ids.Empty {
		pk, err := c.keys.PublicKey(account)
		return id, pk, err
	}
	if pop == nil {
		return ids.Empty, nil, fmt.Errorf("%w: %s", ErrKeyRequired, account)
	}
	id, err := c.keys.Register(account, pop)
	if err != nil {
		return ids.Empty, nil, err
	}
	pk, err := c.keys.PublicKey(account)
	if err != nil {
		return ids.Empty, nil, err
	}
	if err := c.store.PutKey(account, pk); err != nil {
		return ids.Empty, nil, err
	}
	c.metrics.keyRegistrations.Inc()
	return id, pk, nil
}

// commitJoin applies the joiner's record updates once every per-quorum stream
// has been appended.
func (c *Coordinator) commitJoin(account ids.ShortID, bm quorums.Bitmap, socket string, id ids.ID, height uint64) error {
	o := c.operators[account]
	if o == nil {
		o = newOperator()
		c.operators[account] = o
	}
	first := o.bitmap.IsEmpty()
	o.bitmap = o.bitmap.Union(bm)
	o.socket = socket
	o.status = StatusRegistered
	if first {
		c.membership.OnFirstJoin(account)
	}
	if err := c.putOperator(account, o); err != nil {
		return err
	}
	c.metrics.joins.Inc()
	c.events.Notify(Event{
		Op:         OpJoin,
		Operator:   account,
		OperatorID: id,
		Quorums:    bm.Quorums(),
		Height:     height,
	})
	c.log.Info("operator joined quorums",
		log.Stringer("operator", account),
		log.Stringer("operatorID", id),
		log.Uint64("height", height),
	)
	return nil
}

// recordEviction applies the incumbent's side of a churn replacement.
func (c *Coordinator) recordEviction(account ids.ShortID, id ids.ID, quorum uint8, height uint64) error {
	o := c.operators[account]
	o.bitmap = o.bitmap.Difference(quorums.New(quorum))
	o.lastEjection = c.clk.Time()
	if o.bitmap.IsEmpty() {
		o.status = StatusDeregistered
		c.membership.OnFullLeave(account)
	}
	if err := c.putOperator(account, o); err != nil {
		return err
	}
	c.metrics.churnEvictions.Inc()
	c.events.Notify(Event{
		Op:         OpEvict,
		Operator:   account,
		OperatorID: id,
		Quorums:    []uint8{quorum},
		Height:     height,
	})
	c.log.Info("incumbent evicted by churn",
		log.Stringer("operator", account),
		log.Uint32("quorum", uint32(quorum)),
		log.Uint64("height", height),
	)
	return nil
}

func (c *Coordinator) putOperator(account ids.ShortID, o *operator) error {
	rec := state.OperatorRecord{
		Status: uint8(o.status),
		Bitmap: o.bitmap.Bytes(),
		Socket: o.socket,
	}
	if !o.lastEjection.IsZero() {
		rec.LastEjection = uint64(o.lastEjection.Unix())
	}
	return c.store.PutOperator(account, rec)
}

// load rebuilds the in-memory registry from the persisted store: quorum
// params and operator records directly, checkpoint streams by replaying the
// transition journal in height order.
func (c *Coordinator) load() error {
	if err := c.store.Quorums(func(quorum uint8, rec state.QuorumRecord) error {
		if int(quorum) != len(c.quorums) {
			return fmt.Errorf("%w: gap before quorum %d", ErrUnknownQuorum, quorum)
		}
		c.quorums = append(c.quorums, OperatorSetParams{
			MaxOperatorCount:        rec.MaxOperatorCount,
			ChurnMarginBips:         rec.ChurnMarginBips,
			EjectabilityCeilingBips: rec.EjectabilityCeilingBips,
		})
		return nil
	}); err != nil {
		return err
	}
	if err := c.store.Keys(func(account ids.ShortID, pk *bls.PublicKey) error {
		c.keys.Restore(account, pk)
		return nil
	}); err != nil {
		return err
	}
	if err := c.store.Operators(func(account ids.ShortID, rec state.OperatorRecord) error {
		o := newOperator()
		o.status = Status(rec.Status)
		o.bitmap = quorums.FromBytes(rec.Bitmap)
		o.socket = rec.Socket
		if rec.LastEjection != 0 {
			o.lastEjection = time.Unix(int64(rec.LastEjection), 0)
		}
		c.operators[account] = o
		return nil
	}); err != nil {
		return err
	}
	if err := c.store.Transitions(func(height uint64, t state.Transition) error {
		switch t.Kind {
		case state.QuorumCreated:
			if err := c.apks.InitializeQuorum(t.Quorum, height); err != nil {
				return err
			}
			return c.indexes.InitializeQuorum(t.Quorum, height)
		case state.Joined:
			pk, id, err := transitionKey(t.Key)
			if err != nil {
				return err
			}
			if _, err := c.apks.Join(t.Quorum, pk, height); err != nil {
				return err
			}
			_, err = c.indexes.Join(t.Quorum, id, height)
			return err
		case state.Left:
			pk, id, err := transitionKey(t.Key)
			if err != nil {
				return err
			}
			if _, err := c.apks.Leave(t.Quorum, pk, height); err != nil {
				return err
			}
			return c.indexes.Leave(t.Quorum, id, height)
		case state.Replaced:
			pk, id, err := transitionKey(t.Key)
			if err != nil {
				return err
			}
			oldPK, oldID, err := transitionKey(t.EvictedKey)
			if err != nil {
				return err
			}
			if _, err := c.apks.Replace(t.Quorum, oldPK, pk, height); err != nil {
				return err
			}
			return c.indexes.Replace(t.Quorum, oldID, id, height)
		default:
			return fmt.Errorf("unknown transition kind %d at height %d", t.Kind, height)
		}
	}); err != nil {
		return err
	}

	for q := range c.quorums {
		count, err := c.indexes.Count(uint8(q))
		if err != nil {
			return err
		}
		c.metrics.setQuorumOperators(uint8(q), count)
	}
	return nil
}

func transitionKey(keyBytes []byte) (*bls.PublicKey, ids.ID, error) {
	pk, err := bls.PublicKeyFromCompressedBytes(keyBytes)
	if err != nil {
		return nil, ids.Empty, err
	}
	return pk, keys.KeyID(pk), nil
}
