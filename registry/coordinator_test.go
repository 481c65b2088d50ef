// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/crypto/bls/signer/localsigner"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/apk"
	"github.com/luxfi/quorum/keys"
)

type stubOracle struct {
	stakes map[ids.ShortID]map[uint8]uint64
	totals map[uint8]uint64
}

func (o *stubOracle) StakeOf(operator ids.ShortID, quorum uint8) (uint64, error) {
	return o.stakes[operator][quorum], nil
}

func (o *stubOracle) TotalStake(quorum uint8) (uint64, error) {
	return o.totals[quorum], nil
}

type stubApprover struct {
	err   error
	calls int
}

func (a *stubApprover) VerifyApproval(ids.ShortID, []Kick, Approval) error {
	a.calls++
	return a.err
}

type recordingSink struct {
	events     []Event
	firstJoins []ids.ShortID
	fullLeaves []ids.ShortID
}

func (s *recordingSink) Notify(e Event)            { s.events = append(s.events, e) }
func (s *recordingSink) OnFirstJoin(a ids.ShortID) { s.firstJoins = append(s.firstJoins, a) }
func (s *recordingSink) OnFullLeave(a ids.ShortID) { s.fullLeaves = append(s.fullLeaves, a) }
func (s *recordingSink) lastEvent() Event          { return s.events[len(s.events)-1] }

type testEnv struct {
	c        *Coordinator
	db       database.Database
	oracle   *stubOracle
	approver *stubApprover
	sink     *recordingSink
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	require := require.New(t)

	env := &testEnv{
		db: memdb.New(),
		oracle: &stubOracle{
			stakes: make(map[ids.ShortID]map[uint8]uint64),
			totals: make(map[uint8]uint64),
		},
		approver: &stubApprover{},
		sink:     &recordingSink{},
		now:      time.Unix(1_000_000, 0),
	}
	c, err := New(
		Config{EjectionCooldown: time.Hour},
		env.db,
		env.oracle,
		env.approver,
		env.sink,
		env.sink,
		log.NoLog{},
		metric.NewRegistry(),
	)
	require.NoError(err)
	c.Clock().Set(env.now)
	env.c = c
	return env
}

func (e *testEnv) setStake(operator ids.ShortID, quorum uint8, stake uint64) {
	if e.oracle.stakes[operator] == nil {
		e.oracle.stakes[operator] = make(map[uint8]uint64)
	}
	e.oracle.stakes[operator][quorum] = stake
}

func newTestAccount(t *testing.T) (ids.ShortID, *keys.ProofOfPossession) {
	t.Helper()
	require := require.New(t)

	account := ids.GenerateTestShortID()
	sk, err := localsigner.New()
	require.NoError(err)
	pop, err := keys.NewProofOfPossession(sk, account)
	require.NoError(err)
	return account, pop
}

func TestCreateQuorum(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	_, err := env.c.CreateQuorum(OperatorSetParams{}, 1)
	require.Error(err) // zero operator cap

	params := OperatorSetParams{MaxOperatorCount: 4, ChurnMarginBips: 100, EjectabilityCeilingBips: 1_000}
	q, err := env.c.CreateQuorum(params, 1)
	require.NoError(err)
	require.Zero(q)
	require.Equal(1, env.c.QuorumCount())

	got, err := env.c.QuorumParams(q)
	require.NoError(err)
	require.Equal(params, got)

	_, err = env.c.QuorumParams(1)
	require.ErrorIs(err, ErrUnknownQuorum)

	q, err = env.c.CreateQuorum(params, 2)
	require.NoError(err)
	require.Equal(uint8(1), q)
}

func TestJoin(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	params := OperatorSetParams{MaxOperatorCount: 4, EjectabilityCeilingBips: 1_000}
	_, err := env.c.CreateQuorum(params, 1)
	require.NoError(err)
	_, err = env.c.CreateQuorum(params, 1)
	require.NoError(err)

	account, pop := newTestAccount(t)

	_, err = env.c.Join(account, nil, "1.2.3.4:9000", pop, 10)
	require.ErrorIs(err, ErrEmptyQuorumSet)
	_, err = env.c.Join(account, []uint8{2}, "1.2.3.4:9000", pop, 10)
	require.ErrorIs(err, ErrUnknownQuorum)
	_, err = env.c.Join(account, []uint8{0, 1}, "1.2.3.4:9000", nil, 10)
	require.ErrorIs(err, ErrKeyRequired)

	counts, err := env.c.Join(account, []uint8{0, 1}, "1.2.3.4:9000", pop, 10)
	require.NoError(err)
	require.Equal([]uint32{1, 1}, counts)

	require.Equal(StatusRegistered, env.c.Status(account))
	require.Equal([]uint8{0, 1}, env.c.Bitmap(account).Quorums())
	require.Equal("1.2.3.4:9000", env.c.Socket(account))

	id := env.c.OperatorID(account)
	require.NotEqual(ids.Empty, id)
	back, ok := env.c.Operator(id)
	require.True(ok)
	require.Equal(account, back)

	roster, err := env.c.RosterAt(0, 10)
	require.NoError(err)
	require.Equal([]ids.ID{id}, roster)

	digest, err := env.c.AggregateKeyDigestAt(0, 10)
	require.NoError(err)
	require.NotEqual(apk.ZeroDigest, digest)

	require.Equal([]ids.ShortID{account}, env.sink.firstJoins)
	last := env.sink.lastEvent()
	require.Equal(OpJoin, last.Op)
	require.Equal(account, last.Operator)
	require.Equal([]uint8{0, 1}, last.Quorums)
	require.Equal(uint64(10), last.Height)

	// Rejoining an overlapping quorum set is rejected whole.
	_, err = env.c.Join(account, []uint8{1}, "1.2.3.4:9000", pop, 11)
	require.ErrorIs(err, ErrAlreadyMember)
}

func TestJoinQuorumFull(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	_, err := env.c.CreateQuorum(OperatorSetParams{MaxOperatorCount: 1, EjectabilityCeilingBips: 1_000}, 1)
	require.NoError(err)

	first, firstPop := newTestAccount(t)
	_, err = env.c.Join(first, []uint8{0}, "a:1", firstPop, 10)
	require.NoError(err)

	second, secondPop := newTestAccount(t)
	_, err = env.c.Join(second, []uint8{0}, "b:1", secondPop, 11)
	require.ErrorIs(err, ErrQuorumFull)

	// The rejected join left no trace.
	require.Equal(StatusUnregistered, env.c.Status(second))
	count, err := env.c.OperatorCount(0)
	require.NoError(err)
	require.Equal(uint32(1), count)
}

func TestJoinWithChurn(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	params := OperatorSetParams{
		MaxOperatorCount:        2,
		ChurnMarginBips:         1_000,
		EjectabilityCeilingBips: 3_000,
	}
	_, err := env.c.CreateQuorum(params, 1)
	require.NoError(err)

	alice, alicePop := newTestAccount(t)
	bob, bobPop := newTestAccount(t)
	carol, carolPop := newTestAccount(t)

	_, err = env.c.Join(alice, []uint8{0}, "alice:1", alicePop, 10)
	require.NoError(err)
	_, err = env.c.Join(bob, []uint8{0}, "bob:1", bobPop, 11)
	require.NoError(err)

	env.setStake(alice, 0, 100)
	env.setStake(bob, 0, 500)
	env.setStake(carol, 0, 200)
	env.oracle.totals[0] = 800

	kicks := []Kick{{Quorum: 0, Operator: alice}}

	// Carol cannot displace Bob: his stake clears hers by the margin and he
	// holds more than the ejectability ceiling.
	_, err = env.c.JoinWithChurn(carol, []uint8{0}, "carol:1", []Kick{{Quorum: 0, Operator: bob}}, Approval{}, carolPop, 12)
	require.ErrorIs(err, ErrChurnNotJustified)

	_, err = env.c.JoinWithChurn(carol, []uint8{0}, "carol:1", nil, Approval{}, carolPop, 12)
	require.ErrorIs(err, ErrMissingKick)

	_, err = env.c.JoinWithChurn(carol, []uint8{0}, "carol:1", []Kick{{Quorum: 0, Operator: carol}}, Approval{}, carolPop, 12)
	require.ErrorIs(err, ErrSelfChurn)

	_, err = env.c.JoinWithChurn(carol, []uint8{0}, "carol:1", []Kick{{Quorum: 0, Operator: ids.GenerateTestShortID()}}, Approval{}, carolPop, 12)
	require.ErrorIs(err, ErrKickNotMember)

	digestBefore, err := env.c.AggregateKeyDigestAt(0, 11)
	require.NoError(err)

	counts, err := env.c.JoinWithChurn(carol, []uint8{0}, "carol:1", kicks, Approval{}, carolPop, 12)
	require.NoError(err)
	require.Equal([]uint32{2}, counts)
	require.Equal(1, env.approver.calls)

	// Carol is in, Alice is out with her ejection clock started.
	require.Equal(StatusRegistered, env.c.Status(carol))
	require.Equal(StatusDeregistered, env.c.Status(alice))
	require.True(env.c.Bitmap(alice).IsEmpty())
	require.Equal([]ids.ShortID{alice}, env.sink.fullLeaves)

	roster, err := env.c.RosterAt(0, 12)
	require.NoError(err)
	require.Equal([]ids.ID{env.c.OperatorID(bob), env.c.OperatorID(carol)}, roster)

	// The pre-churn view is intact.
	roster, err = env.c.RosterAt(0, 11)
	require.NoError(err)
	require.Equal([]ids.ID{env.c.OperatorID(alice), env.c.OperatorID(bob)}, roster)
	digest, err := env.c.AggregateKeyDigestAt(0, 11)
	require.NoError(err)
	require.Equal(digestBefore, digest)

	var evict, join *Event
	for i := range env.sink.events {
		e := &env.sink.events[i]
		if e.Height != 12 {
			continue
		}
		switch e.Op {
		case OpEvict:
			evict = e
		case OpJoin:
			join = e
		}
	}
	require.NotNil(evict)
	require.Equal(alice, evict.Operator)
	require.NotNil(join)
	require.Equal(carol, join.Operator)
}

func TestJoinWithChurnBelowCapSkipsApprover(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	_, err := env.c.CreateQuorum(OperatorSetParams{MaxOperatorCount: 2, EjectabilityCeilingBips: 1_000}, 1)
	require.NoError(err)

	account, pop := newTestAccount(t)
	counts, err := env.c.JoinWithChurn(account, []uint8{0}, "a:1", nil, Approval{}, pop, 10)
	require.NoError(err)
	require.Equal([]uint32{1}, counts)
	require.Zero(env.approver.calls)
}

func TestCooldown(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	_, err := env.c.CreateQuorum(OperatorSetParams{MaxOperatorCount: 4, EjectabilityCeilingBips: 1_000}, 1)
	require.NoError(err)

	account, pop := newTestAccount(t)
	_, err = env.c.Join(account, []uint8{0}, "a:1", pop, 10)
	require.NoError(err)

	require.NoError(env.c.Eject(account, []uint8{0}, 11))
	require.Equal(StatusDeregistered, env.c.Status(account))

	cooldown := time.Hour

	env.c.Clock().Set(env.now.Add(cooldown - time.Second))
	_, err = env.c.Join(account, []uint8{0}, "a:1", pop, 12)
	require.ErrorIs(err, ErrCooldownActive)

	env.c.Clock().Set(env.now.Add(cooldown))
	_, err = env.c.Join(account, []uint8{0}, "a:1", pop, 12)
	require.ErrorIs(err, ErrCooldownActive)

	env.c.Clock().Set(env.now.Add(cooldown + time.Second))
	counts, err := env.c.Join(account, []uint8{0}, "a:1", pop, 12)
	require.NoError(err)
	require.Equal([]uint32{1}, counts)
	require.Equal(StatusRegistered, env.c.Status(account))
}

func TestLeave(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	params := OperatorSetParams{MaxOperatorCount: 4, EjectabilityCeilingBips: 1_000}
	_, err := env.c.CreateQuorum(params, 1)
	require.NoError(err)
	_, err = env.c.CreateQuorum(params, 1)
	require.NoError(err)

	account, pop := newTestAccount(t)
	_, err = env.c.Join(account, []uint8{0, 1}, "a:1", pop, 10)
	require.NoError(err)

	require.ErrorIs(env.c.Leave(account, nil, 11), ErrEmptyQuorumSet)
	require.ErrorIs(env.c.Leave(ids.GenerateTestShortID(), []uint8{0}, 11), ErrNotCurrentMember)

	// A partial leave keeps the account registered.
	require.NoError(env.c.Leave(account, []uint8{0}, 11))
	require.Equal(StatusRegistered, env.c.Status(account))
	require.Equal([]uint8{1}, env.c.Bitmap(account).Quorums())
	require.Empty(env.sink.fullLeaves)

	// A leave naming any quorum the account is not in fails whole.
	require.ErrorIs(env.c.Leave(account, []uint8{0, 1}, 12), ErrNotCurrentMember)
	require.Equal([]uint8{1}, env.c.Bitmap(account).Quorums())

	// Leaving the last quorum deregisters and starts the cooldown.
	require.NoError(env.c.Leave(account, []uint8{1}, 12))
	require.Equal(StatusDeregistered, env.c.Status(account))
	require.Equal([]ids.ShortID{account}, env.sink.fullLeaves)

	_, err = env.c.Join(account, []uint8{0}, "a:1", pop, 13)
	require.ErrorIs(err, ErrCooldownActive)

	digest, err := env.c.AggregateKeyDigestAt(1, 12)
	require.NoError(err)
	require.Equal(apk.ZeroDigest, digest)
}

func TestUpdateSocket(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	_, err := env.c.CreateQuorum(OperatorSetParams{MaxOperatorCount: 4, EjectabilityCeilingBips: 1_000}, 1)
	require.NoError(err)

	account, pop := newTestAccount(t)
	require.ErrorIs(env.c.UpdateSocket(account, "b:2"), ErrNotRegistered)

	_, err = env.c.Join(account, []uint8{0}, "a:1", pop, 10)
	require.NoError(err)

	require.NoError(env.c.UpdateSocket(account, "b:2"))
	require.Equal("b:2", env.c.Socket(account))
	require.Equal(OpSocketUpdated, env.sink.lastEvent().Op)
}

func TestUpdateKey(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	_, err := env.c.CreateQuorum(OperatorSetParams{MaxOperatorCount: 4, EjectabilityCeilingBips: 1_000}, 1)
	require.NoError(err)

	account, pop := newTestAccount(t)
	_, err = env.c.Join(account, []uint8{0}, "a:1", pop, 10)
	require.NoError(err)

	sk, err := localsigner.New()
	require.NoError(err)
	newPop, err := keys.NewProofOfPossession(sk, account)
	require.NoError(err)

	// Members cannot swap keys while in any quorum.
	_, err = env.c.UpdateKey(account, newPop)
	require.ErrorIs(err, ErrActiveMember)

	require.NoError(env.c.Leave(account, []uint8{0}, 11))

	oldID := env.c.OperatorID(account)
	newID, err := env.c.UpdateKey(account, newPop)
	require.NoError(err)
	require.NotEqual(oldID, newID)
	require.Equal(newID, env.c.OperatorID(account))
	require.Equal(OpKeyUpdated, env.sink.lastEvent().Op)
}

func TestReload(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	params := OperatorSetParams{
		MaxOperatorCount:        2,
		ChurnMarginBips:         1_000,
		EjectabilityCeilingBips: 3_000,
	}
	_, err := env.c.CreateQuorum(params, 1)
	require.NoError(err)

	alice, alicePop := newTestAccount(t)
	bob, bobPop := newTestAccount(t)
	carol, carolPop := newTestAccount(t)

	_, err = env.c.Join(alice, []uint8{0}, "alice:1", alicePop, 10)
	require.NoError(err)
	_, err = env.c.Join(bob, []uint8{0}, "bob:1", bobPop, 11)
	require.NoError(err)

	env.setStake(bob, 0, 500)
	env.setStake(carol, 0, 200)
	env.setStake(alice, 0, 100)
	env.oracle.totals[0] = 800

	_, err = env.c.JoinWithChurn(carol, []uint8{0}, "carol:1", []Kick{{Quorum: 0, Operator: alice}}, Approval{}, carolPop, 12)
	require.NoError(err)

	reloaded, err := New(
		Config{EjectionCooldown: time.Hour},
		env.db,
		env.oracle,
		env.approver,
		nil,
		nil,
		log.NoLog{},
		metric.NewRegistry(),
	)
	require.NoError(err)

	require.Equal(1, reloaded.QuorumCount())
	got, err := reloaded.QuorumParams(0)
	require.NoError(err)
	require.Equal(params, got)

	require.Equal(StatusRegistered, reloaded.Status(bob))
	require.Equal(StatusDeregistered, reloaded.Status(alice))
	require.Equal("carol:1", reloaded.Socket(carol))
	require.Equal(env.c.OperatorID(carol), reloaded.OperatorID(carol))

	// The per-quorum operator gauge is re-seeded from the replayed streams,
	// not left at zero until the next mutation.
	require.Equal(float64(2), testutil.ToFloat64(metric.AsCollector(reloaded.metrics.quorumOperators)))

	// Every historical view matches the original instance.
	for _, height := range []uint64{10, 11, 12} {
		want, err := env.c.RosterAt(0, height)
		require.NoError(err)
		gotRoster, err := reloaded.RosterAt(0, height)
		require.NoError(err)
		require.Equal(want, gotRoster)

		wantDigest, err := env.c.AggregateKeyDigestAt(0, height)
		require.NoError(err)
		gotDigest, err := reloaded.AggregateKeyDigestAt(0, height)
		require.NoError(err)
		require.Equal(wantDigest, gotDigest)
	}

	// The cooldown stamped before the restart still binds.
	reloaded.Clock().Set(env.now.Add(time.Minute))
	_, err = reloaded.Join(alice, []uint8{0}, "alice:1", alicePop, 13)
	require.ErrorIs(err, ErrCooldownActive)
}
