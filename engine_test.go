// Copyright 2025 Digix Global
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daoengine

import (
	"testing"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/epoch"
	"github.com/digixglobal/daoengine/event"
	"github.com/digixglobal/daoengine/proposal"
	"github.com/digixglobal/daoengine/rewards"
	"github.com/digixglobal/daoengine/voting"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	quarterStart = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	alice   = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	bob     = common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	carol   = common.HexToAddress("0xcccc000000000000000000000000000000000007")
	founder = common.HexToAddress("0xffff000000000000000000000000000000000003")
	prl     = common.HexToAddress("0x9999000000000000000000000000000000000004")
	rootAdm = common.HexToAddress("0x8888000000000000000000000000000000000005")
)

type testEnv struct {
	engine    *Engine
	stakeV    *dao.MemoryVault
	rewardsV  *dao.MemoryVault
	treasuryV *dao.MemoryVault
	roles     *dao.MemoryRoleRegistry
	now       time.Time
}

// testParams lowers the moderator reputation floor so moderators can exist
// from quarter one
func testParams() dao.Params {
	p := dao.DefaultParams()
	p.ModeratorMinimumReputation = 0
	return p
}

func newTestEnv(t *testing.T, dataDir string, params dao.Params) *testEnv {
	t.Helper()
	env := &testEnv{
		stakeV:    dao.NewMemoryVault(),
		rewardsV:  dao.NewMemoryVault(),
		treasuryV: dao.NewMemoryVault(),
		roles:     dao.NewMemoryRoleRegistry(),
		now:       quarterStart.Add(time.Hour),
	}
	env.roles.Grant(founder, dao.RoleFounder)
	env.roles.Grant(prl, dao.RolePRL)
	env.roles.Grant(rootAdm, dao.RoleRoot)
	engine, err := New(NewConfig(
		WithParams(params),
		WithQuarterStart(quarterStart),
		WithDataDir(dataDir),
		WithStakeVault(env.stakeV),
		WithRewardsVault(env.rewardsV),
		WithTreasuryVault(env.treasuryV),
		WithRoleRegistry(env.roles),
		WithNowFunc(func() time.Time { return env.now }),
	))
	require.NoError(t, err)
	env.engine = engine
	t.Cleanup(func() {
		engine.Stop() //nolint:errcheck
	})
	return env
}

func (env *testEnv) fund(addr common.Address, amount uint64) {
	env.stakeV.Mint(addr, amount)
	env.stakeV.Approve(addr, amount)
}

// finalize drives FinalizeQuarter to completion and returns the record
func (env *testEnv) finalize(t *testing.T) *rewards.QuarterInfo {
	t.Helper()
	for {
		info, done, err := env.engine.FinalizeQuarter(founder)
		require.NoError(t, err)
		if done {
			return info
		}
	}
}

// share mirrors the engine's pool split: floor(eb*pool*num/(total*den))
func share(eb, pool, num, den, total uint64) uint64 {
	if eb == 0 || total == 0 {
		return 0
	}
	v := new(uint256.Int).Mul(uint256.NewInt(eb), uint256.NewInt(pool))
	v.Mul(v, uint256.NewInt(num))
	v.Div(v, new(uint256.Int).Mul(
		uint256.NewInt(total),
		uint256.NewInt(den),
	))
	return v.Uint64()
}

func TestNewConfigValidation(t *testing.T) {
	_, err := New(NewConfig())
	require.Error(t, err)

	_, err = New(NewConfig(
		WithQuarterStart(quarterStart),
		WithStakeVault(dao.NewMemoryVault()),
	))
	require.Error(t, err)
}

func TestGovernanceLifecycle(t *testing.T) {
	params := testParams()
	env := newTestEnv(t, "", params)
	e := env.engine

	env.rewardsV.MintVault(1000 * dao.TokenUnit)
	env.treasuryV.MintVault(10_000 * dao.TokenUnit)
	env.fund(alice, 1000*dao.TokenUnit)
	env.fund(bob, 100*dao.TokenUnit)

	_, quarterCh := e.EventBus().Subscribe(event.QuarterStartedEventType)

	// Quarter 1, locking phase: both stake. Alice clears the moderator
	// stake threshold.
	require.NoError(t, e.LockStake(alice, 1000*dao.TokenUnit))
	require.NoError(t, e.LockStake(bob, 100*dao.TokenUnit))
	p, ok := e.Participant(alice)
	require.True(t, ok)
	assert.True(t, p.IsModerator)
	assert.Equal(t, uint64(1100*dao.TokenUnit), e.TotalLockedStake())

	// Main phase: proposal lifecycle through its first milestone
	env.now = quarterStart.Add(15 * 24 * time.Hour)
	doc := []byte("wallet integration proposal, two milestones")
	id, err := e.SubmitProposal(
		bob,
		doc,
		[]time.Duration{30 * 24 * time.Hour, 30 * 24 * time.Hour},
		[]uint64{100 * dao.TokenUnit, 50 * dao.TokenUnit},
		10*dao.TokenUnit,
	)
	require.NoError(t, err)
	stored, err := e.Document(id)
	require.NoError(t, err)
	assert.Equal(t, doc, stored)

	require.NoError(t, e.EndorseProposal(id, alice))
	// Bob is not a moderator and cannot draft vote
	require.ErrorIs(t, e.DraftVote(id, bob, true), dao.ErrNotEligible)
	require.NoError(t, e.DraftVote(id, alice, true))

	env.now = env.now.Add(params.DraftVotingDuration + time.Hour)
	result, err := e.ClaimDraftResult(id)
	require.NoError(t, err)
	require.True(t, result.Passed)

	require.NoError(t, e.StartProposalRound(id, bob))
	roundStart := env.now
	salt := common.HexToHash("0x05")
	env.now = roundStart.Add(time.Hour)
	require.NoError(t, e.CommitVote(
		id, alice, voting.SealVote(alice, true, salt), 1,
	))
	require.NoError(t, e.CommitVote(
		id, bob, voting.SealVote(bob, true, salt), 1,
	))
	// Nonce replay is rejected
	require.ErrorIs(t, e.CommitVote(
		id, bob, voting.SealVote(bob, true, salt), 1,
	), dao.ErrNonceReused)

	env.now = roundStart.Add(params.CommitPhaseDuration + time.Hour)
	require.NoError(t, e.RevealVote(id, alice, true, salt))
	require.NoError(t, e.RevealVote(id, bob, true, salt))

	env.now = roundStart.
		Add(params.CommitPhaseDuration).
		Add(params.RevealPhaseDuration).
		Add(time.Hour)
	result, err = e.ClaimVotingResult(id)
	require.NoError(t, err)
	require.True(t, result.Passed)

	// PRL gate then milestone release
	_, err = e.ClaimFunding(id, bob)
	require.ErrorIs(t, err, dao.ErrNotAuthorized)
	require.NoError(t, e.SetCompliance(prl, id, 0, true))
	amount, err := e.ClaimFunding(id, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(100*dao.TokenUnit), amount)
	assert.Equal(t, uint64(100*dao.TokenUnit), env.treasuryV.BalanceOf(bob))

	// Quarter 2 boundary: finalize and distribute
	env.now = quarterStart.Add(90*24*time.Hour + time.Hour)
	require.ErrorIs(t, e.LockStake(bob, 1), dao.ErrQuarterNotFinalized)

	info := env.finalize(t)
	require.NotNil(t, info)
	assert.Equal(t, uint64(2), info.Quarter)
	assert.Equal(t, uint64(1000*dao.TokenUnit), info.RewardsPool)

	select {
	case evt := <-quarterCh:
		payload, ok := evt.Data.(event.QuarterStartedEvent)
		require.True(t, ok)
		assert.Equal(t, uint64(2), payload.Quarter)
	default:
		t.Fatal("expected a quarter started event")
	}

	// Expected shares: one reveal each in quarter 1 (qp=1), alice also one
	// draft vote (moderator qp=1), reputation still zero
	ebAlice := rewards.EffectiveBalance(
		params.MinimumQuarterPoint,
		params.QuarterPointScale,
		params.ReputationPointScale,
		1, 0, 1000*dao.TokenUnit,
	)
	ebBob := rewards.EffectiveBalance(
		params.MinimumQuarterPoint,
		params.QuarterPointScale,
		params.ReputationPointScale,
		1, 0, 100*dao.TokenUnit,
	)
	modEbAlice := rewards.EffectiveBalance(
		params.ModeratorMinimumQuarterPoint,
		params.QuarterPointScale,
		params.ReputationPointScale,
		1, 0, 1000*dao.TokenUnit,
	)
	require.Equal(t, ebAlice+ebBob, info.TotalEffectiveStake)
	require.Equal(t, modEbAlice, info.TotalModeratorEffectiveStake)

	portion := params.ModeratorRewardsPortion
	wantAlice := share(
		ebAlice, info.RewardsPool,
		portion.Den-portion.Num, portion.Den,
		info.TotalEffectiveStake,
	) + share(
		modEbAlice, info.RewardsPool,
		portion.Num, portion.Den,
		info.TotalModeratorEffectiveStake,
	)
	wantBob := share(
		ebBob, info.RewardsPool,
		portion.Den-portion.Num, portion.Den,
		info.TotalEffectiveStake,
	)

	env.now = env.now.Add(2 * time.Hour) // same day, no demurrage
	payout, err := e.ClaimRewards(alice)
	require.NoError(t, err)
	assert.Equal(t, wantAlice, payout)
	payout, err = e.ClaimRewards(bob)
	require.NoError(t, err)
	assert.Equal(t, wantBob, payout)
	assert.Equal(t, wantAlice, env.rewardsV.BalanceOf(alice))
	assert.Equal(t, wantBob, env.rewardsV.BalanceOf(bob))
}

// Stake locked mid-quarter votes at its prorated effective weight, and the
// milestone quorum is computed off the effective-stake base rather than raw
// locked stake.
func TestMilestoneVoteUsesEffectiveStake(t *testing.T) {
	params := testParams()
	env := newTestEnv(t, "", params)
	e := env.engine

	env.treasuryV.MintVault(10_000 * dao.TokenUnit)
	env.fund(alice, 1000*dao.TokenUnit)
	env.fund(bob, 10*dao.TokenUnit)
	env.fund(carol, 90*dao.TokenUnit)

	require.NoError(t, e.LockStake(alice, 1000*dao.TokenUnit))
	require.NoError(t, e.LockStake(bob, 10*dao.TokenUnit))

	env.now = quarterStart.Add(15 * 24 * time.Hour)
	id, err := e.SubmitProposal(
		bob,
		[]byte("mid-quarter staking proposal"),
		[]time.Duration{30 * 24 * time.Hour},
		[]uint64{100 * dao.TokenUnit},
		50*dao.TokenUnit,
	)
	require.NoError(t, err)
	require.NoError(t, e.EndorseProposal(id, alice))
	require.NoError(t, e.DraftVote(id, alice, true))
	env.now = env.now.Add(params.DraftVotingDuration + time.Hour)
	result, err := e.ClaimDraftResult(id)
	require.NoError(t, err)
	require.True(t, result.Passed)

	// Carol locks with exactly half the quarter remaining, so only half of
	// her stake is effective until the next rollover
	env.now = quarterStart.Add(45 * 24 * time.Hour)
	require.NoError(t, e.LockStake(carol, 90*dao.TokenUnit))
	p, ok := e.Participant(carol)
	require.True(t, ok)
	require.Equal(t, uint64(45*dao.TokenUnit), p.EffectiveStake)

	require.NoError(t, e.StartProposalRound(id, bob))
	roundStart := env.now
	salt := common.HexToHash("0x11")
	env.now = roundStart.Add(time.Hour)
	require.NoError(t, e.CommitVote(
		id, alice, voting.SealVote(alice, true, salt), 1,
	))
	require.NoError(t, e.CommitVote(
		id, carol, voting.SealVote(carol, false, salt), 1,
	))

	env.now = roundStart.Add(params.CommitPhaseDuration + time.Hour)
	require.NoError(t, e.RevealVote(id, alice, true, salt))
	require.NoError(t, e.RevealVote(id, carol, false, salt))

	env.now = roundStart.
		Add(params.CommitPhaseDuration).
		Add(params.RevealPhaseDuration).
		Add(time.Hour)
	result, err = e.ClaimVotingResult(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000*dao.TokenUnit), result.ForWeight)
	assert.Equal(t, uint64(45*dao.TokenUnit), result.Against)
	wantQuorum := voting.MinQuorum(
		1055*dao.TokenUnit,
		params.VotingQuorum,
		150*dao.TokenUnit,
		env.treasuryV.VaultBalance(),
	)
	assert.Equal(t, wantQuorum, result.MinQuorum)
}

// A moderator may change their draft vote, but quarter points are only
// earned on the first vote per draft.
func TestDraftRevoteEarnsPointsOnce(t *testing.T) {
	params := testParams()
	env := newTestEnv(t, "", params)
	e := env.engine

	env.treasuryV.MintVault(10_000 * dao.TokenUnit)
	env.fund(alice, 1000*dao.TokenUnit)
	env.fund(bob, 100*dao.TokenUnit)
	require.NoError(t, e.LockStake(alice, 1000*dao.TokenUnit))
	require.NoError(t, e.LockStake(bob, 100*dao.TokenUnit))
	quarter, err := e.CurrentQuarter()
	require.NoError(t, err)

	env.now = quarterStart.Add(15 * 24 * time.Hour)
	id, err := e.SubmitProposal(
		bob,
		[]byte("repeatedly reconsidered proposal"),
		[]time.Duration{30 * 24 * time.Hour},
		[]uint64{100 * dao.TokenUnit},
		10*dao.TokenUnit,
	)
	require.NoError(t, err)
	require.NoError(t, e.EndorseProposal(id, alice))

	require.NoError(t, e.DraftVote(id, alice, true))
	require.NoError(t, e.DraftVote(id, alice, false))
	require.NoError(t, e.DraftVote(id, alice, true))

	p, ok := e.Participant(alice)
	require.True(t, ok)
	assert.Equal(
		t,
		params.DraftVoteQuarterPoint,
		p.ModeratorQuarterPoint(quarter),
	)
}

func TestSubmitProposalRequiresMainPhase(t *testing.T) {
	env := newTestEnv(t, "", testParams())
	env.treasuryV.MintVault(1000 * dao.TokenUnit)
	env.fund(alice, 100*dao.TokenUnit)
	require.NoError(t, env.engine.LockStake(alice, 100*dao.TokenUnit))

	// Still in the locking phase
	_, err := env.engine.SubmitProposal(
		alice,
		[]byte("too early"),
		[]time.Duration{30 * 24 * time.Hour},
		[]uint64{10 * dao.TokenUnit},
		0,
	)
	require.ErrorIs(t, err, dao.ErrWrongPhase)
}

func TestFinalizeQuarterRequiresFounder(t *testing.T) {
	env := newTestEnv(t, "", testParams())
	_, _, err := env.engine.FinalizeQuarter(alice)
	require.ErrorIs(t, err, dao.ErrNotAuthorized)
}

func TestSpecialProposalReplacesParams(t *testing.T) {
	params := testParams()
	env := newTestEnv(t, "", params)
	e := env.engine
	env.fund(alice, 1000*dao.TokenUnit)
	require.NoError(t, e.LockStake(alice, 1000*dao.TokenUnit))

	env.now = quarterStart.Add(15 * 24 * time.Hour)
	newParams := params
	newParams.MinimumQuarterPoint = 5
	id, err := e.SubmitSpecial(founder, []byte("raise the floor"), newParams)
	require.NoError(t, err)

	submitAt := env.now
	salt := common.HexToHash("0x07")
	env.now = submitAt.Add(time.Hour)
	require.NoError(t, e.CommitSpecialVote(
		id, alice, voting.SealVote(alice, true, salt), 1,
	))
	env.now = submitAt.Add(params.SpecialCommitDuration + time.Hour)
	require.NoError(t, e.RevealSpecialVote(id, alice, true, salt))
	env.now = submitAt.
		Add(params.SpecialCommitDuration).
		Add(params.SpecialRevealDuration).
		Add(time.Hour)
	result, err := e.ClaimSpecialResult(id)
	require.NoError(t, err)
	require.True(t, result.Passed)

	assert.Equal(t, uint64(5), e.Params().MinimumQuarterPoint)
	s, err := e.GetSpecial(id)
	require.NoError(t, err)
	assert.True(t, s.Applied)

	// An invalid replacement set is rejected up front
	bad := params
	bad.QuarterPointScale = 1
	_, err = e.SubmitSpecial(founder, []byte("broken"), bad)
	require.Error(t, err)
}

func TestMigration(t *testing.T) {
	env := newTestEnv(t, "", testParams())
	e := env.engine
	env.treasuryV.MintVault(500 * dao.TokenUnit)
	env.fund(alice, 100*dao.TokenUnit)
	env.fund(bob, 50*dao.TokenUnit)
	require.NoError(t, e.LockStake(alice, 100*dao.TokenUnit))
	require.NoError(t, e.LockStake(bob, 50*dao.TokenUnit))

	successor := common.HexToAddress("0x5555000000000000000000000000000000000006")
	require.ErrorIs(t, e.Migrate(alice, successor), dao.ErrNotAuthorized)
	require.NoError(t, e.Migrate(rootAdm, successor))

	migrated, to := e.Migrated()
	assert.True(t, migrated)
	assert.Equal(t, successor, to)
	// Undistributed treasury moved to the successor
	assert.Equal(t, uint64(500*dao.TokenUnit), env.treasuryV.BalanceOf(successor))
	assert.Zero(t, env.treasuryV.VaultBalance())

	// Mutations are rejected, withdrawal is not
	require.ErrorIs(t, e.LockStake(alice, 1), dao.ErrMigrated)
	_, err := e.ClaimRewards(alice)
	require.ErrorIs(t, err, dao.ErrMigrated)
	require.ErrorIs(t, e.Migrate(rootAdm, successor), dao.ErrMigrated)
	require.NoError(t, e.WithdrawStake(alice, 100*dao.TokenUnit))
	assert.Equal(t, uint64(100*dao.TokenUnit), env.stakeV.BalanceOf(alice))

	// Quarters after the handover can never be finalized, so exits must not
	// wait on settlement
	env.now = quarterStart.Add(90*24*time.Hour + time.Hour)
	require.NoError(t, e.WithdrawStake(bob, 50*dao.TokenUnit))
	assert.Equal(t, uint64(50*dao.TokenUnit), env.stakeV.BalanceOf(bob))
}

// A participant who withdraws to zero and re-locks within the same locking
// phase keeps their participation for the quarter; the gap penalty only
// applies to quarters they sat out entirely.
func TestRelockSameQuarterKeepsParticipation(t *testing.T) {
	env := newTestEnv(t, "", testParams())
	e := env.engine
	env.fund(alice, 200*dao.TokenUnit)
	require.NoError(t, e.LockStake(alice, 100*dao.TokenUnit))
	quarter, err := e.CurrentQuarter()
	require.NoError(t, err)

	require.NoError(t, e.WithdrawStake(alice, 100*dao.TokenUnit))
	p, _ := e.Participant(alice)
	assert.Zero(t, p.LockedStake)

	require.NoError(t, e.LockStake(alice, 100*dao.TokenUnit))
	p, ok := e.Participant(alice)
	require.True(t, ok)
	assert.Equal(t, quarter, p.LastParticipatedQuarter)
	require.NoError(t, e.ConfirmParticipation(alice))
}

func TestRestartRestoresState(t *testing.T) {
	dataDir := t.TempDir()
	params := testParams()
	env := newTestEnv(t, dataDir, params)
	env.treasuryV.MintVault(1000 * dao.TokenUnit)
	env.fund(alice, 100*dao.TokenUnit)
	require.NoError(t, env.engine.LockStake(alice, 100*dao.TokenUnit))

	env.now = quarterStart.Add(15 * 24 * time.Hour)
	id, err := env.engine.SubmitProposal(
		alice,
		[]byte("durable proposal"),
		[]time.Duration{30 * 24 * time.Hour},
		[]uint64{10 * dao.TokenUnit},
		dao.TokenUnit,
	)
	require.NoError(t, err)
	require.NoError(t, env.engine.Stop())

	// Reopen over the same data dir with the same collaborators
	reopened, err := New(NewConfig(
		WithParams(params),
		WithQuarterStart(quarterStart),
		WithDataDir(dataDir),
		WithStakeVault(env.stakeV),
		WithRewardsVault(env.rewardsV),
		WithTreasuryVault(env.treasuryV),
		WithRoleRegistry(env.roles),
		WithNowFunc(func() time.Time { return env.now }),
	))
	require.NoError(t, err)
	defer reopened.Stop() //nolint:errcheck

	p, ok := reopened.Participant(alice)
	require.True(t, ok)
	assert.Equal(t, uint64(100*dao.TokenUnit), p.LockedStake)
	assert.Equal(t, uint64(100*dao.TokenUnit), reopened.TotalLockedStake())

	restored, err := reopened.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, proposal.StatePreproposal, restored.State)
	doc, err := reopened.Document(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable proposal"), doc)
}

func TestCurrentPhase(t *testing.T) {
	env := newTestEnv(t, "", testParams())
	phase, err := env.engine.CurrentPhase()
	require.NoError(t, err)
	assert.Equal(t, epoch.PhaseLocking, phase)
	env.now = quarterStart.Add(20 * 24 * time.Hour)
	phase, err = env.engine.CurrentPhase()
	require.NoError(t, err)
	assert.Equal(t, epoch.PhaseMain, phase)
}
