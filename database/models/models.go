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

// Package models defines the gorm table models for the engine's persisted
// entities. Nested structures (funding versions, vote records, parameter
// sets) are stored as JSON columns; everything queried by key gets its own
// column.
package models

import "time"

// MigrateModels is the list of models to auto-migrate at startup
var MigrateModels = []any{
	&Participant{},
	&QuarterInfo{},
	&AccrualCursor{},
	&Proposal{},
	&SpecialProposal{},
	&VoterNonce{},
	&EngineState{},
}

type Participant struct {
	ID uint `gorm:"primarykey"`
	// NOTE: the address would normally be the primary key, but GORM doesn't
	// like non-integer primary keys with zero values
	Address                 string `gorm:"uniqueIndex"`
	LockedStake             uint64
	EffectiveStake          uint64
	EffectiveModeratorStake uint64
	IsModerator             bool
	Reputation              uint64

	LastParticipatedQuarter      uint64
	LastQuarterRewardsUpdated    uint64
	LastQuarterReputationUpdated uint64
	ClaimableReward              uint64
	RewardAccruedTime            time.Time

	PendingQuarter                   uint64
	PendingEffectiveBalance          uint64
	PendingModeratorEffectiveBalance uint64

	QuarterPoints          map[uint64]uint64 `gorm:"serializer:json"`
	ModeratorQuarterPoints map[uint64]uint64 `gorm:"serializer:json"`
}

func (Participant) TableName() string {
	return "participant"
}

type QuarterInfo struct {
	ID      uint   `gorm:"primarykey"`
	Quarter uint64 `gorm:"uniqueIndex"`

	MinimumQuarterPoint          uint64
	ModeratorMinimumQuarterPoint uint64
	QuarterPointScale            uint64
	ReputationPointScale         uint64
	ModeratorPortionNum          uint64
	ModeratorPortionDen          uint64

	TotalEffectiveStake          uint64
	TotalModeratorEffectiveStake uint64
	RewardsPool                  uint64
	DistributionTime             time.Time
	CumulativeRewards            uint64
}

func (QuarterInfo) TableName() string {
	return "quarter_info"
}

// AccrualCursor is the single-row continuation of an in-progress
// quarter-boundary pass
type AccrualCursor struct {
	ID                    uint `gorm:"primarykey"`
	Quarter               uint64
	LastAddress           string
	Visited               int
	SumEffective          uint64
	SumModeratorEffective uint64
}

func (AccrualCursor) TableName() string {
	return "accrual_cursor"
}

// VersionDoc is the JSON shape of one funding plan revision
type VersionDoc struct {
	DocHash            string
	MilestoneDurations []int64 // nanoseconds
	MilestoneFundings  []uint64
	FinalReward        uint64
	SubmittedAt        time.Time
}

// VoteRecordDoc is the JSON shape of one commit-reveal vote record
type VoteRecordDoc struct {
	Voter      string
	CommitHash string
	Choice     bool
	Revealed   bool
	Weight     uint64
	Nonce      uint64
}

// ResultDoc is the JSON shape of a claimed round result
type ResultDoc struct {
	Passed    bool
	ForWeight uint64
	Against   uint64
	Turnout   uint64
	MinQuorum uint64
}

// RoundDoc is the JSON shape of one commit-reveal round
type RoundDoc struct {
	CommitEnds time.Time
	RevealEnds time.Time
	Records    []VoteRecordDoc
	Result     *ResultDoc
}

// DraftVoteDoc is the JSON shape of one draft vote
type DraftVoteDoc struct {
	Voter  string
	Choice bool
	Weight uint64
}

// DraftDoc is the JSON shape of a draft tally
type DraftDoc struct {
	Closes time.Time
	Votes  []DraftVoteDoc
	Result *ResultDoc
}

type Proposal struct {
	ID         uint   `gorm:"primarykey"`
	ProposalId string `gorm:"uniqueIndex"`
	Proposer   string
	Endorser   string
	State      int

	CurrentMilestone   int
	Compliance         []bool `gorm:"serializer:json"`
	ClaimedCurrent     bool
	FundsClaimed       uint64
	FinalRewardClaimed bool

	Versions []VersionDoc `gorm:"serializer:json"`
	Draft    *DraftDoc    `gorm:"serializer:json"`
	Round    *RoundDoc    `gorm:"serializer:json"`

	CreatedAt time.Time
	FundedAt  time.Time
}

func (Proposal) TableName() string {
	return "proposal"
}

type SpecialProposal struct {
	ID         uint   `gorm:"primarykey"`
	ProposalId string `gorm:"uniqueIndex"`
	Proposer   string
	// The replacement governance parameter set, serialized whole
	NewParams []byte
	Round     *RoundDoc `gorm:"serializer:json"`
	CreatedAt time.Time
	Passed    bool
	Applied   bool
}

func (SpecialProposal) TableName() string {
	return "special_proposal"
}

// VoterNonce is the per-voter replay guard watermark
type VoterNonce struct {
	ID    uint   `gorm:"primarykey"`
	Voter string `gorm:"uniqueIndex"`
	Last  uint64
}

func (VoterNonce) TableName() string {
	return "voter_nonce"
}

// EngineState is the single-row engine-wide state: the active parameter
// set and the migration flag
type EngineState struct {
	ID        uint `gorm:"primarykey"`
	Params    []byte
	Migrated  bool
	Successor string
}

func (EngineState) TableName() string {
	return "engine_state"
}
