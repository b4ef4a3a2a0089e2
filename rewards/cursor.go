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

package rewards

import (
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/ethereum/go-ethereum/common"
)

// Cursor is the continuation of an in-progress quarter-boundary pass. It is
// persisted between invocations so a pass interrupted by the per-call work
// budget resumes exactly where it left off, and cleared when the pass
// completes. While a cursor is live for the current quarter, stake-mutating
// operations are rejected so the participant set cannot change under the
// pass.
type Cursor struct {
	// Quarter being finalized by this pass
	Quarter uint64
	// Last participant visited; the zero address means none yet
	LastAddress common.Address
	// Participants visited so far; the pass is complete when this reaches
	// the ledger's record count
	Visited int
	// Partial effective-balance sums for the quarter being measured
	SumEffective          uint64
	SumModeratorEffective uint64
}

// QuarterInfo is the immutable record written when a quarter is finalized.
// The record for quarter Q holds the effective-balance totals measured over
// quarter Q-1 and the rewards pool distributed at the start of Q. Written
// exactly once per quarter.
type QuarterInfo struct {
	Quarter uint64

	// Governance constants snapshotted for settlement of quarter Q-1
	MinimumQuarterPoint          uint64
	ModeratorMinimumQuarterPoint uint64
	QuarterPointScale            uint64
	ReputationPointScale         uint64
	ModeratorRewardsPortion      dao.Ratio

	// Effective-balance totals across all participants for quarter Q-1
	TotalEffectiveStake          uint64
	TotalModeratorEffectiveStake uint64

	// Pool available for distribution this quarter and when it was fixed
	RewardsPool      uint64
	DistributionTime time.Time

	// Sum of all pools distributed up to and including this quarter
	CumulativeRewards uint64
}
