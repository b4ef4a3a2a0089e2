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

package voting

import (
	"github.com/digixglobal/daoengine/dao"
	"github.com/holiman/uint256"
)

// MinQuorum returns the minimum revealed weight for a vote to be binding:
//
//	floor(totalStake*fixedNum/fixedDen)
//	  + floor(totalStake*amountRequested*scaleNum/(treasuryBalance*scaleDen))
//
// Larger funding asks relative to treasury size raise the bar. All
// intermediates are 256-bit so the triple product cannot overflow.
func MinQuorum(
	totalStake uint64,
	q dao.QuorumParams,
	amountRequested uint64,
	treasuryBalance uint64,
) uint64 {
	stake := uint256.NewInt(totalStake)

	fixed := new(uint256.Int).Mul(stake, uint256.NewInt(q.FixedNum))
	fixed.Div(fixed, uint256.NewInt(q.FixedDen))

	quorum := fixed
	if amountRequested > 0 && treasuryBalance > 0 && q.ScaleNum > 0 {
		scale := new(uint256.Int).Mul(stake, uint256.NewInt(amountRequested))
		scale.Mul(scale, uint256.NewInt(q.ScaleNum))
		den := new(uint256.Int).Mul(
			uint256.NewInt(treasuryBalance),
			uint256.NewInt(q.ScaleDen),
		)
		scale.Div(scale, den)
		quorum.Add(quorum, scale)
	}
	return quorum.Uint64()
}

// QuotaPass reports whether forVotes represents a strict majority above the
// configured ratio: forVotes*den > num*(forVotes+againstVotes). Exact
// equality to the ratio fails.
func QuotaPass(forVotes, againstVotes uint64, quota dao.Ratio) bool {
	lhs := new(uint256.Int).Mul(
		uint256.NewInt(forVotes),
		uint256.NewInt(quota.Den),
	)
	total := new(uint256.Int).Add(
		uint256.NewInt(forVotes),
		uint256.NewInt(againstVotes),
	)
	rhs := total.Mul(total, uint256.NewInt(quota.Num))
	return lhs.Gt(rhs)
}
