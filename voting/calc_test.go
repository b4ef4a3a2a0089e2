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
	"testing"

	"github.com/digixglobal/daoengine/dao"
	"github.com/stretchr/testify/assert"
)

func TestMinQuorumFixedPortion(t *testing.T) {
	q := dao.QuorumParams{FixedNum: 5, FixedDen: 100, ScaleNum: 35, ScaleDen: 100}

	// No funding requested: only the fixed portion applies
	quorum := MinQuorum(1_000_000, q, 0, 10_000_000)
	assert.Equal(t, uint64(50_000), quorum)
}

func TestMinQuorumScalingPortion(t *testing.T) {
	q := dao.QuorumParams{FixedNum: 5, FixedDen: 100, ScaleNum: 35, ScaleDen: 100}

	// fixed = 50,000; scale = 1,000,000*2,000,000*35 / (10,000,000*100) = 70,000
	quorum := MinQuorum(1_000_000, q, 2_000_000, 10_000_000)
	assert.Equal(t, uint64(120_000), quorum)
}

func TestMinQuorumMonotonicInAmount(t *testing.T) {
	q := dao.QuorumParams{FixedNum: 5, FixedDen: 100, ScaleNum: 35, ScaleDen: 100}
	totalStake := uint64(123_456_789)
	treasury := uint64(987_654_321)

	prev := uint64(0)
	for amount := uint64(0); amount <= treasury; amount += treasury / 17 {
		quorum := MinQuorum(totalStake, q, amount, treasury)
		assert.GreaterOrEqual(t, quorum, prev,
			"quorum must be non-decreasing in amount requested")
		prev = quorum
	}
}

func TestMinQuorumLargeValuesNoOverflow(t *testing.T) {
	q := dao.QuorumParams{FixedNum: 5, FixedDen: 100, ScaleNum: 35, ScaleDen: 100}
	// Values whose triple product exceeds uint64
	totalStake := uint64(2_000_000) * dao.TokenUnit
	treasury := uint64(5_000_000) * dao.TokenUnit
	amount := treasury / 2

	quorum := MinQuorum(totalStake, q, amount, treasury)
	// fixed = 1e14, scale = 2e15 * 35 / 200 = 3.5e14
	assert.Equal(t, uint64(100_000)*dao.TokenUnit+uint64(350_000)*dao.TokenUnit, quorum)
}

func TestQuotaPassBoundary(t *testing.T) {
	quota := dao.Ratio{Num: 30, Den: 100}

	// Exactly at the ratio fails: 30 for, 70 against -> 30/100 == 30/100
	assert.False(t, QuotaPass(30, 70, quota))
	// One above passes
	assert.True(t, QuotaPass(31, 69, quota))
	// Well below fails
	assert.False(t, QuotaPass(10, 90, quota))
}

func TestQuotaPassNoVotes(t *testing.T) {
	quota := dao.Ratio{Num: 30, Den: 100}
	assert.False(t, QuotaPass(0, 0, quota))
}

func TestQuotaPassUnanimous(t *testing.T) {
	quota := dao.Ratio{Num: 70, Den: 100}
	assert.True(t, QuotaPass(100, 0, quota))
	assert.False(t, QuotaPass(0, 100, quota))
	// 70/100 exactly fails
	assert.False(t, QuotaPass(70, 30, quota))
	assert.True(t, QuotaPass(71, 29, quota))
}
