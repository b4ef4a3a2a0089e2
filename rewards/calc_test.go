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
	"testing"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/stretchr/testify/assert"
)

func TestEffectiveBalanceAtMinimum(t *testing.T) {
	// At exactly the minimum quarter point with zero reputation the
	// effective balance is the locked stake itself
	eb := EffectiveBalance(3, 400, 2000, 3, 0, 100*dao.TokenUnit)
	assert.Equal(t, uint64(100*dao.TokenUnit), eb)
}

func TestEffectiveBalanceZeroParticipation(t *testing.T) {
	eb := EffectiveBalance(3, 400, 2000, 0, 5000, 100*dao.TokenUnit)
	assert.Equal(t, uint64(0), eb)
}

func TestEffectiveBalanceDegradedBase(t *testing.T) {
	// qp=1 of min 3: base = floor(90e9/3) = 30e9, then scaled by
	// (400+1-3)/400 = 398/400 with zero reputation
	eb := EffectiveBalance(3, 400, 2000, 1, 0, 90*dao.TokenUnit)
	assert.Equal(t, uint64(30*dao.TokenUnit)*398/400, eb)
}

func TestEffectiveBalanceMonotonicInParticipation(t *testing.T) {
	prev := uint64(0)
	for qp := uint64(0); qp <= 50; qp++ {
		eb := EffectiveBalance(3, 400, 2000, qp, 100, 1000*dao.TokenUnit)
		assert.GreaterOrEqual(t, eb, prev,
			"effective balance must be non-decreasing in quarter points")
		prev = eb
	}
}

func TestEffectiveBalanceReputationScaling(t *testing.T) {
	low := EffectiveBalance(3, 400, 2000, 5, 0, 100*dao.TokenUnit)
	high := EffectiveBalance(3, 400, 2000, 5, 2000, 100*dao.TokenUnit)
	// Doubling the reputation scale term doubles the balance
	assert.Equal(t, 2*low, high)
}

func TestDemurrageBasic(t *testing.T) {
	rate := dao.Ratio{Num: 165, Den: 10_000_000}
	// 950e9 over 50 days at 0.00165%/day
	cut := Demurrage(950*dao.TokenUnit, 50, rate)
	assert.Equal(t, uint64(783_750_000), cut)
}

func TestDemurrageZeroDays(t *testing.T) {
	rate := dao.Ratio{Num: 165, Den: 10_000_000}
	assert.Equal(t, uint64(0), Demurrage(950*dao.TokenUnit, 0, rate))
}

func TestDemurrageCappedAtBalance(t *testing.T) {
	// Absurdly long elapsed time cannot take more than the balance
	rate := dao.Ratio{Num: 165, Den: 10_000_000}
	cut := Demurrage(dao.TokenUnit, 100_000_000, rate)
	assert.Equal(t, uint64(dao.TokenUnit), cut)
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, uint64(0), daysBetween(a, a))
	assert.Equal(t, uint64(0), daysBetween(a, a.Add(23*time.Hour)))
	assert.Equal(t, uint64(1), daysBetween(a, a.Add(25*time.Hour)))
	assert.Equal(t, uint64(50), daysBetween(a, a.Add(50*24*time.Hour)))
	// Backwards time yields zero, not underflow
	assert.Equal(t, uint64(0), daysBetween(a.Add(time.Hour), a))
}
