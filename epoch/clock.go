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

// Package epoch converts wall-clock time into governance quarters and
// phases. The clock is deterministic and side-effect free; it is the single
// authority every state-mutating operation consults for phase gating.
package epoch

import (
	"fmt"
	"time"

	"github.com/digixglobal/daoengine/dao"
)

// Phase is the sub-period within a quarter.
type Phase int

const (
	// PhaseLocking is the opening sub-period of each quarter where stake can
	// be locked or withdrawn and participation reconfirmed
	PhaseLocking Phase = iota
	// PhaseMain is the remainder of the quarter where proposals are
	// submitted and voted on
	PhaseMain
)

func (p Phase) String() string {
	switch p {
	case PhaseLocking:
		return "locking"
	case PhaseMain:
		return "main"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// Clock derives the current quarter and phase from a fixed start time and
// the configured durations. The start time is immutable; durations are
// replaceable only via special-proposal governance (SetDurations).
//
// Clock is not internally synchronized. It is owned by the engine, which
// serializes all access under its single-writer execution model.
type Clock struct {
	start           time.Time
	lockingDuration time.Duration
	quarterDuration time.Duration
	now             func() time.Time
}

// ClockOptionFunc modifies a Clock during construction
type ClockOptionFunc func(*Clock)

// WithNowFunc overrides the time source, used in tests
func WithNowFunc(now func() time.Time) ClockOptionFunc {
	return func(c *Clock) {
		c.now = now
	}
}

// NewClock creates a clock with the given immutable start time and initial
// durations.
func NewClock(
	start time.Time,
	lockingDuration time.Duration,
	quarterDuration time.Duration,
	opts ...ClockOptionFunc,
) *Clock {
	c := &Clock{
		start:           start,
		lockingDuration: lockingDuration,
		quarterDuration: quarterDuration,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start returns the immutable start of the first quarter
func (c *Clock) Start() time.Time {
	return c.start
}

// Now returns the clock's current time
func (c *Clock) Now() time.Time {
	return c.now()
}

// SetDurations replaces the phase durations. Only the special-proposal
// enactment path calls this.
func (c *Clock) SetDurations(locking, quarter time.Duration) {
	c.lockingDuration = locking
	c.quarterDuration = quarter
}

// QuarterAt returns the 1-based quarter number containing t. It fails with
// ErrNotStarted for times before the start of the first quarter.
func (c *Clock) QuarterAt(t time.Time) (uint64, error) {
	if t.Before(c.start) {
		return 0, dao.ErrNotStarted
	}
	elapsed := t.Sub(c.start)
	return 1 + uint64(elapsed/c.quarterDuration), nil
}

// PhaseAt returns the phase containing t.
func (c *Clock) PhaseAt(t time.Time) (Phase, error) {
	if t.Before(c.start) {
		return 0, dao.ErrNotStarted
	}
	elapsed := t.Sub(c.start) % c.quarterDuration
	if elapsed < c.lockingDuration {
		return PhaseLocking, nil
	}
	return PhaseMain, nil
}

// CurrentQuarter returns the quarter number at the clock's current time
func (c *Clock) CurrentQuarter() (uint64, error) {
	return c.QuarterAt(c.now())
}

// CurrentPhase returns the phase at the clock's current time
func (c *Clock) CurrentPhase() (Phase, error) {
	return c.PhaseAt(c.now())
}

// TimeToNextQuarter returns the remaining time from t until the next
// quarter boundary (which is also the start of the next locking phase).
// Used to prorate the effective contribution of stake locked mid-quarter.
func (c *Clock) TimeToNextQuarter(t time.Time) (time.Duration, error) {
	if t.Before(c.start) {
		return 0, dao.ErrNotStarted
	}
	elapsed := t.Sub(c.start) % c.quarterDuration
	return c.quarterDuration - elapsed, nil
}

// QuarterDuration returns the configured quarter duration
func (c *Clock) QuarterDuration() time.Duration {
	return c.quarterDuration
}

// RequirePhase fails with ErrWrongPhase unless t falls in want.
func (c *Clock) RequirePhase(t time.Time, want Phase) error {
	p, err := c.PhaseAt(t)
	if err != nil {
		return err
	}
	if p != want {
		return fmt.Errorf("%w: in %s phase, requires %s", dao.ErrWrongPhase, p, want)
	}
	return nil
}
