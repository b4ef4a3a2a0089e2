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

package dao

import "errors"

// Every failure in the engine is a synchronous rejection that leaves prior
// state intact. Callers match these with errors.Is; layers add context with
// fmt.Errorf("...: %w", err).

// Precondition failures (wrong phase/state, not started, migrated)
var (
	ErrNotStarted          = errors.New("first quarter has not started")
	ErrWrongPhase          = errors.New("operation not allowed in current phase")
	ErrWrongState          = errors.New("operation not allowed in current state")
	ErrMigrated            = errors.New("dao has been migrated to a successor")
	ErrQuarterNotFinalized = errors.New("quarter rewards have not been finalized")
)

// Authorization failures
var (
	ErrNotAuthorized = errors.New("caller lacks the required role")
	ErrNotEligible   = errors.New("caller is not eligible for this vote")
	ErrNotProposer   = errors.New("caller is not the proposer")
)

// Replay or duplicate failures
var (
	ErrDuplicateCommit = errors.New("commit already submitted for this round")
	ErrNonceReused     = errors.New("nonce does not exceed last used nonce")
	ErrAlreadyRevealed = errors.New("vote already revealed for this round")
	ErrAlreadyClaimed  = errors.New("result already claimed for this round")
	ErrAlreadyEndorsed = errors.New("proposal already endorsed")
)

// Validation failures
var (
	ErrZeroAmount            = errors.New("amount must be greater than zero")
	ErrInsufficientAllowance = errors.New("insufficient asset allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrMilestoneMismatch     = errors.New("milestone duration and funding lists must have equal non-zero length")
	ErrExceedsTreasury       = errors.New("requested funding exceeds treasury balance")
	ErrHashMismatch          = errors.New("reveal does not match commit hash")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
)

// Resource exhaustion
var (
	ErrBatchInProgress = errors.New("batch pass already in progress for this quarter")
)
