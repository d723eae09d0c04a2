/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package transaction

import (
	"github.com/tomoncle/txflow/types"
)

// Status is the lifecycle position of a transaction State.
type Status int32

const (
	StatusOpening Status = iota
	StatusActive
	StatusCommitting
	StatusRollingBack
	StatusCommitted
	StatusRolledBack
	StatusExpired
	StatusFailed
)

var _ types.BaseEnum = StatusActive

var statusNames = [...]string{
	StatusOpening:     "opening",
	StatusActive:      "active",
	StatusCommitting:  "committing",
	StatusRollingBack: "rolling_back",
	StatusCommitted:   "committed",
	StatusRolledBack:  "rolled_back",
	StatusExpired:     "expired",
	StatusFailed:      "failed",
}

var statusDescs = [...]string{
	StatusOpening:     "waiting for the driver to open the transaction",
	StatusActive:      "open and accepting operations",
	StatusCommitting:  "commit requested",
	StatusRollingBack: "rollback requested",
	StatusCommitted:   "committed",
	StatusRolledBack:  "rolled back",
	StatusExpired:     "aborted by its timeout",
	StatusFailed:      "never opened",
}

// Statuses lists every valid Status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusOpening, StatusActive, StatusCommitting, StatusRollingBack,
		StatusCommitted, StatusRolledBack, StatusExpired, StatusFailed,
	}
}

func (s Status) IsValid() bool { return s >= StatusOpening && s <= StatusFailed }

func (s Status) Number() int {
	if !s.IsValid() {
		return types.IllegalValue
	}
	return int(s)
}

func (s Status) Name() string {
	if !s.IsValid() {
		return types.IllegalName
	}
	return statusNames[s]
}

func (s Status) String() string { return s.Name() }

func (s Status) Desc() string {
	if !s.IsValid() {
		return types.IllegalDesc
	}
	return statusDescs[s]
}

// Routed reports whether operations issued under a State in this status
// still go to its handle. Expired transactions stay routed so that writes
// fail with sql.ErrTxDone instead of landing outside the transaction.
func (s Status) Routed() bool {
	switch s {
	case StatusActive, StatusCommitting, StatusRollingBack, StatusExpired:
		return true
	}
	return false
}

// Resolved reports whether the transaction has reached a final status.
func (s Status) Resolved() bool {
	switch s {
	case StatusCommitted, StatusRolledBack, StatusFailed:
		return true
	}
	return false
}
