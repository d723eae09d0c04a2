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
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomoncle/txflow/ambient"
)

var stateKey = ambient.NewKey[*State]("transaction")

// State is one ambient transaction. It is created by Begin, published into
// the returned context once the driver has opened the transaction, and
// resolved by Commit, Rollback or its timeout.
type State struct {
	id      string
	opts    Options
	status  atomic.Int32
	handle  atomic.Pointer[bun.Tx]
	resolve chan error

	opened   chan struct{}
	finished chan struct{}
	// written by the runner goroutine before finished is closed
	err      error
	openedAt time.Time

	cancel context.CancelFunc
	span   trace.Span
}

func newState(opts Options) *State {
	st := &State{
		id:       uuid.NewString(),
		opts:     opts,
		resolve:  make(chan error, 1),
		opened:   make(chan struct{}),
		finished: make(chan struct{}),
	}
	st.status.Store(int32(StatusOpening))
	return st
}

func (s *State) ID() string { return s.id }

func (s *State) Options() Options { return s.opts }

func (s *State) Status() Status { return Status(s.status.Load()) }

// OpenedAt is zero until the driver has opened the transaction.
func (s *State) OpenedAt() time.Time {
	select {
	case <-s.opened:
		return s.openedAt
	default:
		return time.Time{}
	}
}

// Err returns the result of the underlying RunInTx once it has returned.
func (s *State) Err() error {
	select {
	case <-s.finished:
		return s.err
	default:
		return nil
	}
}

// Handle returns the transaction the State's operations are routed to.
func (s *State) Handle() (*bun.Tx, bool) {
	if !s.Status().Routed() {
		return nil, false
	}
	tx := s.handle.Load()
	return tx, tx != nil
}

// Label is a short tag for log lines, "tx:" followed by the first eight
// characters of the id.
func (s *State) Label() string {
	if len(s.id) < 8 {
		return "tx:" + s.id
	}
	return "tx:" + s.id[:8]
}

func (s *State) transition(from, to Status) bool {
	return s.status.CompareAndSwap(int32(from), int32(to))
}

func (s *State) setStatus(to Status) {
	s.status.Store(int32(to))
}

// Current returns the State carried by ctx, if any, regardless of status.
func Current(ctx context.Context) (*State, bool) {
	st, ok := stateKey.Current(ctx)
	return st, ok && st != nil
}

// Active returns the State of ctx when its operations are still routed to
// an open handle.
func Active(ctx context.Context) (*State, bool) {
	st, ok := Current(ctx)
	if !ok {
		return nil, false
	}
	if _, routed := st.Handle(); !routed {
		return nil, false
	}
	return st, true
}

// InTransaction reports whether operations issued with ctx are routed to a
// transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := Active(ctx)
	return ok
}

// Label returns the label of the transaction ctx is routed to, or "".
func Label(ctx context.Context) string {
	if st, ok := Active(ctx); ok {
		return st.Label()
	}
	return ""
}
