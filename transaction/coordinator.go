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
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomoncle/txflow/database"
)

const instrumentationName = "github.com/tomoncle/txflow/transaction"

// Runner opens a transaction, runs fn inside it, commits when fn returns
// nil and rolls back otherwise. *bun.DB satisfies it.
type Runner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error
}

var _ Runner = (*bun.DB)(nil)

type settings struct {
	logger   database.Logger
	metrics  *Metrics
	provider trace.TracerProvider
	defaults Options
}

// Option configures a Coordinator or an Interceptor.
type Option func(*settings)

func WithLogger(logger database.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithTracerProvider sets the provider of the per-transaction spans. The
// global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) {
		if tp != nil {
			s.provider = tp
		}
	}
}

// WithDefaults replaces the options applied to Begin calls that leave
// fields unset.
func WithDefaults(opts Options) Option {
	return func(s *settings) { s.defaults = opts }
}

func newSettings(opts []Option) *settings {
	s := &settings{defaults: DefaultOptions()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = database.GetLogger()
	}
	if s.provider == nil {
		s.provider = otel.GetTracerProvider()
	}
	return s
}

// Coordinator opens and resolves ambient transactions.
type Coordinator struct {
	runner   Runner
	logger   database.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	defaults Options
}

func NewCoordinator(runner Runner, opts ...Option) *Coordinator {
	s := newSettings(opts)
	return &Coordinator{
		runner:   runner,
		logger:   s.logger,
		metrics:  s.metrics,
		tracer:   s.provider.Tracer(instrumentationName),
		defaults: s.defaults,
	}
}

// Defaults returns the options applied to fields left unset by Begin.
func (c *Coordinator) Defaults() Options { return c.defaults }

// Begin opens a transaction and returns a context carrying it. When ctx
// already carries an open transaction, Begin returns ctx unchanged and
// opts are ignored.
//
// The transaction is not bound to the cancellation of ctx; it ends through
// Commit, Rollback or Options.Timeout. Cancelling ctx only aborts a Begin
// still waiting for the driver. On failure Begin returns ctx and a
// *TransactionOpenError.
func (c *Coordinator) Begin(ctx context.Context, opts *Options) (context.Context, error) {
	if st, ok := Active(ctx); ok {
		c.metrics.begin("joined")
		c.logger.Debug("joined transaction", "tx_id", st.ID())
		return ctx, nil
	}

	st := newState(opts.merge(c.defaults))
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st.cancel = cancel
	_, st.span = c.tracer.Start(ctx, "txflow.transaction",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("txflow.tx_id", st.ID()),
			attribute.String("db.transaction.isolation_level", st.opts.IsolationLevel.String()),
			attribute.Bool("db.transaction.read_only", st.opts.ReadOnly),
		),
	)

	go c.run(runCtx, st)

	var maxWait <-chan time.Time
	if st.opts.MaxWait > 0 {
		timer := time.NewTimer(st.opts.MaxWait)
		defer timer.Stop()
		maxWait = timer.C
	}

	select {
	case <-st.opened:
		return c.published(ctx, st), nil
	case <-st.finished:
		return ctx, c.openFailed(st, st.err)
	case <-maxWait:
		return c.abandon(ctx, st, ErrMaxWaitExceeded)
	case <-ctx.Done():
		return c.abandon(ctx, st, ctx.Err())
	}
}

// abandon gives up on a pending open. If the body won the race and the
// transaction is already active it is published instead.
func (c *Coordinator) abandon(ctx context.Context, st *State, reason error) (context.Context, error) {
	if !st.transition(StatusOpening, StatusFailed) {
		<-st.opened
		return c.published(ctx, st), nil
	}
	st.cancel()
	return ctx, c.openFailed(st, reason)
}

func (c *Coordinator) published(ctx context.Context, st *State) context.Context {
	c.metrics.begin("opened")
	c.metrics.open()
	c.logger.Debug("transaction opened", "tx_id", st.ID(), "isolation", st.opts.IsolationLevel.String(), "timeout", st.opts.Timeout)
	return trace.ContextWithSpan(stateKey.With(ctx, st), st.span)
}

func (c *Coordinator) openFailed(st *State, err error) error {
	st.setStatus(StatusFailed)
	c.metrics.begin("failed")
	c.logger.Warn("failed to open transaction", "tx_id", st.ID(), "error", err)
	return &TransactionOpenError{Err: err}
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeCommit
	outcomeRollback
	outcomeExpired
	outcomeCancelled
)

// run owns the RunInTx call. It parks the body until the State is resolved
// and records the final status before closing st.finished.
func (c *Coordinator) run(ctx context.Context, st *State) {
	result := outcomeNone
	err := c.runner.RunInTx(ctx, st.opts.txOptions(), func(txCtx context.Context, tx bun.Tx) error {
		st.handle.Store(&tx)
		st.openedAt = time.Now()
		if !st.transition(StatusOpening, StatusActive) {
			st.handle.Store(nil)
			return ErrMaxWaitExceeded
		}
		close(st.opened)

		var expire <-chan time.Time
		if st.opts.Timeout > 0 {
			timer := time.NewTimer(st.opts.Timeout)
			defer timer.Stop()
			expire = timer.C
		}

		select {
		case reason := <-st.resolve:
			result = outcomeFor(reason)
			return reason
		case <-expire:
			if st.transition(StatusActive, StatusExpired) {
				result = outcomeExpired
				return ErrTransactionExpired
			}
			// Commit or Rollback got there first.
			reason := <-st.resolve
			result = outcomeFor(reason)
			return reason
		case <-txCtx.Done():
			result = outcomeCancelled
			return txCtx.Err()
		}
	})

	st.err = err
	c.finish(st, result, err)
	close(st.finished)
}

func outcomeFor(reason error) outcome {
	if reason == nil {
		return outcomeCommit
	}
	return outcomeRollback
}

func (c *Coordinator) finish(st *State, result outcome, err error) {
	if result == outcomeNone {
		// the body never ran, Begin reports the failure
		if err != nil {
			st.span.RecordError(err)
			st.span.SetStatus(codes.Error, err.Error())
		}
		st.span.End()
		return
	}

	elapsed := time.Since(st.openedAt)
	label := "rolled_back"
	switch {
	case result == outcomeCommit && err == nil:
		label = "committed"
		st.setStatus(StatusCommitted)
		c.logger.Debug("transaction committed", "tx_id", st.ID(), "duration", elapsed)
	case result == outcomeCommit:
		label = "commit_failed"
		st.setStatus(StatusRolledBack)
		c.logger.Warn("transaction commit failed", "tx_id", st.ID(), "error", err)
	case result == outcomeExpired:
		label = "expired"
		c.logger.Warn("transaction expired", "tx_id", st.ID(), "timeout", st.opts.Timeout)
	default:
		st.setStatus(StatusRolledBack)
		c.logger.Debug("transaction rolled back", "tx_id", st.ID(), "reason", err)
	}

	c.metrics.resolve(label, elapsed)
	st.span.SetAttributes(attribute.String("txflow.outcome", label))
	if label != "committed" {
		st.span.SetStatus(codes.Error, label)
		if err != nil && !errors.Is(err, ErrRolledBack) {
			st.span.RecordError(err)
		}
	}
	st.span.End()
}

// Commit commits the transaction carried by ctx. Without an active
// transaction, or when it is already resolved, Commit does nothing and
// returns nil. A transaction that expired is acknowledged as rolled back
// and reported as a *CommitError wrapping ErrTransactionExpired.
func (c *Coordinator) Commit(ctx context.Context) error {
	st, ok := Current(ctx)
	if !ok {
		c.logger.Debug("commit ignored: no transaction in context")
		return nil
	}

	switch {
	case st.transition(StatusActive, StatusCommitting):
		st.resolve <- nil
		<-st.finished
		st.cancel()
		if st.Status() != StatusCommitted {
			return &CommitError{TxID: st.ID(), Err: st.err}
		}
		return nil
	case st.transition(StatusExpired, StatusRolledBack):
		<-st.finished
		st.cancel()
		return &CommitError{TxID: st.ID(), Err: ErrTransactionExpired}
	default:
		c.logger.Debug("commit ignored: transaction not active", "tx_id", st.ID(), "status", st.Status().String())
		return nil
	}
}

// Rollback rolls back the transaction carried by ctx, recording reason
// (ErrRolledBack when nil). Without an active transaction, or when it is
// already resolved, Rollback does nothing. Rolling back an expired
// transaction acknowledges the expiry.
func (c *Coordinator) Rollback(ctx context.Context, reason error) error {
	st, ok := Current(ctx)
	if !ok {
		c.logger.Debug("rollback ignored: no transaction in context")
		return nil
	}
	if reason == nil {
		reason = ErrRolledBack
	}

	switch {
	case st.transition(StatusActive, StatusRollingBack):
		st.resolve <- reason
		<-st.finished
		st.cancel()
		return nil
	case st.transition(StatusExpired, StatusRolledBack):
		<-st.finished
		st.cancel()
		return nil
	default:
		c.logger.Debug("rollback ignored: transaction not active", "tx_id", st.ID(), "status", st.Status().String())
		return nil
	}
}

// InTransaction reports whether operations issued with ctx are routed to a
// transaction.
func (c *Coordinator) InTransaction(ctx context.Context) bool {
	return InTransaction(ctx)
}

// Current returns the State carried by ctx.
func (c *Coordinator) Current(ctx context.Context) (*State, bool) {
	return Current(ctx)
}
