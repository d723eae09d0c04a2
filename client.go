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

package txflow

import (
	"context"
	"fmt"
	"io"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomoncle/txflow/database"
	"github.com/tomoncle/txflow/repository"
	"github.com/tomoncle/txflow/transaction"
)

// Client wraps a *bun.DB with ambient transactions. Query builders obtained
// from it run inside the transaction carried by their context, if any.
type Client struct {
	db          *bun.DB
	coordinator *transaction.Coordinator
	interceptor *transaction.Interceptor
	logger      database.Logger
}

var _ repository.Executor = (*Client)(nil)

type clientConfig struct {
	logger   database.Logger
	txOpts   []transaction.Option
	queryLog io.Writer
}

type Option func(*clientConfig)

func WithLogger(logger database.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
		c.txOpts = append(c.txOpts, transaction.WithLogger(logger))
	}
}

func WithMetrics(m *transaction.Metrics) Option {
	return func(c *clientConfig) { c.txOpts = append(c.txOpts, transaction.WithMetrics(m)) }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *clientConfig) { c.txOpts = append(c.txOpts, transaction.WithTracerProvider(tp)) }
}

// WithDefaults sets the options used by Begin and Transaction when the
// caller passes nil or leaves fields unset.
func WithDefaults(opts transaction.Options) Option {
	return func(c *clientConfig) { c.txOpts = append(c.txOpts, transaction.WithDefaults(opts)) }
}

// WithQueryLog prints every statement to w tagged with the label of the
// transaction it ran in.
func WithQueryLog(w io.Writer) Option {
	return func(c *clientConfig) { c.queryLog = w }
}

func New(db *bun.DB, opts ...Option) *Client {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = database.GetLogger()
	}
	if cfg.queryLog != nil {
		db.AddQueryHook(&database.QueryHook{
			Enabled: true,
			Verbose: true,
			Writer:  cfg.queryLog,
			Label:   transaction.Label,
			Logger:  cfg.logger,
		})
	}
	return &Client{
		db:          db,
		coordinator: transaction.NewCoordinator(db, cfg.txOpts...),
		interceptor: transaction.NewInterceptor(db, cfg.txOpts...),
		logger:      cfg.logger,
	}
}

// NewFromConfig is New with transaction defaults taken from cfg.
func NewFromConfig(db *bun.DB, cfg *database.TransactionConfig, opts ...Option) (*Client, error) {
	defaults, err := transaction.OptionsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction config: %w", err)
	}
	return New(db, append([]Option{WithDefaults(defaults)}, opts...)...), nil
}

// DB returns the underlying database, bypassing any ambient transaction.
func (c *Client) DB() *bun.DB { return c.db }

func (c *Client) Conn(ctx context.Context) bun.IDB { return c.interceptor.Conn(ctx) }

func (c *Client) Do(ctx context.Context, op transaction.Operation, fn func(ctx context.Context, conn bun.IDB) error) error {
	return c.interceptor.Do(ctx, op, fn)
}

func (c *Client) NewSelect(ctx context.Context) *bun.SelectQuery { return c.Conn(ctx).NewSelect() }

func (c *Client) NewInsert(ctx context.Context) *bun.InsertQuery { return c.Conn(ctx).NewInsert() }

func (c *Client) NewUpdate(ctx context.Context) *bun.UpdateQuery { return c.Conn(ctx).NewUpdate() }

func (c *Client) NewDelete(ctx context.Context) *bun.DeleteQuery { return c.Conn(ctx).NewDelete() }

func (c *Client) NewRaw(ctx context.Context, query string, args ...interface{}) *bun.RawQuery {
	return c.Conn(ctx).NewRaw(query, args...)
}

// Begin opens a transaction and returns the context carrying it. See
// transaction.Coordinator.Begin.
func (c *Client) Begin(ctx context.Context, opts *transaction.Options) (context.Context, error) {
	return c.coordinator.Begin(ctx, opts)
}

// Commit commits the transaction carried by ctx; without one it is a no-op.
func (c *Client) Commit(ctx context.Context) error { return c.coordinator.Commit(ctx) }

// Rollback rolls back the transaction carried by ctx; without one it is a
// no-op.
func (c *Client) Rollback(ctx context.Context, reason error) error {
	return c.coordinator.Rollback(ctx, reason)
}

func (c *Client) InTransaction(ctx context.Context) bool { return c.coordinator.InTransaction(ctx) }

// Transaction runs fn inside a transaction, committing when fn returns nil
// and rolling back when it returns an error or panics. The error of fn is
// returned unchanged and a panic is re-raised after the rollback.
//
// When ctx already carries a transaction fn simply joins it: nothing is
// committed or rolled back here and the outermost owner decides.
func (c *Client) Transaction(ctx context.Context, fn func(ctx context.Context) error, opts *transaction.Options) (err error) {
	if c.InTransaction(ctx) {
		return fn(ctx)
	}

	txCtx, err := c.Begin(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = c.Rollback(txCtx, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := c.Rollback(txCtx, err); rbErr != nil {
			c.logger.Error("rollback failed", "error", rbErr, "cause", err)
		}
		return err
	}
	return c.Commit(txCtx)
}
