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

	"github.com/uptrace/bun"

	"github.com/tomoncle/txflow/database"
)

// Interceptor picks the execution target of each data operation: the
// handle of the transaction carried by the context, or the default
// connection. The decision is made on every call.
type Interceptor struct {
	db      bun.IDB
	logger  database.Logger
	metrics *Metrics
}

func NewInterceptor(db bun.IDB, opts ...Option) *Interceptor {
	s := newSettings(opts)
	return &Interceptor{db: db, logger: s.logger, metrics: s.metrics}
}

// Conn returns the connection operations issued with ctx should use.
func (i *Interceptor) Conn(ctx context.Context) bun.IDB {
	conn, _ := i.resolve(ctx)
	return conn
}

func (i *Interceptor) resolve(ctx context.Context) (bun.IDB, *State) {
	if st, ok := Current(ctx); ok {
		if tx, routed := st.Handle(); routed {
			return tx, st
		}
	}
	return i.db, nil
}

// Do runs fn against the target of op. Errors raised while routed to a
// transaction are wrapped in *OperationError; the transaction is left for
// the caller to resolve.
func (i *Interceptor) Do(ctx context.Context, op Operation, fn func(ctx context.Context, conn bun.IDB) error) error {
	conn, st := i.resolve(ctx)
	if st == nil {
		i.metrics.operation(op, targetDefault)
		i.logger.Debug("operation", "op", op.String(), "target", targetDefault)
		return fn(ctx, conn)
	}

	i.metrics.operation(op, targetTransaction)
	i.logger.Debug("operation", "op", op.String(), "target", targetTransaction, "tx_id", st.ID())
	if err := fn(ctx, conn); err != nil {
		return &OperationError{TxID: st.ID(), Op: op, Err: err}
	}
	return nil
}
