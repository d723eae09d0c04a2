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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/txflow/database"
)

func TestInterceptor_ConnFollowsTransactionLifecycle(t *testing.T) {
	db := openTestDB(t)
	coord, ic := newTestPair(db)
	base := context.Background()

	assert.Same(t, db, ic.Conn(base))

	ctx, err := coord.Begin(base, nil)
	require.NoError(t, err)
	tx, ok := ic.Conn(ctx).(*bun.Tx)
	require.True(t, ok, "routed to the transaction handle")
	st, _ := coord.Current(ctx)
	handle, _ := st.Handle()
	assert.Same(t, handle, tx)
	assert.Same(t, db, ic.Conn(base), "the parent context is unaffected")

	require.NoError(t, coord.Commit(ctx))
	assert.Same(t, db, ic.Conn(ctx))
}

func TestInterceptor_WrapsErrorsOnlyInsideTransactions(t *testing.T) {
	coord := NewCoordinator(&fakeRunner{}, WithLogger(database.NopLogger{}))
	ic := NewInterceptor(nil, WithLogger(database.NopLogger{}))
	boom := errors.New("boom")
	fail := func(context.Context, bun.IDB) error { return boom }
	op := NewOperation("users", "update", 7)

	err := ic.Do(context.Background(), op, fail)
	assert.Same(t, boom, err)

	ctx, err := coord.Begin(context.Background(), nil)
	require.NoError(t, err)
	err = ic.Do(ctx, op, fail)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, op.Args, opErr.Op.Args)
	assert.Contains(t, err.Error(), "users.update in transaction")

	st, _ := coord.Current(ctx)
	assert.Equal(t, st.ID(), opErr.TxID)
	assert.Equal(t, StatusActive, st.Status())
	require.NoError(t, coord.Rollback(ctx, err))
}

func TestInterceptor_FnReceivesCallerContext(t *testing.T) {
	type key struct{}
	ic := NewInterceptor(nil, WithLogger(database.NopLogger{}))
	ctx := context.WithValue(context.Background(), key{}, "v")

	err := ic.Do(ctx, Operation{Name: "raw"}, func(got context.Context, _ bun.IDB) error {
		assert.Equal(t, "v", got.Value(key{}))
		return nil
	})
	require.NoError(t, err)
}

func TestLabel(t *testing.T) {
	coord := NewCoordinator(&fakeRunner{}, WithLogger(database.NopLogger{}))
	assert.Equal(t, "", Label(context.Background()))

	ctx, err := coord.Begin(context.Background(), nil)
	require.NoError(t, err)
	st, _ := coord.Current(ctx)
	assert.Equal(t, "tx:"+st.ID()[:8], Label(ctx))

	require.NoError(t, coord.Commit(ctx))
	assert.Equal(t, "", Label(ctx))
}
