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
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/txflow/database"
)

type item struct {
	bun.BaseModel `bun:"table:items"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull,unique"`
}

// openTestDB returns a single-connection SQLite database with an items
// table. One connection means a second transaction has to wait for the
// first to finish.
func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqlDB, err := sql.Open(sqliteshim.ShimName, filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.NewCreateTable().Model((*item)(nil)).IfNotExists().Exec(context.Background())
	require.NoError(t, err)
	return db
}

func countItems(t *testing.T, db bun.IDB) int {
	t.Helper()
	n, err := db.NewSelect().Model((*item)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func insertItem(ctx context.Context, ic *Interceptor, name string) error {
	return ic.Do(ctx, NewOperation("items", "create", name), func(ctx context.Context, conn bun.IDB) error {
		_, err := conn.NewInsert().Model(&item{Name: name}).Exec(ctx)
		return err
	})
}

func newTestPair(db *bun.DB, opts ...Option) (*Coordinator, *Interceptor) {
	opts = append([]Option{WithLogger(database.NopLogger{})}, opts...)
	return NewCoordinator(db, opts...), NewInterceptor(db, opts...)
}

// fakeRunner stands in for *bun.DB. It counts opened transactions and can
// fail to open, block until cancelled, or fail at commit.
type fakeRunner struct {
	mu        sync.Mutex
	opens     int
	txOpts    []*sql.TxOptions
	openErr   error
	commitErr error
	block     bool
	results   []error
}

func (f *fakeRunner) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	f.mu.Lock()
	f.opens++
	f.txOpts = append(f.txOpts, opts)
	openErr, block, commitErr := f.openErr, f.block, f.commitErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return fmt.Errorf("begin: %w", ctx.Err())
	}
	if openErr != nil {
		return openErr
	}

	err := fn(ctx, bun.Tx{})
	f.mu.Lock()
	f.results = append(f.results, err)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return commitErr
}

func (f *fakeRunner) snapshot() (opens int, results []error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, append([]error(nil), f.results...)
}
