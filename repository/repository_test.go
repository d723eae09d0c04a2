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

package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/txflow/database"
	"github.com/tomoncle/txflow/internal/testdb"
	"github.com/tomoncle/txflow/repository"
	"github.com/tomoncle/txflow/transaction"
	"github.com/tomoncle/txflow/types"
)

type widget struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Name  string `bun:"name,notnull,unique"`
	Qty   int    `bun:"qty,notnull"`
	Label string `bun:"-"`
}

func widgetLabel(w *widget) { w.Label = fmt.Sprintf("%s x%d", w.Name, w.Qty) }

type env struct {
	db   *bun.DB
	coor *transaction.Coordinator
	repo repository.Repository[widget]
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testdb.Open(t, database.NewModelAdapter((*widget)(nil), 1))
	opts := []transaction.Option{transaction.WithLogger(database.NopLogger{})}
	exec := transaction.NewInterceptor(db, opts...)
	return &env{
		db:   db,
		coor: transaction.NewCoordinator(db, opts...),
		repo: repository.NewRepository[widget](exec, repository.WithComputed("label", widgetLabel)),
	}
}

func (e *env) seed(t *testing.T, names ...string) []*widget {
	t.Helper()
	ws := make([]*widget, len(names))
	for i, n := range names {
		ws[i] = &widget{Name: n, Qty: i + 1}
	}
	require.NoError(t, e.repo.Create(context.Background(), ws...))
	return ws
}

func TestRepository_Table(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, "widgets", e.repo.Table())
	assert.Equal(t, "sqlite", e.repo.Dialect().Name().String())

	assert.Equal(t, "widget", repository.NewRepository[widget](nil).Table())
	assert.Equal(t, "gizmos", repository.NewRepository[widget](nil, repository.WithTable[widget]("gizmos")).Table())
}

func TestRepository_CreateAndFetch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ws := e.seed(t, "bolt", "nut", "screw")
	for _, w := range ws {
		assert.NotZero(t, w.ID)
		assert.NotEmpty(t, w.Label)
	}

	got, err := e.repo.GetOne(ctx, ws[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "nut", got.Name)
	assert.Equal(t, "nut x2", got.Label)

	_, err = e.repo.GetOne(ctx, 999)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	all, err := e.repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	big, err := e.repo.Query(ctx, "qty >= ?", 2)
	require.NoError(t, err)
	assert.Len(t, big, 2)

	first, err := e.repo.First(ctx, "name = ?", "screw")
	require.NoError(t, err)
	assert.Equal(t, "screw x3", first.Label)

	n, err := e.repo.Count(ctx, types.NewQueryFilter("qty < ?", 3))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRepository_CreateNothing(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.repo.Create(context.Background()))
}

func TestRepository_Page(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, "a", "b", "c", "d", "e")

	page, err := e.repo.Page(ctx, types.NewPageRequest(2, 2, nil, "qty DESC"))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages())
	assert.True(t, page.HasNext())
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c", page.Items[0].Name)
	assert.Equal(t, "b x2", page.Items[1].Label)

	empty, err := e.repo.Page(ctx, types.NewPageRequest(1, 10, types.NewQueryFilter("name = ?", "zzz")))
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Items)

	def, err := e.repo.Page(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, def.Total)
}

func TestRepository_UpdateAndDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := e.seed(t, "gear")[0]

	w.Qty = 9
	require.NoError(t, e.repo.Update(ctx, w))
	assert.Equal(t, "gear x9", w.Label)

	got, err := e.repo.GetOne(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Qty)

	require.NoError(t, e.repo.Delete(ctx, w.ID))
	n, err := e.repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepository_Upsert(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, "cog")

	err := e.repo.Upsert(ctx, []string{"qty"}, []string{"name"},
		&widget{Name: "cog", Qty: 40},
		&widget{Name: "spring", Qty: 7},
	)
	require.NoError(t, err)

	cog, err := e.repo.First(ctx, "name = ?", "cog")
	require.NoError(t, err)
	assert.Equal(t, 40, cog.Qty)

	n, err := e.repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Error(t, e.repo.Upsert(ctx, nil, nil, &widget{Name: "x"}))
	assert.NoError(t, e.repo.Upsert(ctx, []string{"qty"}, nil))
}

func TestRepository_FollowsAmbientTransaction(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	txCtx, err := e.coor.Begin(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, e.repo.Create(txCtx, &widget{Name: "temp", Qty: 1}))

	n, err := e.repo.Count(txCtx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = e.repo.Create(txCtx, &widget{Name: "temp", Qty: 2})
	var opErr *transaction.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "widgets.create", opErr.Op.String())
	assert.True(t, database.IsDuplicateKey(err))

	require.NoError(t, e.coor.Rollback(txCtx, nil))

	n, err = e.repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepository_Using(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := e.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		txRepo := e.repo.Using(tx)
		assert.Equal(t, e.repo.Table(), txRepo.Table())
		require.NoError(t, txRepo.Create(ctx, &widget{Name: "pinned", Qty: 3}))

		w, err := txRepo.First(ctx, "name = ?", "pinned")
		require.NoError(t, err)
		assert.Equal(t, "pinned x3", w.Label, "computed fields survive Using")
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := e.repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepository_Run(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, "a", "b", "c")

	var total int
	err := e.repo.Run(ctx, "sum_qty", func(ctx context.Context, conn bun.IDB) error {
		return conn.NewSelect().Model((*widget)(nil)).ColumnExpr("SUM(qty)").Scan(ctx, &total)
	})
	require.NoError(t, err)
	assert.Equal(t, 6, total)

	var names []string
	require.NoError(t, e.repo.NewSelect(ctx).Model((*widget)(nil)).Column("name").Order("name").Scan(ctx, &names))
	assert.Equal(t, []string{"a", "b", "c"}, names)

	_, err = e.repo.NewDelete(ctx).Model((*widget)(nil)).Where("name = ?", "a").Exec(ctx)
	require.NoError(t, err)
	_, err = e.repo.NewUpdate(ctx).Model((*widget)(nil)).Set("qty = qty * 10").Where("name = ?", "b").Exec(ctx)
	require.NoError(t, err)
	_, err = e.repo.NewInsert(ctx).Model(&widget{Name: "d", Qty: 4}).Exec(ctx)
	require.NoError(t, err)

	all, err := e.repo.Query(ctx, "qty > ?", 3)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
