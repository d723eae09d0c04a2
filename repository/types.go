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

package repository

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/txflow/transaction"
	"github.com/tomoncle/txflow/types"
)

// Executor resolves the connection of each call. *txflow.Client and
// *transaction.Interceptor implement it.
type Executor interface {
	Conn(ctx context.Context) bun.IDB
	Do(ctx context.Context, op transaction.Operation, fn func(ctx context.Context, conn bun.IDB) error) error
}

// CrudRepository defines basic CRUD operations for a generic entity type.
type CrudRepository[T any] interface {
	GetOne(ctx context.Context, id any) (*T, error)

	GetAll(ctx context.Context) ([]*T, error)

	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// First returns the first row matching query, or sql.ErrNoRows.
	First(ctx context.Context, query string, args ...interface{}) (*T, error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)

	Create(ctx context.Context, entity ...*T) error

	// Upsert inserts entities, updating fields when a row with the same
	// duplicateKeys already exists.
	Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error

	Update(ctx context.Context, entity *T) error

	Delete(ctx context.Context, id any) error
}

type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository narrows an Executor to the table of T and exposes routed Bun
// query builders for custom queries.
type Repository[T any] interface {
	CrudRepository[T]
	PageQueryRepository[T]

	// Using returns a repository bound to conn, typically a *bun.Tx the
	// caller manages itself. The ambient route is bypassed.
	Using(conn bun.IDB) Repository[T]

	// Run executes a named custom query through the Executor.
	Run(ctx context.Context, name string, fn func(ctx context.Context, conn bun.IDB) error) error

	// Compute applies the computed fields to entities loaded by a custom
	// query.
	Compute(entities ...*T)

	Table() string
	Dialect() schema.Dialect
	NewSelect(ctx context.Context) *bun.SelectQuery
	NewInsert(ctx context.Context) *bun.InsertQuery
	NewUpdate(ctx context.Context) *bun.UpdateQuery
	NewDelete(ctx context.Context) *bun.DeleteQuery
}
