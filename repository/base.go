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
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/txflow/transaction"
	"github.com/tomoncle/txflow/types"
)

type computedField[T any] struct {
	name string
	fn   func(*T)
}

type baseRepositoryImpl[T any] struct {
	exec     Executor
	table    string
	computed []computedField[T]
}

// Option configures a repository.
type Option[T any] func(*baseRepositoryImpl[T])

// WithComputed registers fn to fill a derived field of every row the
// repository loads. fn must only read fields already fetched.
func WithComputed[T any](name string, fn func(*T)) Option[T] {
	return func(r *baseRepositoryImpl[T]) {
		if fn != nil {
			r.computed = append(r.computed, computedField[T]{name: name, fn: fn})
		}
	}
}

// WithTable overrides the model name used for logging and metrics.
func WithTable[T any](name string) Option[T] {
	return func(r *baseRepositoryImpl[T]) { r.table = name }
}

// NewRepository returns a generic repository for T routed through exec.
func NewRepository[T any](exec Executor, opts ...Option[T]) Repository[T] {
	r := &baseRepositoryImpl[T]{exec: exec}
	for _, opt := range opts {
		opt(r)
	}
	if r.table == "" {
		r.table = tableName[T](exec)
	}
	return r
}

func tableName[T any](exec Executor) string {
	if exec != nil {
		if conn := exec.Conn(context.Background()); conn != nil {
			if name := conn.NewSelect().Model((*T)(nil)).GetTableName(); name != "" {
				return name
			}
		}
	}
	return strings.ToLower(reflect.TypeOf((*T)(nil)).Elem().Name())
}

func (r *baseRepositoryImpl[T]) Table() string { return r.table }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect {
	return r.exec.Conn(context.Background()).Dialect()
}

func (r *baseRepositoryImpl[T]) NewSelect(ctx context.Context) *bun.SelectQuery {
	return r.exec.Conn(ctx).NewSelect()
}

func (r *baseRepositoryImpl[T]) NewInsert(ctx context.Context) *bun.InsertQuery {
	return r.exec.Conn(ctx).NewInsert()
}

func (r *baseRepositoryImpl[T]) NewUpdate(ctx context.Context) *bun.UpdateQuery {
	return r.exec.Conn(ctx).NewUpdate()
}

func (r *baseRepositoryImpl[T]) NewDelete(ctx context.Context) *bun.DeleteQuery {
	return r.exec.Conn(ctx).NewDelete()
}

func (r *baseRepositoryImpl[T]) Using(conn bun.IDB) Repository[T] {
	return &baseRepositoryImpl[T]{
		exec:     fixedExecutor{conn: conn},
		table:    r.table,
		computed: r.computed,
	}
}

func (r *baseRepositoryImpl[T]) Run(ctx context.Context, name string, fn func(ctx context.Context, conn bun.IDB) error) error {
	return r.exec.Do(ctx, transaction.NewOperation(r.table, name), fn)
}

func (r *baseRepositoryImpl[T]) Compute(entities ...*T) {
	for _, entity := range entities {
		if entity == nil {
			continue
		}
		for _, c := range r.computed {
			c.fn(entity)
		}
	}
}

func (r *baseRepositoryImpl[T]) do(ctx context.Context, name string, args []interface{}, fn func(ctx context.Context, conn bun.IDB) error) error {
	return r.exec.Do(ctx, transaction.NewOperation(r.table, name, args...), fn)
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	entity := new(T)
	err := r.do(ctx, "get_one", []interface{}{id}, func(ctx context.Context, conn bun.IDB) error {
		return conn.NewSelect().Model(entity).Where("?TableAlias.id = ?", id).Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	r.Compute(entity)
	return entity, nil
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	return r.List(ctx, nil)
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	entities := make([]*T, 0)
	err := r.do(ctx, "list", filterArgs(filter), func(ctx context.Context, conn bun.IDB) error {
		query := conn.NewSelect().Model(&entities)
		if filter != nil {
			query = query.Where(filter.Schema, filter.Args...)
		}
		return query.Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	r.Compute(entities...)
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	return r.List(ctx, types.NewQueryFilter(query, args...))
}

func (r *baseRepositoryImpl[T]) First(ctx context.Context, query string, args ...interface{}) (*T, error) {
	entity := new(T)
	err := r.do(ctx, "first", args, func(ctx context.Context, conn bun.IDB) error {
		return conn.NewSelect().Model(entity).Where(query, args...).Limit(1).Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	r.Compute(entity)
	return entity, nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	var count int
	err := r.do(ctx, "count", filterArgs(filter), func(ctx context.Context, conn bun.IDB) error {
		query := conn.NewSelect().Model((*T)(nil))
		if filter != nil {
			query = query.Where(filter.Schema, filter.Args...)
		}
		n, err := query.Count(ctx)
		count = n
		return err
	})
	return count, err
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewPageRequest(1, types.DefaultPageSize, nil)
	}
	pagination := types.NewPagination[T](pageRequest)
	filter := pageRequest.GetFilter()

	err := r.do(ctx, "page", filterArgs(filter), func(ctx context.Context, conn bun.IDB) error {
		var entities []*T
		query := conn.NewSelect().Model(&entities)
		if filter != nil {
			query = query.Where(filter.Schema, filter.Args...)
		}
		total, err := query.Count(ctx)
		if err != nil || total == 0 {
			return err
		}
		err = query.
			Order(pageRequest.GetOrders()...).
			Offset(pageRequest.GetOffset()).
			Limit(pageRequest.GetPageSize()).
			Scan(ctx)
		if err != nil {
			return err
		}
		pagination.Total = total
		pagination.Items = entities
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.Compute(pagination.Items...)
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	return r.do(ctx, "create", entityArgs(entity), func(ctx context.Context, conn bun.IDB) error {
		var err error
		if len(entity) == 1 {
			_, err = conn.NewInsert().Model(entity[0]).Exec(ctx)
		} else {
			entities := append([]*T(nil), entity...)
			_, err = conn.NewInsert().Model(&entities).Exec(ctx)
		}
		if err == nil {
			r.Compute(entity...)
		}
		return err
	})
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	return r.do(ctx, "update", []interface{}{entity}, func(ctx context.Context, conn bun.IDB) error {
		_, err := conn.NewUpdate().Model(entity).WherePK().Exec(ctx)
		if err == nil {
			r.Compute(entity)
		}
		return err
	})
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	return r.do(ctx, "delete", []interface{}{id}, func(ctx context.Context, conn bun.IDB) error {
		_, err := conn.NewDelete().Model((*T)(nil)).Where("id = ?", id).Exec(ctx)
		return err
	})
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}
	if len(entity) == 0 {
		return nil
	}
	return r.do(ctx, "upsert", entityArgs(entity), func(ctx context.Context, conn bun.IDB) error {
		entities := append([]*T(nil), entity...)
		features := conn.Dialect().Features()
		switch {
		case features.Has(feature.InsertOnConflict):
			return upsertOnConflict(ctx, conn, fields, duplicateKeys, entities)
		case features.Has(feature.InsertOnDuplicateKey):
			return upsertOnDuplicateKey(ctx, conn, fields, entities)
		default:
			return upsertFallback(ctx, conn, entities)
		}
	})
}

func upsertOnDuplicateKey[T any](ctx context.Context, conn bun.IDB, fields []string, entities []*T) error {
	assignments := make([]string, 0, len(fields))
	for _, field := range fields {
		assignments = append(assignments, fmt.Sprintf("%s = VALUES(%s)", field, field))
	}
	_, err := conn.NewInsert().
		Model(&entities).
		On("DUPLICATE KEY UPDATE " + strings.Join(assignments, ", ")).
		Exec(ctx)
	return err
}

func upsertOnConflict[T any](ctx context.Context, conn bun.IDB, fields []string, duplicateKeys []string, entities []*T) error {
	if len(duplicateKeys) == 0 {
		duplicateKeys = []string{"id"}
	}
	query := conn.NewInsert().
		Model(&entities).
		On("CONFLICT (" + strings.Join(duplicateKeys, ", ") + ") DO UPDATE")
	for _, field := range fields {
		query = query.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := query.Exec(ctx)
	return err
}

// upsertFallback inserts each row and updates it by primary key when the
// insert fails. On PostgreSQL a failed insert aborts the enclosing
// transaction, so dialects without native upsert should not use it there.
func upsertFallback[T any](ctx context.Context, conn bun.IDB, entities []*T) error {
	for _, entity := range entities {
		if _, err := conn.NewInsert().Model(entity).Exec(ctx); err != nil {
			if _, updateErr := conn.NewUpdate().Model(entity).WherePK().Exec(ctx); updateErr != nil {
				return fmt.Errorf("upsert failed: insert error: %v, update error: %w", err, updateErr)
			}
		}
	}
	return nil
}

func filterArgs(filter *types.QueryFilter) []interface{} {
	if filter == nil {
		return nil
	}
	return filter.Args
}

func entityArgs[T any](entities []*T) []interface{} {
	args := make([]interface{}, len(entities))
	for i, e := range entities {
		args[i] = e
	}
	return args
}

// fixedExecutor runs every call on one connection.
type fixedExecutor struct {
	conn bun.IDB
}

func (e fixedExecutor) Conn(context.Context) bun.IDB { return e.conn }

func (e fixedExecutor) Do(ctx context.Context, _ transaction.Operation, fn func(ctx context.Context, conn bun.IDB) error) error {
	return fn(ctx, e.conn)
}
