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

// Package testdb opens throwaway SQLite databases for tests.
package testdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/txflow/database"
)

// Open creates a single-connection SQLite database under t.TempDir() with
// the tables of models, and closes it when the test ends.
func Open(t testing.TB, models ...database.SQLModel) *bun.DB {
	t.Helper()

	cfg := database.DefaultConfig()
	cfg.Connection.Type = "sqlite"
	cfg.Connection.DSN = filepath.Join(t.TempDir(), "test.db")
	cfg.Connection.MaxOpenConns = 1
	cfg.Log.Level = "warn"

	manager, err := database.Open(context.Background(), cfg, database.MapLookup(nil), database.NewModelRegistry(models...))
	require.NoError(t, err)
	manager.SetLogger(database.NopLogger{})
	t.Cleanup(func() { _ = manager.Disconnect() })
	return manager.GetDB()
}
