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

package database

import (
	"context"
	"fmt"

	"github.com/tomoncle/txflow/utils"
)

// Open applies environment overrides to cfg, configures the default
// loggers from cfg.Log, connects, and creates the tables of registry.
// The returned manager owns the connection.
func Open(ctx context.Context, cfg *Config, lookup LookupFunc, registry ModelRegistry) (AbstractDatabaseManager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	factory := NewDatabaseFactory(lookup)
	factory.ApplyEnv(cfg)

	if cfg.Log.Format != "" {
		utils.ConfigureConsoleLogFormat(cfg.Log.Format)
	}
	if cfg.Log.Level != "" {
		utils.ConfigureLogLevel(cfg.Log.Level)
	}

	manager, err := factory.CreateFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := manager.CreateTables(ctx, registry); err != nil {
		_ = manager.Disconnect()
		return nil, err
	}
	return manager, nil
}
