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
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

// LookupFunc resolves a configuration key, reporting whether it is set.
type LookupFunc func(key string) (string, bool)

// EnvLookup reads the process environment first and falls back to the
// given dotenv files. Missing files are skipped.
func EnvLookup(dotenvFiles ...string) LookupFunc {
	fileValues := map[string]string{}
	for _, path := range dotenvFiles {
		values, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		for k, v := range values {
			if _, seen := fileValues[k]; !seen {
				fileValues[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileValues[key]
		return v, ok
	}
}

// MapLookup resolves keys from a fixed map.
func MapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// BaseDatabaseFactory builds database managers from configuration after
// applying environment overrides.
type BaseDatabaseFactory struct {
	manager AbstractDatabaseManager
	logger  Logger
	lookup  LookupFunc
}

// NewDatabaseFactory returns a factory reading overrides through lookup.
// A nil lookup reads the process environment and ".env".
func NewDatabaseFactory(lookup LookupFunc) *BaseDatabaseFactory {
	if lookup == nil {
		lookup = EnvLookup(".env")
	}
	return &BaseDatabaseFactory{logger: GetLogger(), lookup: lookup}
}

// CreateFromConfig constructs a database manager for cfg. cfg is modified
// in place by ApplyEnv.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *Config) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	f.ApplyEnv(cfg)

	supported := false
	for _, t := range SupportedTypes {
		if strings.EqualFold(cfg.Connection.Type, t) {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.Connection.Type, SupportedTypes)
	}

	manager := NewDatabaseManager(&cfg.Connection)
	manager.SetLogger(f.logger)
	f.manager = manager
	return manager, nil
}

// ApplyEnv overrides cfg with DB_*, TX_* and LOG_* keys found by the
// factory lookup. Unparseable values are ignored with a warning.
func (f *BaseDatabaseFactory) ApplyEnv(cfg *Config) {
	c := &cfg.Connection
	f.setString("DB_TYPE", &c.Type)
	f.setString("DB_HOST", &c.Host)
	f.setInt("DB_PORT", &c.Port)
	f.setString("DB_USERNAME", &c.Username)
	f.setString("DB_PASSWORD", &c.Password)
	f.setString("DB_NAME", &c.DBName)
	f.setString("DB_DSN", &c.DSN)
	f.setString("DB_SSLMODE", &c.SSLMode)
	f.setInt("DB_MAX_IDLE_CONNS", &c.MaxIdleConns)
	f.setInt("DB_MAX_OPEN_CONNS", &c.MaxOpenConns)
	f.setDuration("DB_CONN_MAX_LIFETIME", &c.ConnMaxLifetime)
	f.setBool("DB_ENABLE_QUERY_LOG", &c.EnableQueryLog)
	f.setDuration("DB_SLOW_QUERY_TIME", &c.SlowQueryTime)

	t := &cfg.Transaction
	f.setDuration("TX_MAX_WAIT", &t.MaxWait)
	f.setDuration("TX_TIMEOUT", &t.Timeout)
	f.setString("TX_ISOLATION_LEVEL", &t.IsolationLevel)

	f.setString("LOG_LEVEL", &cfg.Log.Level)
	f.setString("CONSOLE_LOG_FORMAT", &cfg.Log.Format)
}

func (f *BaseDatabaseFactory) setString(key string, dst *string) {
	if v, ok := f.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (f *BaseDatabaseFactory) setInt(key string, dst *int) {
	v, ok := f.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		f.logger.Warn("ignoring invalid integer", "key", key, "value", v)
		return
	}
	*dst = n
}

func (f *BaseDatabaseFactory) setBool(key string, dst *bool) {
	v, ok := f.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		f.logger.Warn("ignoring invalid boolean", "key", key, "value", v)
		return
	}
	*dst = b
}

// setDuration accepts Go durations ("1500ms", "2s") and plain milliseconds.
func (f *BaseDatabaseFactory) setDuration(key string, dst *time.Duration) {
	v, ok := f.lookup(key)
	if !ok || v == "" {
		return
	}
	v = strings.TrimSpace(v)
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		f.logger.Warn("ignoring invalid duration", "key", key, "value", v)
		return
	}
	*dst = d
}

func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager {
	return f.manager
}

// GetDB returns the Bun database instance, or nil if not initialized.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{LastError: "database manager not initialized", LastCheckTime: time.Now()}
	}
	return f.manager.HealthCheck(ctx)
}
