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
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomoncle/txflow/database"
)

// Options control how a transaction is opened and how long it may live.
//
// A zero MaxWait or Timeout falls back to the coordinator defaults; a
// negative value disables the limit. IsolationLevel is forwarded verbatim
// to the driver, sql.LevelDefault keeps the coordinator default.
type Options struct {
	// MaxWait bounds how long Begin waits for the driver to open the
	// transaction, including waiting for a pooled connection.
	MaxWait time.Duration
	// Timeout bounds how long the transaction may stay open before it is
	// rolled back and marked expired.
	Timeout        time.Duration
	IsolationLevel sql.IsolationLevel
	ReadOnly       bool
}

// DefaultOptions mirrors database.DefaultTransactionConfig.
func DefaultOptions() Options {
	opts, _ := OptionsFromConfig(database.DefaultTransactionConfig())
	return opts
}

// OptionsFromConfig converts the transaction section of the configuration
// file.
func OptionsFromConfig(cfg *database.TransactionConfig) (Options, error) {
	if cfg == nil {
		return Options{}, nil
	}
	level, err := ParseIsolationLevel(cfg.IsolationLevel)
	if err != nil {
		return Options{}, err
	}
	return Options{MaxWait: cfg.MaxWait, Timeout: cfg.Timeout, IsolationLevel: level}, nil
}

// merge fills zero fields of o from defaults.
func (o *Options) merge(defaults Options) Options {
	if o == nil {
		return defaults
	}
	merged := *o
	if merged.MaxWait == 0 {
		merged.MaxWait = defaults.MaxWait
	}
	if merged.Timeout == 0 {
		merged.Timeout = defaults.Timeout
	}
	if merged.IsolationLevel == sql.LevelDefault {
		merged.IsolationLevel = defaults.IsolationLevel
	}
	merged.ReadOnly = merged.ReadOnly || defaults.ReadOnly
	return merged
}

func (o Options) txOptions() *sql.TxOptions {
	if o.IsolationLevel == sql.LevelDefault && !o.ReadOnly {
		return nil
	}
	return &sql.TxOptions{Isolation: o.IsolationLevel, ReadOnly: o.ReadOnly}
}

// ParseIsolationLevel accepts the names printed by sql.IsolationLevel in
// any case, with spaces, dashes or underscores, e.g. "repeatable_read".
// An empty string or "default" yields sql.LevelDefault.
func ParseIsolationLevel(s string) (sql.IsolationLevel, error) {
	want := normalizeLevel(s)
	if want == "" {
		return sql.LevelDefault, nil
	}
	for level := sql.LevelDefault; level <= sql.LevelLinearizable; level++ {
		if normalizeLevel(level.String()) == want {
			return level, nil
		}
	}
	return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", s)
}

func normalizeLevel(s string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(s)))
}
