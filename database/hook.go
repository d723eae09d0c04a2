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
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var querySilent atomic.Bool

// EnableQuerySilent mutes every QueryHook in the process.
func EnableQuerySilent(b bool) {
	querySilent.Store(b)
}

// QueryHook prints executed statements and reports slow ones through the
// package logger. Label, when set, prefixes each line with a tag derived
// from the query context, e.g. the id of the transaction it ran in.
type QueryHook struct {
	// EnvName overrides Enabled at query time: "0" or empty disables,
	// "2" also prints successful statements.
	EnvName  string
	Enabled  bool
	Verbose  bool
	SlowTime time.Duration
	Writer   io.Writer
	Label    func(ctx context.Context) string
	Logger   Logger
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook returns a hook configured from cfg writing to stdout.
func NewQueryHook(cfg *ConnectionConfig) *QueryHook {
	h := &QueryHook{EnvName: "TXFLOW_QUERY_LOG", Writer: os.Stdout}
	if cfg != nil {
		h.Enabled = cfg.EnableQueryLog
		h.Verbose = cfg.EnableQueryLog
		h.SlowTime = cfg.SlowQueryTime
	}
	return h
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if querySilent.Load() {
		return
	}
	dur := time.Since(event.StartTime)
	label := ""
	if h.Label != nil {
		label = h.Label(ctx)
	}

	if h.SlowTime > 0 && dur > h.SlowTime && event.Err == nil {
		h.logger().Warn("slow query", "duration", dur.Round(time.Microsecond), "label", label, "query", event.Query)
	}

	enabled, verbose := h.Enabled, h.Verbose
	if h.EnvName != "" {
		if env, ok := os.LookupEnv(h.EnvName); ok {
			env = strings.TrimSpace(env)
			enabled = env != "" && env != "0"
			verbose = env == "2"
		}
	}
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	args := []interface{}{
		time.Now().Format("2006-01-02 15:04:05.000"),
		color.CyanString("%12s", "[BUN]"),
		fmt.Sprintf("%14s", dur.Round(time.Microsecond)),
	}
	if label != "" {
		args = append(args, color.WhiteString("%-12s", label))
	}
	args = append(args, operationColor(event.Operation()).Sprint(event.Query))
	if event.Err != nil {
		typ := reflect.TypeOf(event.Err).String()
		args = append(args, "\t", color.New(color.BgRed).Sprintf(" %s: %s ", typ, event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer(), args...)
}

func (h *QueryHook) writer() io.Writer {
	if h.Writer == nil {
		return os.Stdout
	}
	return h.Writer
}

func (h *QueryHook) logger() Logger {
	if h.Logger == nil {
		return GetLogger()
	}
	return h.Logger
}

func operationColor(op string) *color.Color {
	switch op {
	case "SELECT":
		return color.New(color.FgGreen)
	case "INSERT":
		return color.New(color.FgBlue)
	case "UPDATE":
		return color.New(color.FgYellow)
	case "DELETE":
		return color.New(color.FgMagenta)
	case "BEGIN", "COMMIT", "ROLLBACK":
		return color.New(color.FgCyan, color.Bold)
	default:
		return color.New(color.FgRed)
	}
}
