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
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_FiltersByLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core))
	l.SetLevel(LogLevelWarn)

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept", "tx_id", "abc")
	l.Error("kept too")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "kept", entries[0].Message)
		assert.Equal(t, "abc", entries[0].ContextMap()["tx_id"])
		assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLogLevel("trace"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("WARNING"))
	assert.Equal(t, LogLevelError, ParseLogLevel("fatal"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel(""))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestFormatFields(t *testing.T) {
	assert.Equal(t, "", formatFields())
	assert.Equal(t, " a=1 b=two", formatFields("a", 1, "b", "two", "dangling"))
}

func TestQueryHook_PrintsLabelAndErrors(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	hook := &QueryHook{
		Enabled: true,
		Writer:  &buf,
		Logger:  NopLogger{},
		Label:   func(context.Context) string { return "tx:1234abcd" },
	}

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, buf.String(), "successful queries are printed only in verbose mode")

	hook.AfterQuery(context.Background(), &bun.QueryEvent{
		Query:     "INSERT INTO users (email) VALUES ('a')",
		StartTime: time.Now(),
		Err:       errors.New("UNIQUE constraint failed"),
	})
	out := buf.String()
	assert.Contains(t, out, "[BUN]")
	assert.Contains(t, out, "tx:1234abcd")
	assert.Contains(t, out, "INSERT INTO users")
	assert.Contains(t, out, "UNIQUE constraint failed")

	buf.Reset()
	hook.Verbose = true
	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Contains(t, buf.String(), "SELECT 1")
}

func TestQueryHook_Silent(t *testing.T) {
	var buf bytes.Buffer
	hook := &QueryHook{Enabled: true, Verbose: true, Writer: &buf}

	EnableQuerySilent(true)
	defer EnableQuerySilent(false)
	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, buf.String())
}

type recordingLogger struct {
	NopLogger
	warnings []string
}

func (r *recordingLogger) Warn(msg string, _ ...interface{}) { r.warnings = append(r.warnings, msg) }

func TestQueryHook_SlowQuery(t *testing.T) {
	rec := &recordingLogger{}
	hook := &QueryHook{SlowTime: time.Millisecond, Logger: rec}

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now().Add(-time.Second)})
	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now().Add(time.Hour)})

	assert.Equal(t, []string{"slow query"}, rec.warnings)
}
