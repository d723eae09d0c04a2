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

package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{" DEBUG ", logrus.DebugLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"bogus", logrus.InfoLevel},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ParseLogLevel(tc.in), tc.in)
	}
}

func TestNewLogger_ReturnsRegisteredInstance(t *testing.T) {
	a := NewLogger("UTILS_SAME")
	b := NewLogger("UTILS_SAME")
	assert.Same(t, a, b)

	assert.True(t, SetLoggerLevel("UTILS_SAME", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("UTILS_MISSING", "error"))
}

func TestLog4jColorFormatter_Format(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "TX", NameWidth: 4}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "transaction committed",
	}
	out, err := f.Format(entry)
	require.NoError(t, err)

	line := string(out)
	assert.True(t, strings.HasPrefix(line, "2025-01-02 03:04:05.000  INFO"))
	assert.Contains(t, line, "[  TX]")
	assert.True(t, strings.HasSuffix(line, ": transaction committed\n"))
}

func TestJSONLogFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&JSONLogFormatter{LoggerName: "TX"})

	l.WithField("tx_id", "abc").Warn("slow")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "warning", rec["level"])
	assert.Equal(t, "TX", rec["logger"])
	assert.Equal(t, "slow", rec["message"])
	assert.Equal(t, map[string]interface{}{"tx_id": "abc"}, rec["fields"])
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("UTILS_TEST_BOOL", "true")
	t.Setenv("UTILS_TEST_BAD_BOOL", "nope")
	t.Setenv("UTILS_TEST_MS", "1500")
	t.Setenv("UTILS_TEST_DUR", "3s")

	assert.True(t, EnvDefaultBool("UTILS_TEST_BOOL", false))
	assert.True(t, EnvDefaultBool("UTILS_TEST_BAD_BOOL", true))
	assert.Equal(t, "x", EnvDefaultString("UTILS_TEST_UNSET", "x"))
	assert.Equal(t, 1500*time.Millisecond, EnvDefaultDuration("UTILS_TEST_MS", 0))
	assert.Equal(t, 3*time.Second, EnvDefaultDuration("UTILS_TEST_DUR", 0))
	assert.Equal(t, time.Second, EnvDefaultDuration("UTILS_TEST_UNSET", time.Second))
}

func TestShortCaller(t *testing.T) {
	assert.Equal(t, "transaction/coordinator.go:42", shortCaller("/src/txflow/transaction/coordinator.go", 42))
	assert.Equal(t, "main.go:1", shortCaller("main.go", 1))
}
