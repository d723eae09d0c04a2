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
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tomoncle/txflow/database"
)

func TestMetrics_CountsTransactionsAndOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	runner := &fakeRunner{}
	coord := NewCoordinator(runner, WithLogger(database.NopLogger{}), WithMetrics(m))
	ic := NewInterceptor(nil, WithLogger(database.NopLogger{}), WithMetrics(m))
	noop := func(context.Context, bun.IDB) error { return nil }
	op := NewOperation("users", "create")

	require.NoError(t, ic.Do(context.Background(), op, noop))

	ctx, err := coord.Begin(context.Background(), nil)
	require.NoError(t, err)
	_, err = coord.Begin(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active))
	require.NoError(t, ic.Do(ctx, op, noop))
	require.NoError(t, ic.Do(ctx, op, noop))
	require.NoError(t, coord.Commit(ctx))

	ctx, err = coord.Begin(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, coord.Rollback(ctx, nil))

	runner.mu.Lock()
	runner.openErr = errors.New("refused")
	runner.mu.Unlock()
	_, err = coord.Begin(context.Background(), nil)
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.begun.WithLabelValues("opened")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.begun.WithLabelValues("joined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.begun.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolved.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolved.WithLabelValues("rolled_back")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("users", "create", "default")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("users", "create", "transaction")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.begin("opened")
	m.open()
	m.resolve("committed", 0)
	m.operation(Operation{}, targetDefault)
}

func TestCoordinator_EmitsOneSpanPerTransaction(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	coord := NewCoordinator(&fakeRunner{}, WithLogger(database.NopLogger{}), WithTracerProvider(tp))

	ctx, err := coord.Begin(context.Background(), nil)
	require.NoError(t, err)
	_, err = coord.Begin(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, coord.Commit(ctx))

	ctx, err = coord.Begin(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, coord.Rollback(ctx, errors.New("boom")))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Equal(t, "txflow.transaction", s.Name())
	}
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("txflow.outcome", "committed"))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("txflow.outcome", "rolled_back"))
	require.Len(t, spans[1].Events(), 1, "the rollback reason is recorded")
}

func TestCoordinator_LogsIgnoredVerbs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	coord := NewCoordinator(&fakeRunner{}, WithLogger(database.NewZapLogger(zap.New(core))))

	require.NoError(t, coord.Commit(context.Background()))
	require.NoError(t, coord.Rollback(context.Background(), nil))

	ctx, err := coord.Begin(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, coord.Commit(ctx))
	require.NoError(t, coord.Commit(ctx))

	assert.Equal(t, 1, logs.FilterMessage("commit ignored: no transaction in context").Len())
	assert.Equal(t, 1, logs.FilterMessage("rollback ignored: no transaction in context").Len())
	ignored := logs.FilterMessage("commit ignored: transaction not active").All()
	require.Len(t, ignored, 1)
	assert.Equal(t, "committed", ignored[0].ContextMap()["status"])
	assert.Equal(t, 1, logs.FilterMessage("transaction committed").Len())
}
