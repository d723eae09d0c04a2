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

// Command txflow-demo walks through ambient transactions against a SQLite
// database (or whatever the config file points at).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/tomoncle/txflow"
	"github.com/tomoncle/txflow/database"
	"github.com/tomoncle/txflow/internal/audit"
	"github.com/tomoncle/txflow/internal/signup"
	"github.com/tomoncle/txflow/internal/users"
	"github.com/tomoncle/txflow/transaction"
)

var errAbort = errors.New("rollback requested")

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	success := flag.Bool("success", true, "commit the fan-out transaction instead of rolling it back")
	fanOut := flag.Int("n", 100, "number of concurrent sign-ups in the fan-out step")
	flag.Parse()

	if err := run(context.Background(), *configPath, *success, *fanOut); err != nil {
		fmt.Fprintln(os.Stderr, "txflow-demo:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*database.Config, func(), error) {
	if path != "" {
		cfg, err := database.LoadConfig(path)
		return cfg, func() {}, err
	}
	dir, err := os.MkdirTemp("", "txflow-demo")
	if err != nil {
		return nil, nil, err
	}
	cfg := database.DefaultConfig()
	cfg.Connection.Type = "sqlite"
	cfg.Connection.DSN = filepath.Join(dir, "demo.db")
	cfg.Connection.MaxOpenConns = 1
	return cfg, func() { _ = os.RemoveAll(dir) }, nil
}

func run(ctx context.Context, configPath string, success bool, fanOut int) error {
	cfg, cleanup, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := database.NewModelRegistry(users.Model(), audit.Model())
	manager, err := database.Open(ctx, cfg, database.EnvLookup(".env"), registry)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Disconnect() }()

	logger := database.GetLogger()
	reg := prometheus.NewRegistry()
	client, err := txflow.NewFromConfig(manager.GetDB(), &cfg.Transaction,
		txflow.WithLogger(logger),
		txflow.WithMetrics(transaction.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	userSvc := users.NewService(client)
	auditSvc := audit.NewService(client)
	signups := signup.NewService(client, userSvc, auditSvc)

	// computed field and named query
	if _, err := userSvc.FindByEmail(ctx, "alice@prisma.io"); errors.Is(err, users.ErrNotFound) {
		if _, err := signups.SignUp(ctx, signup.Request{Email: "alice@prisma.io", FirstName: "Alice", LastName: "Smith"}); err != nil {
			return err
		}
	}
	alice, err := userSvc.FindByEmail(ctx, "alice@prisma.io")
	if err != nil {
		return err
	}
	logger.Info("found user", "id", alice.ID, "full_name", alice.FullName)

	// duplicate email inside a transaction
	err = client.Transaction(ctx, func(ctx context.Context) error {
		if _, err := userSvc.Register(ctx, "bob@prisma.io", "Bob", "Jones"); err != nil {
			return err
		}
		_, err := userSvc.Register(ctx, "alice@prisma.io", "Alice", "Again")
		return err
	}, nil)
	if !database.IsDuplicateKey(err) {
		return fmt.Errorf("expected a duplicate key error, got %v", err)
	}
	if _, err := userSvc.FindByEmail(ctx, "bob@prisma.io"); !errors.Is(err, users.ErrNotFound) {
		return fmt.Errorf("bob survived the rollback: %v", err)
	}
	logger.Info("duplicate email rolled back the transaction", "error", err)

	// concurrent writes in one transaction
	stamp := time.Now().UnixNano()
	before, err := userSvc.Count(ctx, nil)
	if err != nil {
		return err
	}
	err = client.Transaction(ctx, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < fanOut; i++ {
			g.Go(func() error {
				_, err := userSvc.Register(gctx, fmt.Sprintf("user%d-%d@prisma.io", stamp, i), "User", fmt.Sprint(i))
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if !success {
			return errAbort
		}
		return nil
	}, nil)
	if err != nil && !errors.Is(err, errAbort) {
		return err
	}
	after, err := userSvc.Count(ctx, nil)
	if err != nil {
		return err
	}
	logger.Info("fan-out finished", "committed", success, "created", after-before)

	return reportMetrics(reg, logger)
}

func reportMetrics(reg *prometheus.Registry, logger database.Logger) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]interface{}, 0, 2*len(m.GetLabel())+2)
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				labels = append(labels, "value", m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				labels = append(labels, "value", m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				labels = append(labels, "count", m.GetHistogram().GetSampleCount())
			}
			logger.Info(mf.GetName(), labels...)
		}
	}
	return nil
}
