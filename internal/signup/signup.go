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

// Package signup registers users together with their audit trail. Both
// writes share one ambient transaction.
package signup

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tomoncle/txflow"
	"github.com/tomoncle/txflow/internal/audit"
	"github.com/tomoncle/txflow/internal/users"
	"github.com/tomoncle/txflow/types"
)

const ActionSignUp = "user.signup"

type Request struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Service struct {
	client *txflow.Client
	users  *users.Service
	audit  *audit.Service
	action string
}

func NewService(client *txflow.Client, us *users.Service, as *audit.Service) *Service {
	return &Service{client: client, users: us, audit: as, action: ActionSignUp}
}

// SignUp creates the user and its audit entry, or neither.
func (s *Service) SignUp(ctx context.Context, req Request) (*users.User, error) {
	var created *users.User
	err := s.client.Transaction(ctx, func(ctx context.Context) error {
		u, err := s.users.Register(ctx, req.Email, req.FirstName, req.LastName)
		if err != nil {
			return err
		}
		created = u
		return s.audit.Record(ctx, s.action, u.Email, types.JsonObject{
			"user_id":   u.ID,
			"full_name": u.FullName,
		})
	}, nil)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SignUpAll registers every request concurrently in a single transaction.
// One failure discards all of them.
func (s *Service) SignUpAll(ctx context.Context, reqs []Request) ([]*users.User, error) {
	created := make([]*users.User, len(reqs))
	err := s.client.Transaction(ctx, func(ctx context.Context) error {
		var g errgroup.Group
		for i, req := range reqs {
			g.Go(func() error {
				u, err := s.SignUp(ctx, req)
				if err != nil {
					return fmt.Errorf("sign up %d: %w", i, err)
				}
				created[i] = u
				return nil
			})
		}
		return g.Wait()
	}, nil)
	if err != nil {
		return nil, err
	}
	return created, nil
}
