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

package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/txflow"
	"github.com/tomoncle/txflow/database"
	"github.com/tomoncle/txflow/repository"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrInvalidEmail = errors.New("invalid email")
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Email     string    `bun:"email,notnull,unique" json:"email"`
	FirstName string    `bun:"first_name,notnull" json:"first_name"`
	LastName  string    `bun:"last_name,notnull" json:"last_name"`
	FullName  string    `bun:"-" json:"full_name"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Model registers the users table for database.CreateTables.
func Model() database.SQLModel {
	return database.NewModelAdapter((*User)(nil), 10)
}

func fillFullName(u *User) {
	u.FullName = strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Repository is the users table with the computed FullName field.
type Repository struct {
	repository.Repository[User]
}

func NewRepository(exec repository.Executor) *Repository {
	return &Repository{
		Repository: repository.NewRepository[User](exec, repository.WithComputed("full_name", fillFullName)),
	}
}

// FindFirstByEmail returns the user registered with email, or an error
// wrapping ErrNotFound.
func (r *Repository) FindFirstByEmail(ctx context.Context, email string) (*User, error) {
	user := new(User)
	err := r.Run(ctx, "find_first_by_email", func(ctx context.Context, conn bun.IDB) error {
		return conn.NewSelect().Model(user).Where("?TableAlias.email = ?", email).Limit(1).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, err
	}
	r.Compute(user)
	return user, nil
}

type Service struct {
	txflow.Service[User]
	repo *Repository
}

func NewService(client *txflow.Client) *Service {
	repo := NewRepository(client)
	return &Service{Service: txflow.NewServiceFromRepository[User](repo), repo: repo}
}

// Register creates a user. The email is trimmed and lower-cased.
func (s *Service) Register(ctx context.Context, email, firstName, lastName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	user := &User{Email: email, FirstName: firstName, LastName: lastName}
	if err := s.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("register %s: %w", email, err)
	}
	return user, nil
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindFirstByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}
