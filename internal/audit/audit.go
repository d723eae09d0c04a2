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

package audit

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/txflow"
	"github.com/tomoncle/txflow/database"
	"github.com/tomoncle/txflow/transaction"
	"github.com/tomoncle/txflow/types"
)

var ErrEmptyAction = errors.New("audit action is required")

type Entry struct {
	bun.BaseModel `bun:"table:audit_entries,alias:ae"`

	ID        int64            `bun:"id,pk,autoincrement" json:"id"`
	Action    string           `bun:"action,notnull" json:"action"`
	Subject   string           `bun:"subject,notnull" json:"subject"`
	Details   types.JsonObject `bun:"details,type:json" json:"details"`
	TxID      string           `bun:"tx_id" json:"tx_id,omitempty"`
	CreatedAt time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

func Model() database.SQLModel {
	return database.NewModelAdapter((*Entry)(nil), 20)
}

// Service appends audit entries. Entries written inside a transaction
// record its id and disappear with it on rollback.
type Service struct {
	txflow.Service[Entry]
}

func NewService(client *txflow.Client) *Service {
	return &Service{Service: txflow.NewService[Entry](client)}
}

func (s *Service) Record(ctx context.Context, action, subject string, details types.JsonObject) error {
	if action == "" {
		return ErrEmptyAction
	}
	entry := &Entry{Action: action, Subject: subject, Details: details}
	if st, ok := transaction.Active(ctx); ok {
		entry.TxID = st.ID()
	}
	return s.Save(ctx, entry)
}

func (s *Service) ForSubject(ctx context.Context, subject string) ([]*Entry, error) {
	return s.Query(ctx, "subject = ?", subject)
}
