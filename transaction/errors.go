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
	"errors"
	"fmt"
)

var (
	// ErrMaxWaitExceeded is returned through TransactionOpenError when the
	// driver does not open the transaction within Options.MaxWait.
	ErrMaxWaitExceeded = errors.New("transaction: max wait exceeded")
	// ErrTransactionExpired means Options.Timeout elapsed before the
	// transaction was resolved. Its writes were rolled back.
	ErrTransactionExpired = errors.New("transaction: expired")
	// ErrRolledBack is the reason recorded by Rollback when none is given.
	ErrRolledBack = errors.New("transaction: rolled back")
)

// TransactionOpenError reports that Begin could not open a transaction.
// No State was published.
type TransactionOpenError struct {
	Err error
}

func (e *TransactionOpenError) Error() string {
	return fmt.Sprintf("failed to open transaction: %v", e.Err)
}

func (e *TransactionOpenError) Unwrap() error { return e.Err }

// OperationError wraps a data operation that failed while routed to an open
// transaction. The transaction is left open; the caller decides whether to
// roll it back.
type OperationError struct {
	TxID string
	Op   Operation
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s in transaction %s: %v", e.Op, e.TxID, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// CommitError reports that the driver rejected the commit, or that the
// transaction had already expired.
type CommitError struct {
	TxID string
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("failed to commit transaction %s: %v", e.TxID, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
