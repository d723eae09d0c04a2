// Package transaction bridges bun's callback-scoped RunInTx into explicit
// Begin, Commit and Rollback verbs carried by a context.Context.
//
// Begin starts RunInTx in its own goroutine and parks the transaction body
// on a one-shot channel. The returned context carries the transaction
// State; every context derived from it, including the ones handed to
// goroutines, routes data operations through the Interceptor to the same
// *bun.Tx. Commit and Rollback signal the parked body, which returns so bun
// commits or rolls back.
//
// Nesting is flat. Begin on a context that already carries an open
// transaction returns that context unchanged, and the first Commit or
// Rollback issued anywhere in the chain resolves the transaction. There
// are no savepoints.
package transaction
