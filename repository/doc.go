// Package repository provides a generic table-scoped repository built on Bun.
// Every call is routed through an Executor, so a repository used under a
// context carrying a transaction reads and writes inside that transaction.
package repository
