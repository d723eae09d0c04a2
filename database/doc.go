// Package database provides connection management, configuration loading
// with environment overrides, table creation, query logging, logger
// adapters, and SQL error classification built on top of Bun.
package database
