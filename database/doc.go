// Package database provides connection management, configuration loading,
// migration execution, logging, health checks, and related utilities built
// on top of Bun.
package database
