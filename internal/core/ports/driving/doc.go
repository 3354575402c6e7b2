// Package driving holds the interfaces the CLI, the watcher and the MCP
// server call into: sync, backfill, ledger inspection and scheduling.
// internal/core/services implements them.
package driving
