// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - ContentStore: Extracted notebooks, pages, highlights and todos
//   - SyncLedgerStore: Per-unit sync records, one per target
//   - TargetClient: An external system units are pushed to
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
//   - MappingStore: Cache of owner to remote container IDs used by targets
//   - RunStore: Sync run history
//   - SchedulerStore: Background task state
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or target package
package driven
