// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The sync engine is split into small pieces that are composed by
// SyncOrchestrator:
//
//   - ChangeDetector classifies units as new, changed or unchanged
//   - BuildQueue orders priority and backlog units under a per-run cap
//   - Dispatcher pushes the queue to a target one unit at a time
//   - FindGaps compares local units with what a target reports
//
// Services are pure Go with no CGO.
package services
