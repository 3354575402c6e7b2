// Package domain defines the core business entities for rmsync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - SyncableUnit: A page, highlight or todo that can be pushed to a target
//   - SyncRecord: The ledger row tracking one unit against one target
//   - Notebook, Page, Highlight, Todo: Extracted content held locally
//   - DispatchReport: The outcome of one dispatch run
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
