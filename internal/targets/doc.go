// Package targets builds the configured external sync targets.
//
// Each target lives in its own subpackage (notion, readwise) and implements
// driven.TargetClient. Build wires the ones whose credentials are present.
package targets
