// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage (~/.rmsync/config.toml)
//   - LoadEnv: optional ~/.rmsync/.env for API tokens
package file
