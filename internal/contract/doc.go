// Package contract defines the registry record that links a Source document
// to its compiled Target artifact.
//
// This package contains types and pure helpers only. It imports nothing
// internal, so every other package can depend on it.
//
// Key constraints:
//   - Source is the identity key: at most one Entry per Source in a registry
//   - Entries are replaced wholesale, never patched field by field
//   - Flags keep their order; some compiler flags take positional arguments
package contract
