// Package registry persists Contract Entries in .whylson/contracts.json.
//
// The Store keeps an in-memory mirror of the file. The mirror leads writes:
// every mutation builds the next list, writes it atomically (temp file +
// rename) and only then replaces the mirror. A failed write leaves the
// mirror untouched.
//
// # Single writer
//
// Upsert, Remove, Save, Reset and Reload all run under one mutex, so no two
// read-modify-write cycles interleave. Reload is driven by a filesystem watch
// and skips content whose digest matches what the store last wrote or read;
// the store's own writes therefore never bounce back as reloads.
//
// # Validation
//
// File contents are checked against a CUE schema before decoding. Content
// that fails the schema or JSON decoding is RegistryCorrupt: Load reports it
// and starts from an empty mirror without rewriting the file.
package registry
