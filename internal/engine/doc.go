// Package engine coordinates registration, compilation and preview of
// contracts.
//
// Per Source document the engine moves through:
//
//	Unregistered -> Registered -> (Compiling) -> Displayed | CompileFailed
//
// Registration needs an entrypoint from the Prompter. The first compilation
// after registration always writes the on-disk artifact; if it fails the new
// entry is removed again, so the registry never holds an entry whose
// artifact could not be produced.
//
// Steady-state saves run two separate compiler invocations: a preview
// compile whose text goes to the view (only when the preview is visible),
// then, on success, an artifact compile that keeps the .tz file current.
//
// Edits while a preview is visible schedule a debounced
// save-compile-display cycle. The debounce table holds at most one timer per
// Source; a new edit stops and replaces it.
//
// # Concurrency
//
// Engine methods are safe for concurrent use. A per-Source lock keeps cycles
// for the same document from overlapping; different documents compile
// independently. ResetFolder waits for running cycles and blocks new ones
// until the wipe is done. Registry mutations are serialized by the registry
// itself.
package engine
