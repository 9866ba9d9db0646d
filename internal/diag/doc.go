// Package diag defines the diagnostic model shared by every build stage.
//
// # Purpose
//
//   - Provide deterministic data structures that capture findings produced by
//     the resolver, the loader pipeline, linters, the graph and the emitter.
//   - Offer light-weight utilities (Reporter, Bag, Report) that let producers
//     emit diagnostics without coupling to storage or formatting layers.
//
// # Scope
//
// Package diag does not perform any formatting or IO. Rendering lives in
// internal/diagfmt.
//
// # Data model
//
// Diagnostic is the central record. It contains:
//
//   - Severity: Info, Warning or Error, defined in severity.go.
//   - Code: compact numeric identifier (see codes.go) with a stable string form.
//   - Message: human oriented text; keep it short and actionable.
//   - Module or Chunk: the subject the finding belongs to.
//   - Primary span: byte range inside the module, when one is known.
//   - Notes: optional secondary locations.
//   - Err: the typed error behind an error diagnostic.
//
// # Errors
//
// Stages return typed errors (resolve.Error, loader.LoadError,
// loader.TransformError, chunk.EmitError). Each implements Coded, and those
// with a location implement Spanned, so Report.ModuleError and
// Report.ChunkError turn them into diagnostics without diag importing the
// stage packages. Callers still reach the original value through Err and
// errors.As.
//
// # Emitting diagnostics
//
// Linters use a Reporter, usually a BagReporter, or build one through
// ReportError / ReportWarning and call Emit. The build pipeline merges
// per-module findings into a Report.
package diag
