// Package core provides the foundational domain types and contracts used by
// calmesh. It defines the abstractions for:
//
//   - Accounts (one configured connection of a principal to a calendar provider)
//   - Providers and backends (the capability interfaces a backend may implement)
//   - Events, folders and the per-key result envelopes of batch operations
//   - The error taxonomy shared by the composition layer and all backends
//
// The package intentionally keeps implementation concerns (identifier
// mangling, orchestration, concrete providers) out of scope, exposing small
// interfaces to enable custom backends. Callers should depend on these
// contracts rather than on concrete provider packages.
package core
