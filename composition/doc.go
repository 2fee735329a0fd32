// Package composition presents a single calendar API over the accounts of a
// principal, each served by an independently implemented provider.
//
// Callers address folders and events by composite identifiers (see package
// idmangle). Every operation is routed to the account the identifier names:
//
//  1. the identifier is split into account handle and local id,
//  2. the account registry resolves the handle and lazily connects the
//     backend (cached for the lifetime of the Access instance),
//  3. the dispatcher picks the most capable capability group the backend
//     declares and invokes it,
//  4. identifiers in the result are converted back to composite form.
//
// Batch operations partition the requested ids by account and run one job
// per account on a bounded worker pool. A failing account never aborts the
// call: its keys receive error envelopes, and the results are returned in
// the order the keys were requested, one envelope per distinct key.
//
// Operations spanning all accounts (VisibleFolders, AlarmTriggers, searching
// without folders, QueryFreeBusy) report failing accounts as warnings, see
// Access.Warnings.
package composition
