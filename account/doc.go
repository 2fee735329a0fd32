// Package account provides implementations of core.AccountService, the
// account management collaborator of the composition engine.
//
// InMemoryStore keeps accounts in a process local map and is suited for
// tests and single-process demos. SQLiteStore persists accounts in a SQLite
// database through database/sql.
//
// Both stores scope every operation to the session's user, reserve
// core.DefaultAccountID for the internal groupware account, and reject
// stale writes: an update or delete whose client timestamp predates the
// account's last modification fails with core.ErrConflict.
package account
