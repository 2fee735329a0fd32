// Package groupware implements the internal calendar provider that serves
// the default account of every user.
//
// The provider keeps folders and events in memory, per user. Backends
// returned by Connect are thin views on that data, so several composition
// engine instances of the same user see the same calendar. The backend
// implements every capability group: full groupware CRUD, per-folder delta
// sync, search, collection tags, personal alarms and iTIP scheduling.
//
// FreeBusy returns a core.FreeBusyProvider answering for internal users from
// the same data.
package groupware
