package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/calmesh/core"
)

var _ core.AccountService = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS calendar_account (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	provider TEXT NOT NULL,
	settings TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_modified INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS calendar_account_user ON calendar_account (user_id);
`

// SQLiteStore implements core.AccountService on a SQLite database. Settings
// are stored as JSON; timestamps as milliseconds since the epoch, the unit of
// client timestamps.
type SQLiteStore struct {
	db   *sql.DB
	opts Options
}

// NewSQLiteStore creates the schema if needed and returns the store. The
// caller owns db (opened with the "sqlite" driver of modernc.org/sqlite).
func NewSQLiteStore(ctx context.Context, db *sql.DB, optFns ...func(o *Options)) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create account schema: %w", err)
	}
	return &SQLiteStore{db: db, opts: defaultOptions(optFns)}, nil
}

// Account implements core.AccountService.
func (s *SQLiteStore) Account(ctx context.Context, session core.Session, id core.AccountID) (core.Account, error) {
	if id == core.DefaultAccountID && s.opts.DefaultProvider != "" {
		return defaultAccount(s.opts.DefaultProvider, session.UserID), nil
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, provider, settings, created_at, last_modified FROM calendar_account WHERE id = ? AND user_id = ?",
		int(id), session.UserID)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, notFound(id)
	}
	if err != nil {
		return core.Account{}, core.Wrap(core.ErrUnexpected, err, "failed to load account %d", id)
	}
	return acc, nil
}

// Accounts implements core.AccountService. The internal account comes
// first, the others follow in creation order.
func (s *SQLiteStore) Accounts(ctx context.Context, session core.Session) ([]core.Account, error) {
	var out []core.Account
	if s.opts.DefaultProvider != "" {
		out = append(out, defaultAccount(s.opts.DefaultProvider, session.UserID))
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, provider, settings, created_at, last_modified FROM calendar_account WHERE user_id = ? ORDER BY id",
		session.UserID)
	if err != nil {
		return nil, core.Wrap(core.ErrUnexpected, err, "failed to list accounts")
	}
	defer rows.Close()

	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, core.Wrap(core.ErrUnexpected, err, "failed to read account")
		}
		out = append(out, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Wrap(core.ErrUnexpected, err, "failed to list accounts")
	}
	return out, nil
}

// CreateAccount implements core.AccountService.
func (s *SQLiteStore) CreateAccount(ctx context.Context, session core.Session, providerID string, settings core.Settings) (core.Account, error) {
	if err := validate(providerID); err != nil {
		return core.Account{}, err
	}
	now := s.now()
	settings.LastModified = now
	raw, err := json.Marshal(settings)
	if err != nil {
		return core.Account{}, core.Wrap(core.ErrUnexpected, err, "failed to encode settings")
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO calendar_account (user_id, provider, settings, created_at, last_modified) VALUES (?, ?, ?, ?, ?)",
		session.UserID, providerID, string(raw), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return core.Account{}, core.Wrap(core.ErrUnexpected, err, "failed to create account")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Account{}, core.Wrap(core.ErrUnexpected, err, "failed to create account")
	}
	return core.Account{
		ID:           core.AccountID(id),
		UserID:       session.UserID,
		ProviderID:   providerID,
		Settings:     cloneSettings(settings),
		Created:      now,
		LastModified: now,
	}, nil
}

// UpdateAccount implements core.AccountService.
func (s *SQLiteStore) UpdateAccount(ctx context.Context, session core.Session, id core.AccountID, settings core.Settings, clientTimestamp int64) (core.Account, error) {
	if id == core.DefaultAccountID {
		return core.Account{}, internalReadOnly("update")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Account{}, core.Wrap(core.ErrUnexpected, err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	acc, err := s.lockedAccount(ctx, tx, session, id, clientTimestamp)
	if err != nil {
		return core.Account{}, err
	}
	now := s.now()
	settings.LastModified = now
	raw, err := json.Marshal(settings)
	if err != nil {
		return core.Account{}, core.Wrap(core.ErrUnexpected, err, "failed to encode settings")
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE calendar_account SET settings = ?, last_modified = ? WHERE id = ?",
		string(raw), now.UnixMilli(), int(id)); err != nil {
		return core.Account{}, core.Wrap(core.ErrUnexpected, err, "failed to update account %d", id)
	}
	if err := tx.Commit(); err != nil {
		return core.Account{}, core.Wrap(core.ErrUnexpected, err, "failed to update account %d", id)
	}
	acc.Settings = cloneSettings(settings)
	acc.LastModified = now
	return acc, nil
}

// DeleteAccount implements core.AccountService.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, session core.Session, id core.AccountID, clientTimestamp int64) error {
	if id == core.DefaultAccountID {
		return internalReadOnly("delete")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Wrap(core.ErrUnexpected, err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.lockedAccount(ctx, tx, session, id, clientTimestamp); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM calendar_account WHERE id = ?", int(id)); err != nil {
		return core.Wrap(core.ErrUnexpected, err, "failed to delete account %d", id)
	}
	if err := tx.Commit(); err != nil {
		return core.Wrap(core.ErrUnexpected, err, "failed to delete account %d", id)
	}
	return nil
}

func (s *SQLiteStore) lockedAccount(ctx context.Context, tx *sql.Tx, session core.Session, id core.AccountID, clientTimestamp int64) (core.Account, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT id, user_id, provider, settings, created_at, last_modified FROM calendar_account WHERE id = ? AND user_id = ?",
		int(id), session.UserID)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, notFound(id)
	}
	if err != nil {
		return core.Account{}, core.Wrap(core.ErrUnexpected, err, "failed to load account %d", id)
	}
	if err := checkTimestamp(acc, clientTimestamp); err != nil {
		return core.Account{}, err
	}
	return acc, nil
}

// now is truncated to milliseconds so that stored and returned timestamps
// agree.
func (s *SQLiteStore) now() time.Time {
	return s.opts.Now().UTC().Truncate(time.Millisecond)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (core.Account, error) {
	var (
		acc               core.Account
		id                int64
		raw               string
		created, modified int64
	)
	if err := row.Scan(&id, &acc.UserID, &acc.ProviderID, &raw, &created, &modified); err != nil {
		return core.Account{}, err
	}
	if err := json.Unmarshal([]byte(raw), &acc.Settings); err != nil {
		return core.Account{}, fmt.Errorf("corrupt settings of account %d: %w", id, err)
	}
	acc.ID = core.AccountID(id)
	acc.Created = time.UnixMilli(created).UTC()
	acc.LastModified = time.UnixMilli(modified).UTC()
	return acc, nil
}
