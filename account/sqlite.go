package account

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/netsoul/nsould/ns"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ns_account (
	login      TEXT PRIMARY KEY,
	password   TEXT NOT NULL,
	group_name TEXT NOT NULL DEFAULT 'int'
);
CREATE TABLE IF NOT EXISTS ns_ticket (
	ticket TEXT PRIMARY KEY,
	login  TEXT NOT NULL REFERENCES ns_account(login)
);`

// SQLite is a ns.Directory backed by a local SQLite file. Suited to
// single-host installs where running a database server is overkill.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("account: open sqlite: %w", err)
	}
	// The driver serializes access through a single connection; more
	// would contend on the file lock.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("account: init sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// AddAccount inserts or replaces an account row. Used by provisioning
// tooling and tests.
func (s *SQLite) AddAccount(ctx context.Context, login, password, group string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ns_account (login, password, group_name) VALUES (?, ?, ?)`,
		login, password, group)
	if err != nil {
		return fmt.Errorf("account: add %q: %w", login, err)
	}
	return nil
}

// AddTicket registers a single-use ticket for a login.
func (s *SQLite) AddTicket(ctx context.Context, ticket, login string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ns_ticket (ticket, login) VALUES (?, ?)`,
		ticket, login)
	if err != nil {
		return fmt.Errorf("account: add ticket: %w", err)
	}
	return nil
}

func (s *SQLite) VerifyInternal(ctx context.Context, login, response, nonce, ip string, port int) (string, bool, error) {
	var password, group string
	err := s.db.QueryRowContext(ctx,
		`SELECT password, group_name FROM ns_account WHERE login = ?`,
		login).Scan(&password, &group)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("account: lookup %q: %w", login, err)
	}
	expected := ns.ChallengeResponse(nonce, ip, port, password)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(response)) != 1 {
		return "", false, nil
	}
	return group, true, nil
}

// VerifyTicket consumes the ticket: a ticket authenticates at most one
// session.
func (s *SQLite) VerifyTicket(ctx context.Context, ticket string) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("account: ticket lookup: %w", err)
	}
	defer tx.Rollback()

	var login string
	err = tx.QueryRowContext(ctx,
		`SELECT login FROM ns_ticket WHERE ticket = ?`, ticket).Scan(&login)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("account: ticket lookup: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ns_ticket WHERE ticket = ?`, ticket); err != nil {
		return "", false, fmt.Errorf("account: ticket consume: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("account: ticket consume: %w", err)
	}
	return login, true, nil
}

func (s *SQLite) AccountExists(ctx context.Context, login string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM ns_account WHERE login = ?`, login).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("account: exists %q: %w", login, err)
	}
	return true, nil
}
