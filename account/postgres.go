package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netsoul/nsould/ns"
)

// Postgres is a ns.Directory backed by a PostgreSQL pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool to the given DSN and verifies it with a
// ping before use.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("account: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("account: ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) VerifyInternal(ctx context.Context, login, response, nonce, ip string, port int) (string, bool, error) {
	var password, group string
	err := p.pool.QueryRow(ctx,
		`SELECT password, group_name FROM ns_account WHERE login = $1`,
		login).Scan(&password, &group)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (p *Postgres) VerifyTicket(ctx context.Context, ticket string) (string, bool, error) {
	var login string
	err := p.pool.QueryRow(ctx,
		`DELETE FROM ns_ticket WHERE ticket = $1 RETURNING login`,
		ticket).Scan(&login)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("account: ticket lookup: %w", err)
	}
	return login, true, nil
}

func (p *Postgres) AccountExists(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ns_account WHERE login = $1)`,
		login).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("account: exists %q: %w", login, err)
	}
	return exists, nil
}
