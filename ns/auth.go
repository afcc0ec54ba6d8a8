package ns

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
)

// Directory verifies credentials and resolves accounts. Implementations
// may block for a bounded time; lookups run synchronously on the
// reactor loop under a per-call timeout.
type Directory interface {
	// VerifyInternal checks a challenge-response login. The response is
	// the client's hash over the session nonce, its remote endpoint and
	// the account password. On success it returns the account group.
	VerifyInternal(ctx context.Context, login, response, nonce, ip string, port int) (group string, ok bool, err error)

	// VerifyTicket validates an opaque external ticket and returns the
	// principal login it was issued for.
	VerifyTicket(ctx context.Context, ticket string) (login string, ok bool, err error)

	// AccountExists reports whether an account is registered.
	AccountExists(ctx context.Context, login string) (bool, error)
}

// ChallengeResponse computes the expected hash for an internal login:
// md5("<nonce>-<ip>/<port><password>") in lowercase hex. Shared by the
// directory implementations and by protocol tests acting as clients.
func ChallengeResponse(nonce, ip string, port int, password string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s-%s/%d%s", nonce, ip, port, password)))
	return hex.EncodeToString(sum[:])
}

// MemoryDirectory is an in-memory Directory for tests and dev mode.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts map[string]memoryAccount
	tickets  map[string]string
}

type memoryAccount struct {
	password string
	group    string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		accounts: make(map[string]memoryAccount),
		tickets:  make(map[string]string),
	}
}

// AddAccount registers an account with its password and group.
func (d *MemoryDirectory) AddAccount(login, password, group string) {
	d.mu.Lock()
	d.accounts[login] = memoryAccount{password: password, group: group}
	d.mu.Unlock()
}

// AddTicket registers an opaque ticket resolving to a principal login.
func (d *MemoryDirectory) AddTicket(ticket, login string) {
	d.mu.Lock()
	d.tickets[ticket] = login
	d.mu.Unlock()
}

func (d *MemoryDirectory) VerifyInternal(_ context.Context, login, response, nonce, ip string, port int) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acct, ok := d.accounts[login]
	if !ok {
		return "", false, nil
	}
	expected := ChallengeResponse(nonce, ip, port, acct.password)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(response)) != 1 {
		return "", false, nil
	}
	return acct.group, true, nil
}

func (d *MemoryDirectory) VerifyTicket(_ context.Context, ticket string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	login, ok := d.tickets[ticket]
	return login, ok, nil
}

func (d *MemoryDirectory) AccountExists(_ context.Context, login string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.accounts[login]
	return ok, nil
}
