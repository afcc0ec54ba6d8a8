package account

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/netsoul/nsould/ns"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "accounts.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteVerifyInternal(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := db.AddAccount(ctx, "bob", "secret", "int"); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}

	resp := ns.ChallengeResponse("nonce", "10.0.0.1", 4242, "secret")
	group, ok, err := db.VerifyInternal(ctx, "bob", resp, "nonce", "10.0.0.1", 4242)
	if err != nil {
		t.Fatalf("VerifyInternal: %v", err)
	}
	if !ok || group != "int" {
		t.Errorf("verify = %v/%q, want ok with group int", ok, group)
	}

	_, ok, err = db.VerifyInternal(ctx, "bob", "wrong", "nonce", "10.0.0.1", 4242)
	if err != nil || ok {
		t.Errorf("verify with wrong hash = %v/%v, want clean failure", ok, err)
	}

	_, ok, err = db.VerifyInternal(ctx, "ghost", resp, "nonce", "10.0.0.1", 4242)
	if err != nil || ok {
		t.Errorf("verify of unknown login = %v/%v, want clean failure", ok, err)
	}
}

func TestSQLiteTicketSingleUse(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := db.AddAccount(ctx, "bob", "secret", "int"); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if err := db.AddTicket(ctx, "tok-1", "bob"); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}

	login, ok, err := db.VerifyTicket(ctx, "tok-1")
	if err != nil {
		t.Fatalf("VerifyTicket: %v", err)
	}
	if !ok || login != "bob" {
		t.Errorf("ticket = %v/%q, want bob", ok, login)
	}

	// The ticket is consumed by the first use.
	_, ok, err = db.VerifyTicket(ctx, "tok-1")
	if err != nil || ok {
		t.Errorf("second use = %v/%v, want clean failure", ok, err)
	}
}

func TestSQLiteAccountExists(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := db.AddAccount(ctx, "bob", "secret", "int"); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}

	exists, err := db.AccountExists(ctx, "bob")
	if err != nil || !exists {
		t.Errorf("AccountExists(bob) = %v/%v, want true", exists, err)
	}
	exists, err = db.AccountExists(ctx, "ghost")
	if err != nil || exists {
		t.Errorf("AccountExists(ghost) = %v/%v, want false", exists, err)
	}
}
