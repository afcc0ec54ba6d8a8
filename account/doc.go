// Package account provides database-backed credential directories:
// PostgreSQL via pgx for production deployments and SQLite for
// single-host installs. Both satisfy the ns.Directory contract against
// the same two-table schema (accounts and single-use tickets).
package account
