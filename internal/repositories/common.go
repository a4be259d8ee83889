package repositories

import "database/sql"

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can
// run inside or outside a transaction. Locked reads (FOR UPDATE) only
// make sense on a *sql.Tx.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}
