// Package pgstore is the Postgres-backed implementation of the
// store.OrchestrationStore and store.SchoolStore interfaces (spec.md
// §3, §6). It is handed a pre-opened *sqlx.DB by whatever connection
// factory the deployment uses — ConnectionFactory itself (DSN
// resolution against a secret store) is out of scope and stays
// interface-only in store/store.go, the same way the teacher's
// pkg/file accepts an already-open io.Writer rather than owning file
// lifecycle.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to Postgres at dsn using pgx's database/sql driver and
// wraps it with sqlx for named-query support, grounded on the teacher's
// preference for explicit SQL over an ORM (design note, §9: "replace
// ORM dirty-state tracking with explicit snapshot-before-update").
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	return db, nil
}

// The nullTimeOf/timePtrOf helpers live in school_store.go; the JSON
// marshal helpers live in convert.go.
