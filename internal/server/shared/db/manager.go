// Package db wires the server's repositories to their PostgreSQL backend
// and runs schema migrations on startup.
package db

import (
	"context"
	"database/sql"

	"github.com/plateful/plateful/internal/server/repositories/records"
	"github.com/plateful/plateful/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context) error
	Conn() *sql.DB
	Users() users.Repository
	Records() records.Repository
	Close() error
}
