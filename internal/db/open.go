package db

import (
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DB wraps *sql.DB with the dialect it speaks, so queries written with `?`
// placeholders can be rebound for Postgres.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open opens the database behind dsn. A postgres:// DSN goes through pgx;
// anything else is treated as a SQLite path.
func Open(dsn string) (*DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		d, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		return &DB{DB: d, dialect: Postgres}, nil
	}

	// Pragmas go in the DSN so every pooled connection gets them, not just
	// the first. foreign_keys is what makes the delete cascades fire.
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(3000)&_pragma=foreign_keys(1)"
	}
	d, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{DB: d, dialect: SQLite}, nil
}

func (d *DB) Dialect() Dialect { return d.dialect }

// Rebind rewrites `?` placeholders to `$1..$n` when the dialect needs it.
// None of our SQL carries a literal question mark.
func (d *DB) Rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}
