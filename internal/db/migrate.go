package db

import (
	_ "embed"

	"github.com/johoo26/myzhihu/internal/models"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

// Migrate applies the schema for the active dialect and seeds the role table.
func Migrate(d *DB) error {
	schema := schemaSQLite
	if d.dialect == Postgres {
		schema = schemaPostgres
	}
	if _, err := d.Exec(schema); err != nil {
		return err
	}
	return seedRoles(d)
}

// seedRoles upserts the fixed role set. Exactly one role is the default.
func seedRoles(d *DB) error {
	roles := []models.Role{
		{Name: "User", Permissions: models.PermFollow | models.PermComment | models.PermWriteArticles, Default: true},
		{Name: "Moderator", Permissions: models.PermFollow | models.PermComment | models.PermWriteArticles | models.PermModerateComments},
		{Name: "Administrator", Permissions: 0xFF},
	}
	for _, r := range roles {
		_, err := d.Exec(d.Rebind(`
			INSERT INTO roles (name, permissions, is_default) VALUES (?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET permissions = excluded.permissions, is_default = excluded.is_default
		`), r.Name, int(r.Permissions), r.Default)
		if err != nil {
			return err
		}
	}
	return nil
}
