// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migrations are read from an fs.FS (normally an embed.FS) and must be named
// {version}_{description}.sql, e.g. "001_create_appointments.sql". Each
// migration runs inside its own transaction together with the row recording
// it in schema_migrations, so a failed migration leaves no trace.
//
// Every applied migration stores a BLAKE2b-256 checksum of its SQL. Run
// refuses to continue when an already applied file has since been edited.
//
//	migrations, err := migration.Scan(files, "migrations")
//	if err != nil {
//		return err
//	}
//	if err := migration.NewManager(db, migrations, logger).Run(ctx); err != nil {
//		return err
//	}
package migration
