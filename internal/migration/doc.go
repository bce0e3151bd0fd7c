// Package migration manages versioned schema migrations for the registry
// database using golang-migrate with embedded SQL files.
//
// PostgreSQL and MySQL are migrated from the embedded files. SQLite
// deployments rely on the GORM auto-migration performed when the registry
// store opens, so no SQLite migration set is shipped.
package migration
