// Package db ships the SQL migrations for the postgres mapping store.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
