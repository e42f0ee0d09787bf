// Package data embeds the database bootstrap scripts used by the container
// harness.
package data

import (
	_ "embed"
)

// InitdbMariaDB creates the contentdb database and its application user.
//
//go:embed initdb/mariadb/001-database.sql
var InitdbMariaDB string
