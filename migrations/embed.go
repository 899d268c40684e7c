// Package migrations embeds the SQL schema for both storage backends so they
// work regardless of the process's working directory.
package migrations

import "embed"

// Postgres contains all .sql files under postgres/, applied in filename order.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite contains all .sql files under sqlite/, applied in filename order.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
