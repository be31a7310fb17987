// Package migrations embeds the AVC Link schema so the daemon can migrate
// an empty (usually in-memory) database without files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/avclink-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
