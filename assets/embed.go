// Package assets embeds the SQL migrations so the binary carries its schema.
package assets

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var FS embed.FS

// Migrations returns the embedded migration paths in lexical order.
func Migrations() ([]string, error) {
	entries, err := fs.ReadDir(FS, "migrations")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			continue
		}
		out = append(out, "migrations/"+e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// ReadMigration returns the SQL text of one migration.
func ReadMigration(name string) (string, error) {
	b, err := FS.ReadFile(name)
	return string(b), err
}
