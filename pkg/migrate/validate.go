package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	sqlFileRe   = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	dropTableRe = regexp.MustCompile(`(?i)\bDROP\s+TABLE\s+(?:IF\s+EXISTS\s+)?([a-z_]+)`)
)

// protectedTables hold money history; an Up migration may never drop them.
var protectedTables = map[string]bool{
	"earnings":             true,
	"payouts":              true,
	"order_status_history": true,
}

// ValidateDir checks filenames, unique versions, goose section markers, and
// that no Up section drops a protected table.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := validateContent(name, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func validateContent(name, txt string) error {
	upAt := strings.Index(txt, "-- +goose Up")
	downAt := strings.Index(txt, "-- +goose Down")
	if upAt < 0 {
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	}
	if downAt < 0 {
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	}
	if downAt < upAt {
		return fmt.Errorf("migration %q has Down before Up", name)
	}
	for _, m := range dropTableRe.FindAllStringSubmatch(txt[upAt:downAt], -1) {
		if protectedTables[strings.ToLower(m[1])] {
			return fmt.Errorf("migration %q drops protected table %s in its Up section", name, m[1])
		}
	}
	return nil
}
