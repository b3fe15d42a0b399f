package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
)

// Validate checks migration filenames and goose headers for every dialect,
// and that both dialects carry the same set of versions.
func Validate() error {
	versions := map[string]map[string]string{}
	for _, driver := range []string{"sqlite", "postgres"} {
		dir, err := Dir(driver)
		if err != nil {
			return err
		}
		seen, err := validateDir(embedded, dir)
		if err != nil {
			return err
		}
		versions[driver] = seen
	}

	for version, name := range versions["sqlite"] {
		if other, ok := versions["postgres"][version]; !ok || other != name {
			return fmt.Errorf("migration %q has no postgres counterpart", name)
		}
	}
	if len(versions["sqlite"]) != len(versions["postgres"]) {
		return fmt.Errorf("sqlite and postgres migration sets differ")
	}
	return nil
}

func validateDir(fsys fs.FS, dir string) (map[string]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{} // version -> filename

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		version := m[1]
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		b, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", name, err)
		}

		txt := string(b)
		if !strings.Contains(txt, "-- +goose Up") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
		}
		if !strings.Contains(txt, "-- +goose Down") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
		}
	}

	return seen, nil
}
