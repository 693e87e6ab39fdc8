package migration

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var fileNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// Scan reads every *.sql file in dir of fsys and returns them ordered by version.
func Scan(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migration directory %s: %w", dir, err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		m, err := Parse(entry.Name(), string(data))
		if err != nil {
			return nil, err
		}
		if other, dup := seen[m.Version]; dup {
			return nil, newMigrationError(m, "check duplicates",
				fmt.Errorf("%w: %s and %s", ErrDuplicateVersion, other, entry.Name()))
		}
		seen[m.Version] = entry.Name()
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Parse builds a Migration from a file name and its contents. A leading
// "-- Description:" comment overrides the description derived from the name.
func Parse(name, content string) (Migration, error) {
	matches := fileNamePattern.FindStringSubmatch(name)
	if matches == nil {
		return Migration{}, &MigrationError{Name: name, Operation: "validate filename",
			Err: fmt.Errorf("%w: %q does not match {version}_{description}.sql", ErrInvalidMigrationFile, name)}
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil || version <= 0 {
		return Migration{}, &MigrationError{Name: name, Operation: "validate filename",
			Err: fmt.Errorf("%w: version %q must be a positive number", ErrInvalidMigrationFile, matches[1])}
	}

	m := Migration{
		Version:     version,
		Name:        name,
		Description: strings.ReplaceAll(matches[2], "_", " "),
		SQL:         content,
		Checksum:    Checksum(content),
	}
	if strings.TrimSpace(content) == "" {
		return Migration{}, newMigrationError(m, "validate content",
			fmt.Errorf("%w: migration file is empty", ErrInvalidMigrationFile))
	}
	if desc := descriptionFromContent(content); desc != "" {
		m.Description = desc
	}
	return m, nil
}

// Checksum returns the hex encoded BLAKE2b-256 digest of sql.
func Checksum(sql string) string {
	sum := blake2b.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

func descriptionFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "--") {
			if line != "" {
				return ""
			}
			continue
		}
		text := strings.TrimSpace(strings.TrimPrefix(line, "--"))
		if rest, ok := strings.CutPrefix(text, "Description:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
