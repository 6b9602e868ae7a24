package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadAll reads page definitions from the _pages table and, when dir is not
// empty, from the JSON/YAML files in dir, then populates the registry.
// Files win over rows with the same id.
func LoadAll(ctx context.Context, db *sql.DB, dir string, reg *Registry) error {
	var pages []*PageDefinition
	if db != nil {
		dbPages, err := loadPages(ctx, db)
		if err != nil {
			return fmt.Errorf("load pages: %w", err)
		}
		pages = append(pages, dbPages...)
	}

	if dir != "" {
		filePages, err := LoadDir(dir)
		if err != nil {
			return fmt.Errorf("load page files: %w", err)
		}
		pages = append(pages, filePages...)
	}

	reg.Load(pages)
	log.Printf("Loaded %d page definitions into registry", len(reg.AllPages()))
	return nil
}

// Reload is an alias for LoadAll.
func Reload(ctx context.Context, db *sql.DB, dir string, reg *Registry) error {
	return LoadAll(ctx, db, dir, reg)
}

func loadPages(ctx context.Context, db *sql.DB) ([]*PageDefinition, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, definition FROM _pages ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*PageDefinition
	for rows.Next() {
		var id string
		var defJSON []byte
		if err := rows.Scan(&id, &defJSON); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}

		page, err := ParsePage(defJSON)
		if err != nil {
			log.Printf("WARN: skipping page %s: %v", id, err)
			continue
		}
		if page.ID == "" {
			page.ID = id
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// LoadDir parses every .json, .yaml and .yml file in dir as a page definition.
// Invalid files are skipped with a warning.
func LoadDir(dir string) ([]*PageDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var pages []*PageDefinition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := ReadPageFile(path)
		if err != nil {
			log.Printf("WARN: skipping page file %s: %v", path, err)
			continue
		}

		page, err := ParsePage(data)
		if err != nil {
			log.Printf("WARN: skipping page file %s: %v", path, err)
			continue
		}
		if page.ID == "" {
			page.ID = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// ReadPageFile returns the JSON form of a .json, .yaml or .yml page file
// without validating it.
func ReadPageFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return data, nil
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported page file type %s", filepath.Ext(path))
	}
}

// ParsePage decodes a JSON page definition and checks its invariants.
// The id may be left empty for the caller to fill in.
func ParsePage(data []byte) (*PageDefinition, error) {
	var page PageDefinition
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if issues := Validate(&page); len(issues) > 0 {
		return nil, fmt.Errorf("invalid definition: %s: %s", issues[0].Path, issues[0].Message)
	}
	return &page, nil
}

// yamlToJSON re-encodes a YAML document as JSON so definitions share the
// json struct tags regardless of source format.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
