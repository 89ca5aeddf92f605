package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var schemaDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	versions := map[string][]string{}
	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		versions[match[1]] = append(versions[match[1]], match[2])
	}

	if len(versions) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, directions := range versions {
		if len(directions) != 2 || directions[0] == directions[1] {
			t.Errorf("version %s has %v, want one up and one down file", version, directions)
		}
	}
}

// Service code maps store errors by constraint name, so every name it
// matches on must be declared by the schema.
func TestSchemaDeclaresMappedConstraints(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join(schemaDir, "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	schema := string(raw)

	for _, name := range []string{
		ConstraintPostSlug,
		ConstraintTagName,
		ConstraintPostTag,
		ConstraintSubscriptionEmail,
		ConstraintCommentPost,
		ConstraintCommentParent,
	} {
		if !strings.Contains(schema, "CONSTRAINT "+name+" ") {
			t.Errorf("schema does not declare constraint %s", name)
		}
	}
}

func TestDownMigrationDropsEveryTable(t *testing.T) {
	up, err := os.ReadFile(filepath.Join(schemaDir, "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read up migration: %v", err)
	}
	down, err := os.ReadFile(filepath.Join(schemaDir, "0001_init.down.sql"))
	if err != nil {
		t.Fatalf("read down migration: %v", err)
	}

	created := regexp.MustCompile(`CREATE TABLE (\w+)`).FindAllStringSubmatch(string(up), -1)
	if len(created) == 0 {
		t.Fatal("init migration creates no tables")
	}
	for _, match := range created {
		if !strings.Contains(string(down), "DROP TABLE IF EXISTS "+match[1]+";") {
			t.Errorf("down migration does not drop %s", match[1])
		}
	}
}
