package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsSortsAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_reports.sql": {Data: []byte("SELECT 10;")},
		"m/002_blocks.sql":  {Data: []byte("SELECT 2;")},
		"m/README.md":       {Data: []byte("docs")},
		"m/draft.sql":       {Data: []byte("SELECT 0;")},
		"m/abc_nope.sql":    {Data: []byte("SELECT 0;")},
	}

	migrations, err := loadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[0].Version)
	assert.Equal(t, "002_blocks.sql", migrations[0].Name)
	assert.Equal(t, 10, migrations[1].Version)
	assert.Equal(t, "SELECT 10;", migrations[1].SQL)
}

func TestLoadMigrationsRejectsDuplicateVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"m/001_a.sql": {Data: []byte("SELECT 1;")},
		"m/001_b.sql": {Data: []byte("SELECT 1;")},
	}

	_, err := loadMigrations(fsys, "m")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsDeclareExclusionConstraint(t *testing.T) {
	migrations, err := LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "time_blocks_no_overlap")
}

func TestEmbeddedMigrationsKeepReportHistory(t *testing.T) {
	migrations, err := LoadMigrations()
	require.NoError(t, err)

	var all string
	for _, m := range migrations {
		all += m.SQL
	}
	assert.NotContains(t, all, "ON DELETE CASCADE")
	assert.Contains(t, all, "REFERENCES scheduled_reports (id) ON DELETE RESTRICT")
	assert.Contains(t, all, "deleted_at      TIMESTAMPTZ")
}
