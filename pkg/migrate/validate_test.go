package migrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "not-a-migration.sql")
	require.NoError(t, os.WriteFile(bad, []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	require.Error(t, ValidateDir(dir))
}

func TestValidateDirRejectsMissingDownSection(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "20260110090000_missing_down.sql")
	require.NoError(t, os.WriteFile(bad, []byte("-- +goose Up\nSELECT 1;\n"), 0o644))

	require.Error(t, ValidateDir(dir))
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Seller Index!")
	require.NoError(t, err)
	require.Contains(t, filepath.Base(path), "_add_seller_index.sql")
	require.NoError(t, ValidateDir(dir))
}
