package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	writeFile(t, path, `
name: shapes
main: src/main.pas
unit_paths:
  - src
  - lib
dependencies:
  geometry: ../geometry
  collections:
    git: https://example.com/collections.git
    tag: v1.2.0
    dir: units
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "shapes", m.Name)
	assert.Equal(t, filepath.Join(dir, "src", "main.pas"), m.MainPath())
	assert.Equal(t, []string{dir, filepath.Join(dir, "src"), filepath.Join(dir, "lib")}, m.SearchPaths())
	assert.Equal(t, []string{"collections", "geometry"}, m.DependencyNames())
	assert.Equal(t, filepath.Join(dir, "..", "geometry"), m.Dependencies["geometry"].Path)
	assert.Equal(t, "v1.2.0", m.Dependencies["collections"].Tag)
	assert.Equal(t, "units", m.Dependencies["collections"].Dir)
}

func TestLoadManifestSingleUnitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	writeFile(t, path, "name: demo\nunit_paths: units\n")

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"units"}, m.UnitPaths)
	assert.Empty(t, m.Dependencies)
}

func TestLoadManifestRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	writeFile(t, path, "name: demo\nversion: 1.0.0\n")

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestLoadManifestAggregatesIssues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	writeFile(t, path, `
main: main.p
dependencies:
  broken: {}
  pinned:
    git: https://example.com/x.git
  mixed:
    path: ./x
    rev: abc123
`)

	_, err := LoadManifest(path)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{
		"name must be provided",
		`main "main.p" must be a .pas file`,
		"dependencies.broken: must specify path or git",
		"dependencies.mixed: rev, tag and branch apply only to git dependencies",
		"dependencies.pinned: git dependencies require rev, tag, or branch",
	}, verr.Issues)
}

func TestLoadManifestEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	writeFile(t, path, "")

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestFindManifestWalksUp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestName), "name: demo\n")
	nested := filepath.Join(dir, "src", "deep")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := FindManifest(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ManifestName), found)
}

func TestFindManifestReportsAbsence(t *testing.T) {
	_, err := FindManifest(t.TempDir())
	assert.ErrorIs(t, err, ErrManifestNotFound)
}
