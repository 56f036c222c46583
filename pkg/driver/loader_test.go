package driver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initGitRepo(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)
	for rel, content := range files {
		writeFile(t, filepath.Join(dir, rel), content)
		_, err := worktree.Add(rel)
		require.NoError(t, err)
	}
	hash, err := worktree.Commit("init", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestResolveUnitFromSearchPaths(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, filepath.Join(second, "Shapes.pas"), "unit shapes; interface implementation end.")

	loader := NewLoader(LoaderOptions{SearchPaths: []string{first, second}})
	src, err := loader.ResolveUnit("shapes")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(second, "Shapes.pas"), src.Name)
	assert.Contains(t, src.Text, "unit shapes")
}

func TestResolveUnitPrefersEarlierPath(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, filepath.Join(first, "util.pas"), "first")
	writeFile(t, filepath.Join(second, "util.pas"), "second")

	src, err := NewLoader(LoaderOptions{SearchPaths: []string{first, second}}).ResolveUnit("util")
	require.NoError(t, err)
	assert.Equal(t, "first", src.Text)
}

func TestResolveUnitMissing(t *testing.T) {
	loader := NewLoader(LoaderOptions{SearchPaths: []string{t.TempDir()}})
	_, err := loader.ResolveUnit("nowhere")
	require.ErrorIs(t, err, ErrUnitNotFound)
}

func TestResolveUnitFromPathDependency(t *testing.T) {
	dep := t.TempDir()
	writeFile(t, filepath.Join(dep, "src", "geometry.pas"), "unit geometry;")

	loader := NewLoader(LoaderOptions{
		Dependencies: map[string]*Dependency{"geometry": {Path: dep, Dir: "src"}},
	})
	src, err := loader.ResolveUnit("Geometry")
	require.NoError(t, err)
	assert.Equal(t, "unit geometry;", src.Text)
}

func TestResolveUnitFromGitDependency(t *testing.T) {
	remote := t.TempDir()
	rev := initGitRepo(t, remote, map[string]string{
		"units/collections.pas": "unit collections;",
		"README":                "collections",
	})
	cache := t.TempDir()

	loader := NewLoader(LoaderOptions{
		Dependencies: map[string]*Dependency{
			"collections": {Git: remote, Rev: rev, Dir: "units"},
		},
		CacheDir: cache,
	})
	src, err := loader.ResolveUnit("collections")
	require.NoError(t, err)
	assert.Equal(t, "unit collections;", src.Text)
	assert.True(t, filepath.IsAbs(src.Name))
	assert.Contains(t, src.Name, cache)

	// A second loader reuses the checkout without cloning again.
	require.NoError(t, os.RemoveAll(remote))
	again := NewLoader(LoaderOptions{
		Dependencies: map[string]*Dependency{
			"collections": {Git: remote, Rev: rev, Dir: "units"},
		},
		CacheDir: cache,
	})
	src, err = again.ResolveUnit("collections")
	require.NoError(t, err)
	assert.Equal(t, "unit collections;", src.Text)
}

func TestResolveUnitGitCloneFailure(t *testing.T) {
	loader := NewLoader(LoaderOptions{
		Dependencies: map[string]*Dependency{
			"missing": {Git: filepath.Join(t.TempDir(), "absent"), Rev: "abc"},
		},
		CacheDir: t.TempDir(),
	})
	_, err := loader.ResolveUnit("anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency missing")
}

func TestLoaderForManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestName), "name: demo\nunit_paths: [lib]\n")
	writeFile(t, filepath.Join(dir, "lib", "mathx.pas"), "unit mathx;")

	m, err := LoadManifest(filepath.Join(dir, ManifestName))
	require.NoError(t, err)
	src, err := LoaderForManifest(m, nil, t.TempDir(), nil).ResolveUnit("mathx")
	require.NoError(t, err)
	assert.Equal(t, "unit mathx;", src.Text)
}

func TestSanitizePathSegment(t *testing.T) {
	assert.Equal(t, "head", sanitizePathSegment(" "))
	assert.Equal(t, "refs_tags_v1.0", sanitizePathSegment("refs/tags/v1.0"))
}
