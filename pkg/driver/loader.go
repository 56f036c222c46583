package driver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/zeebo/blake3"

	"pascal/interpreter-go/pkg/source"
)

// ErrUnitNotFound is returned when no search location holds the unit.
var ErrUnitNotFound = errors.New("unit not found")

// LoaderOptions configures unit resolution.
type LoaderOptions struct {
	// SearchPaths are scanned in order before any dependency.
	SearchPaths  []string
	Dependencies map[string]*Dependency
	// CacheDir receives git checkouts. Defaults to the user cache
	// directory.
	CacheDir string
	Logger   *slog.Logger
}

// Loader resolves unit names to source files. Unit file names are matched
// case-insensitively against "<name>.pas".
type Loader struct {
	opts LoaderOptions

	mu        sync.Mutex
	checkouts map[string]string
}

// NewLoader builds a loader; git dependencies are cloned lazily the first
// time a unit is not found on a search path.
func NewLoader(opts LoaderOptions) *Loader {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.CacheDir == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			opts.CacheDir = filepath.Join(dir, "pascal", "git")
		} else {
			opts.CacheDir = filepath.Join(os.TempDir(), "pascal-git")
		}
	}
	return &Loader{opts: opts, checkouts: make(map[string]string)}
}

// LoaderForManifest resolves units from the manifest's directory, its
// unit_paths and its dependencies, then from extra.
func LoaderForManifest(m *Manifest, extra []string, cacheDir string, logger *slog.Logger) *Loader {
	return NewLoader(LoaderOptions{
		SearchPaths:  append(m.SearchPaths(), extra...),
		Dependencies: m.Dependencies,
		CacheDir:     cacheDir,
		Logger:       logger,
	})
}

// ResolveUnit finds and reads the source of a unit.
func (l *Loader) ResolveUnit(name string) (source.Source, error) {
	if strings.TrimSpace(name) == "" {
		return source.Source{}, fmt.Errorf("driver: empty unit name")
	}
	for _, dir := range l.opts.SearchPaths {
		if path, ok := findUnitFile(dir, name); ok {
			l.opts.Logger.Debug("resolved unit", "unit", name, "path", path)
			return source.FromFile(path)
		}
	}
	for _, depName := range l.dependencyNames() {
		dir, err := l.dependencyDir(depName, l.opts.Dependencies[depName])
		if err != nil {
			return source.Source{}, fmt.Errorf("driver: dependency %s: %w", depName, err)
		}
		if path, ok := findUnitFile(dir, name); ok {
			l.opts.Logger.Debug("resolved unit", "unit", name, "dependency", depName, "path", path)
			return source.FromFile(path)
		}
	}
	return source.Source{}, fmt.Errorf("driver: %w: %s", ErrUnitNotFound, name)
}

func (l *Loader) dependencyNames() []string {
	m := Manifest{Dependencies: l.opts.Dependencies}
	return m.DependencyNames()
}

func (l *Loader) dependencyDir(name string, dep *Dependency) (string, error) {
	if dep == nil {
		return "", fmt.Errorf("dependency %q is not declared", name)
	}
	if dep.Path != "" {
		return filepath.Join(dep.Path, dep.Dir), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if dir, ok := l.checkouts[name]; ok {
		return filepath.Join(dir, dep.Dir), nil
	}
	dir, err := l.ensureGitCheckout(name, dep)
	if err != nil {
		return "", err
	}
	l.checkouts[name] = dir
	return filepath.Join(dir, dep.Dir), nil
}

// ensureGitCheckout clones dep.Git and checks out the pinned revision
// under the cache directory. A checkout already present is reused.
func (l *Loader) ensureGitCheckout(name string, dep *Dependency) (string, error) {
	revision, descriptor, err := gitRevision(dep)
	if err != nil {
		return "", err
	}
	baseDir := filepath.Join(l.opts.CacheDir, sanitizePathSegment(name))
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", err
	}
	targetDir := filepath.Join(baseDir, checkoutKey(dep.Git, descriptor))
	if _, err := os.Stat(targetDir); err == nil {
		l.opts.Logger.Debug("reusing git checkout", "dependency", name, "dir", targetDir)
		return targetDir, nil
	}

	tmpDir, err := os.MkdirTemp(baseDir, "git-fetch-*")
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(tmpDir); err != nil {
		return "", err
	}

	l.opts.Logger.Info("cloning dependency", "dependency", name, "url", dep.Git, "revision", descriptor)
	repo, err := git.PlainClone(tmpDir, false, &git.CloneOptions{URL: dep.Git})
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", fmt.Errorf("git clone %s: %w", dep.Git, err)
	}

	hash, err := repo.ResolveRevision(revision)
	if err != nil && dep.Branch != "" {
		hash, err = repo.ResolveRevision(plumbing.Revision("refs/remotes/origin/" + dep.Branch))
	}
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", fmt.Errorf("resolve revision %s: %w", revision, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", fmt.Errorf("checkout %s: %w", hash, err)
	}
	if err := os.Rename(tmpDir, targetDir); err != nil {
		_ = os.RemoveAll(tmpDir)
		if _, statErr := os.Stat(targetDir); statErr == nil {
			return targetDir, nil
		}
		return "", err
	}
	return targetDir, nil
}

func gitRevision(dep *Dependency) (plumbing.Revision, string, error) {
	if rev := strings.TrimSpace(dep.Rev); rev != "" {
		return plumbing.Revision(rev), rev, nil
	}
	if tag := strings.TrimSpace(dep.Tag); tag != "" {
		return plumbing.Revision("refs/tags/" + tag), "tag-" + tag, nil
	}
	if branch := strings.TrimSpace(dep.Branch); branch != "" {
		return plumbing.Revision("refs/heads/" + branch), "branch-" + branch, nil
	}
	return "", "", fmt.Errorf("git dependencies require rev, tag, or branch")
}

// checkoutKey names a checkout directory after its revision, suffixed with
// a short hash of the URL so two remotes never share a directory.
func checkoutKey(url, descriptor string) string {
	sum := blake3.Sum256([]byte(url))
	return sanitizePathSegment(descriptor) + "-" + hex.EncodeToString(sum[:6])
}

func sanitizePathSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "head"
	}
	var b strings.Builder
	for _, r := range segment {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// findUnitFile looks in dir for name.pas, ignoring case.
func findUnitFile(dir, name string) (string, bool) {
	want := name + ".pas"
	exact := filepath.Join(dir, want)
	if info, err := os.Stat(exact); err == nil && !info.IsDir() {
		return exact, true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(entry.Name(), want) {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	return "", false
}
