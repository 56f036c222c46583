package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestName is the project file searched for by FindManifest.
const ManifestName = "pascal.yml"

// Manifest represents the parsed contents of pascal.yml.
type Manifest struct {
	Path         string
	Name         string
	Main         string
	UnitPaths    []string
	Dependencies map[string]*Dependency
}

// Dependency describes where the units of one dependency live: a local
// directory or a git repository pinned to a rev, tag or branch.
type Dependency struct {
	Path   string
	Git    string
	Rev    string
	Tag    string
	Branch string
	// Dir is a subdirectory of the checkout holding the units.
	Dir string
}

// ValidationError aggregates manifest validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "manifest: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("manifest validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// LoadManifest parses pascal.yml from disk, returning a validated manifest.
// Relative paths in the manifest are resolved against its directory.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("manifest: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", absPath, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var raw manifestFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest: %s is empty", absPath)
		}
		return nil, fmt.Errorf("manifest: parse %s: %w", absPath, err)
	}

	manifest := raw.toManifest(absPath)
	if err := manifest.validate(); err != nil {
		return nil, err
	}
	return manifest, nil
}

// ErrManifestNotFound is returned by FindManifest when no directory above
// the start holds a manifest.
var ErrManifestNotFound = errors.New("no " + ManifestName + " found")

// FindManifest walks up from start looking for pascal.yml.
func FindManifest(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("manifest: %w from %s", ErrManifestNotFound, start)
		}
		dir = parent
	}
}

// Dir is the directory containing the manifest.
func (m *Manifest) Dir() string {
	return filepath.Dir(m.Path)
}

// MainPath returns the absolute path of the main program.
func (m *Manifest) MainPath() string {
	return m.resolve(m.Main)
}

// SearchPaths returns the unit paths as absolute directories, the
// manifest directory first.
func (m *Manifest) SearchPaths() []string {
	out := []string{m.Dir()}
	for _, p := range m.UnitPaths {
		out = append(out, m.resolve(p))
	}
	return out
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir(), p)
}

// DependencyNames lists dependencies in a stable order.
func (m *Manifest) DependencyNames() []string {
	out := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Manifest) validate() error {
	var errs ValidationError
	if m.Name == "" {
		errs.Issues = append(errs.Issues, "name must be provided")
	}
	if m.Main != "" && !strings.EqualFold(filepath.Ext(m.Main), ".pas") {
		errs.Issues = append(errs.Issues, fmt.Sprintf("main %q must be a .pas file", m.Main))
	}
	for _, name := range m.DependencyNames() {
		dep := m.Dependencies[name]
		if dep == nil {
			continue
		}
		for _, issue := range dep.validate() {
			errs.Issues = append(errs.Issues, fmt.Sprintf("dependencies.%s: %s", name, issue))
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

func (d *Dependency) validate() []string {
	var errs []string
	switch {
	case d.Path == "" && d.Git == "":
		errs = append(errs, "must specify path or git")
	case d.Path != "" && d.Git != "":
		errs = append(errs, "path dependencies cannot also specify git")
	}
	if d.Path != "" && (d.Rev != "" || d.Tag != "" || d.Branch != "") {
		errs = append(errs, "rev, tag and branch apply only to git dependencies")
	}
	if d.Git != "" && d.Rev == "" && d.Tag == "" && d.Branch == "" {
		errs = append(errs, "git dependencies require rev, tag, or branch")
	}
	return errs
}

type manifestFile struct {
	Name         string        `yaml:"name"`
	Main         string        `yaml:"main"`
	UnitPaths    stringList    `yaml:"unit_paths"`
	Dependencies dependencyMap `yaml:"dependencies"`
}

type dependencyMap map[string]*Dependency

type stringList []string

func (mf manifestFile) toManifest(path string) *Manifest {
	m := &Manifest{
		Path:         path,
		Name:         strings.TrimSpace(mf.Name),
		Main:         strings.TrimSpace(mf.Main),
		UnitPaths:    mf.UnitPaths.Clone(),
		Dependencies: make(map[string]*Dependency, len(mf.Dependencies)),
	}
	for name, dep := range mf.Dependencies {
		if dep == nil {
			continue
		}
		clone := *dep
		if clone.Path != "" && !filepath.IsAbs(clone.Path) {
			clone.Path = filepath.Join(filepath.Dir(path), clone.Path)
		}
		m.Dependencies[name] = &clone
	}
	return m
}

func (l stringList) Clone() []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, 0, len(l))
	for _, item := range l {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" || strings.TrimSpace(value.Value) == "" {
			*l = nil
			return nil
		}
		*l = stringList{strings.TrimSpace(value.Value)}
		return nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(value.Content))
		for _, node := range value.Content {
			var str string
			if err := node.Decode(&str); err != nil {
				return err
			}
			if str = strings.TrimSpace(str); str != "" {
				items = append(items, str)
			}
		}
		*l = stringList(items)
		return nil
	case yaml.AliasNode:
		return l.UnmarshalYAML(value.Alias)
	case 0:
		*l = nil
		return nil
	default:
		return fmt.Errorf("manifest: expected string or sequence for list but found %s", value.ShortTag())
	}
}

func (dm *dependencyMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == 0 || (value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
		*dm = make(dependencyMap)
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("manifest: dependencies must be a mapping")
	}
	result := make(dependencyMap, len(value.Content)/2)
	for i := 0; i < len(value.Content); i += 2 {
		var key string
		if err := value.Content[i].Decode(&key); err != nil {
			return err
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("manifest: dependency names must be non-empty")
		}
		var dep Dependency
		if err := dep.unmarshalYAML(value.Content[i+1]); err != nil {
			return fmt.Errorf("manifest: dependency %q: %w", key, err)
		}
		result[key] = &dep
	}
	*dm = result
	return nil
}

// unmarshalYAML accepts a bare path or a mapping.
func (d *Dependency) unmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" || strings.TrimSpace(value.Value) == "" {
			*d = Dependency{}
			return nil
		}
		*d = Dependency{Path: strings.TrimSpace(value.Value)}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Path   string `yaml:"path"`
			Git    string `yaml:"git"`
			Rev    string `yaml:"rev"`
			Tag    string `yaml:"tag"`
			Branch string `yaml:"branch"`
			Dir    string `yaml:"dir"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*d = Dependency{
			Path:   strings.TrimSpace(raw.Path),
			Git:    strings.TrimSpace(raw.Git),
			Rev:    strings.TrimSpace(raw.Rev),
			Tag:    strings.TrimSpace(raw.Tag),
			Branch: strings.TrimSpace(raw.Branch),
			Dir:    strings.TrimSpace(raw.Dir),
		}
		return nil
	case yaml.AliasNode:
		return d.unmarshalYAML(value.Alias)
	default:
		return fmt.Errorf("expected string or mapping, found %s", value.ShortTag())
	}
}
