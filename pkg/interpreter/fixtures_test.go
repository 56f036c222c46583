package interpreter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/driver"
	"pascal/interpreter-go/pkg/source"
)

// fixtureManifest describes one program under testdata/fixtures and what
// running it must produce.
type fixtureManifest struct {
	Description string `yaml:"description"`
	Main        string `yaml:"main"`
	Stdin       string `yaml:"stdin"`
	Stdout      string `yaml:"stdout"`
	ExitCode    int    `yaml:"exit_code"`
	Error       *struct {
		Kind string `yaml:"kind"`
		Line int    `yaml:"line"`
		Unit string `yaml:"unit"`
	} `yaml:"error"`
	Skip string `yaml:"skip"`
}

func readFixtureManifest(t *testing.T, dir string) fixtureManifest {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "manifest.yml"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest fixtureManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if manifest.Main == "" {
		manifest.Main = "main.pas"
	}
	return manifest
}

func TestFixtures(t *testing.T) {
	root := filepath.Join("testdata", "fixtures")
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read fixtures: %v", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		t.Run(entry.Name(), func(t *testing.T) {
			runFixture(t, dir)
		})
	}
}

func runFixture(t *testing.T, dir string) {
	manifest := readFixtureManifest(t, dir)
	if manifest.Skip != "" {
		t.Skip(manifest.Skip)
	}
	src, err := source.FromFile(filepath.Join(dir, manifest.Main))
	if err != nil {
		t.Fatalf("read main: %v", err)
	}
	var out bytes.Buffer
	interp := New(Options{
		Units:  driver.NewLoader(driver.LoaderOptions{SearchPaths: []string{dir}}),
		Stdout: &out,
		Stdin:  strings.NewReader(manifest.Stdin),
		Seed:   7,
	})

	prog, err := interp.Compile(src)
	if err == nil {
		err = prog.Run(context.Background())
	}

	if manifest.Error != nil {
		if err == nil {
			t.Fatalf("expected %s error, got none (stdout %q)", manifest.Error.Kind, out.String())
		}
		if got := string(diag.KindOf(err)); got != manifest.Error.Kind {
			t.Fatalf("expected %s error, got %s: %v", manifest.Error.Kind, got, err)
		}
		pos, _ := diag.PositionOf(err)
		if manifest.Error.Line != 0 && pos.Line != manifest.Error.Line {
			t.Fatalf("expected error on line %d, got %v", manifest.Error.Line, pos)
		}
		if manifest.Error.Unit != "" && !strings.HasSuffix(pos.Unit, manifest.Error.Unit) {
			t.Fatalf("expected error in %s, got %q", manifest.Error.Unit, pos.Unit)
		}
	} else if err != nil {
		t.Fatalf("run failed:\n%s", diag.Render(err, src.Text))
	}

	if out.String() != manifest.Stdout {
		t.Fatalf("stdout mismatch\nexpected %q\n     got %q", manifest.Stdout, out.String())
	}
	if prog != nil && prog.ExitCode() != manifest.ExitCode {
		t.Fatalf("expected exit code %d, got %d", manifest.ExitCode, prog.ExitCode())
	}
}
