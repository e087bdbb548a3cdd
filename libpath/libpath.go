// Package libpath resolves a bare module name (the argument to "import")
// against a list of search directories, generalizing spec.md's out-of-scope
// "library-location utility" into a concrete component: a jay.yaml manifest
// plus the JAY_PATH environment variable contribute search roots, and the
// module's source file is found by trying each root in order.
package libpath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is a project's jay.yaml: the library search paths a module
// loader consults, in addition to JAY_PATH and the project directory.
type Manifest struct {
	Paths []string `yaml:"paths"`
}

// LoadManifest reads and parses a jay.yaml file. A missing file is not an
// error -- a project with no manifest just has no extra search paths.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &m, nil
}

// Resolver finds the source file for a bare module name by trying each
// search root, in order, for each of the extensions a module may exist as
// (compiled .jb first, then assembled .ja, then source .jv, mirroring the
// pipeline order a build would produce them in).
type Resolver struct {
	Roots []string
}

// NewResolver builds a Resolver from a project's own directory, its
// manifest's paths (relative ones are joined onto projectDir), and
// JAY_PATH (colon-separated, same convention as PATH/GOPATH).
func NewResolver(projectDir string, manifest *Manifest) *Resolver {
	var roots []string
	roots = append(roots, projectDir)
	for _, p := range manifest.Paths {
		if filepath.IsAbs(p) {
			roots = append(roots, p)
		} else {
			roots = append(roots, filepath.Join(projectDir, p))
		}
	}
	if env := os.Getenv("JAY_PATH"); env != "" {
		roots = append(roots, strings.Split(env, string(os.PathListSeparator))...)
	}
	return &Resolver{Roots: roots}
}

var extensions = []string{".jb", ".ja", ".jv"}

// Resolve returns the path to name's source file and which extension it was
// found under, trying every root in order and every extension per root.
func (r *Resolver) Resolve(name string) (path string, ext string, err error) {
	rel := strings.ReplaceAll(name, ".", string(filepath.Separator))
	for _, root := range r.Roots {
		for _, e := range extensions {
			candidate := filepath.Join(root, rel+e)
			if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
				return candidate, e, nil
			}
		}
	}
	return "", "", fmt.Errorf("module %q not found in any of %d search path(s)", name, len(r.Roots))
}
