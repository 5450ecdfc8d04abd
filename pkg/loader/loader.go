// Package loader reads StructureDefinitions from FHIR NPM packages, either
// unpacked in the local package cache or as .tgz archives, and turns them
// into schema registries.
package loader

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/fhirjson/pkg/logger"
	"github.com/gofhir/fhirjson/pkg/schema"
)

// DefaultPackagePath returns the FHIR package cache used by the HL7 tooling.
func DefaultPackagePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fhir", "packages")
}

// CorePackage is the package holding the R4 type definitions.
var CorePackage = PackageRef{Name: "hl7.fhir.r4.core", Version: "4.0.1"}

// PackageRef names a package version.
type PackageRef struct {
	Name    string
	Version string
}

// String returns the "name#version" form used for cache directories.
func (p PackageRef) String() string {
	return p.Name + "#" + p.Version
}

// ParsePackageSpec splits "name#version". The version is empty when absent.
func ParsePackageSpec(spec string) PackageRef {
	name, version, _ := strings.Cut(spec, "#")
	return PackageRef{Name: name, Version: version}
}

// Manifest is the package.json of a FHIR NPM package.
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	FHIRVersions []string          `json:"fhirVersions,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Package is the set of StructureDefinitions read from one package.
type Package struct {
	Manifest    Manifest
	Source      string
	Definitions []*r4.StructureDefinition
	Stats       Stats
}

// Stats counts what a load saw.
type Stats struct {
	Files                int
	StructureDefinitions int
	Skipped              int
	Errors               int
}

// Loader reads packages. The zero value is not usable; call New.
type Loader struct {
	basePath string
	log      *logger.Logger
}

// New creates a Loader over a package cache directory (DefaultPackagePath
// when empty).
func New(basePath string, log *logger.Logger) *Loader {
	if basePath == "" {
		basePath = DefaultPackagePath()
	}
	if log == nil {
		log = logger.Default().Named("loader")
	}
	return &Loader{basePath: basePath, log: log}
}

// BasePath returns the package cache directory.
func (l *Loader) BasePath() string {
	return l.basePath
}

// Load reads a package from the cache directory.
func (l *Loader) Load(ref PackageRef) (*Package, error) {
	dir := filepath.Join(l.basePath, ref.String())
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("package %s not found in %s: %w", ref, l.basePath, err)
	}
	return l.LoadDir(dir)
}

// LoadDir reads an unpacked package. Both the package root and its
// "package" subdirectory are accepted.
func (l *Loader) LoadDir(dir string) (*Package, error) {
	if sub := filepath.Join(dir, "package"); isDir(sub) {
		dir = sub
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read package directory: %w", err)
	}

	pkg := &Package{Source: dir}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			l.log.Warn("skipping %s: %v", name, err)
			pkg.Stats.Errors++
			continue
		}
		if err := l.add(pkg, name, data); err != nil {
			return nil, err
		}
	}
	return pkg, nil
}

// LoadTgz reads a package archive from disk.
func (l *Loader) LoadTgz(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open package archive: %w", err)
	}
	defer f.Close()
	return l.ReadTgz(f, path)
}

// ReadTgz reads a gzipped tar package from r. source names it in messages.
func (l *Loader) ReadTgz(r io.Reader, source string) (*Package, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	defer gz.Close()

	pkg := &Package{Source: source}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: read archive: %w", source, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := strings.TrimPrefix(hdr.Name, "package/")
		if strings.Contains(name, "/") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("%s: read %s: %w", source, name, err)
		}
		if err := l.add(pkg, name, data); err != nil {
			return nil, err
		}
	}
	if pkg.Manifest.Name == "" {
		return nil, fmt.Errorf("%s: package.json not found", source)
	}
	return pkg, nil
}

// add files one package member. Only the manifest is required to parse;
// unreadable resources are logged and counted.
func (l *Loader) add(pkg *Package, name string, data []byte) error {
	switch name {
	case "package.json":
		if err := json.Unmarshal(data, &pkg.Manifest); err != nil {
			return fmt.Errorf("%s: parse package.json: %w", pkg.Source, err)
		}
		return nil
	case ".index.json":
		return nil
	}

	pkg.Stats.Files++
	if err := l.resource(pkg, data); err != nil {
		l.log.Warn("skipping %s: %v", name, err)
		pkg.Stats.Errors++
	}
	return nil
}

func (l *Loader) resource(pkg *Package, data []byte) error {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.ResourceType {
	case "StructureDefinition":
		var sd r4.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return err
		}
		pkg.Definitions = append(pkg.Definitions, &sd)
		pkg.Stats.StructureDefinitions++
	case "Bundle":
		var bundle struct {
			Entry []struct {
				Resource json.RawMessage `json:"resource"`
			} `json:"entry"`
		}
		if err := json.Unmarshal(data, &bundle); err != nil {
			return err
		}
		for _, e := range bundle.Entry {
			if len(e.Resource) == 0 {
				continue
			}
			if err := l.resource(pkg, e.Resource); err != nil {
				l.log.Debug("skipping bundle entry: %v", err)
				pkg.Stats.Errors++
			}
		}
	default:
		pkg.Stats.Skipped++
	}
	return nil
}

// Registry builds a schema registry from the definitions of pkgs. Later
// packages override earlier ones for the same type.
func Registry(pkgs ...*Package) (*schema.Registry, error) {
	var sds []*r4.StructureDefinition
	for _, p := range pkgs {
		sds = append(sds, p.Definitions...)
	}
	return schema.FromStructureDefinitions(sds)
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
