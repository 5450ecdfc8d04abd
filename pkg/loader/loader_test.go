package loader

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofhir/fhirjson/pkg/logger"
)

const manifest = `{"name":"example.widgets","version":"0.1.0","fhirVersions":["4.0.1"]}`

const gadgetSD = `{
  "resourceType": "StructureDefinition",
  "url": "http://hl7.org/fhir/StructureDefinition/Gadget",
  "type": "Gadget",
  "kind": "resource",
  "abstract": false,
  "snapshot": {"element": [
    {"id": "Gadget", "path": "Gadget", "min": 0, "max": "*"},
    {"id": "Gadget.id", "path": "Gadget.id", "min": 0, "max": "1", "type": [{"code": "http://hl7.org/fhirpath/System.String"}]},
    {"id": "Gadget.label", "path": "Gadget.label", "min": 1, "max": "1", "type": [{"code": "string"}]},
    {"id": "Gadget.size[x]", "path": "Gadget.size[x]", "min": 0, "max": "1", "type": [{"code": "integer"}, {"code": "string"}]}
  ]}
}`

var members = map[string]string{
	"package.json":                    manifest,
	".index.json":                     `{"files":[]}`,
	"StructureDefinition-Gadget.json": gadgetSD,
	"ValueSet-colors.json":            `{"resourceType":"ValueSet","id":"colors"}`,
	"broken.json":                     `{"resourceType":`,
	"Bundle-definitions.json":         `{"resourceType":"Bundle","entry":[{"resource":{"resourceType":"StructureDefinition","url":"http://example.org/StructureDefinition/profile","type":"Gadget","kind":"resource"}},{}]}`,
}

func checkPackage(t *testing.T, pkg *Package) {
	t.Helper()
	if pkg.Manifest.Name != "example.widgets" || pkg.Manifest.Version != "0.1.0" {
		t.Errorf("Manifest = %+v; want example.widgets 0.1.0", pkg.Manifest)
	}
	want := Stats{Files: 4, StructureDefinitions: 2, Skipped: 1, Errors: 1}
	if pkg.Stats != want {
		t.Errorf("Stats = %+v; want %+v", pkg.Stats, want)
	}

	reg, err := Registry(pkg)
	if err != nil {
		t.Fatalf("Registry() = %v", err)
	}
	gadget, err := reg.Resource("Gadget")
	if err != nil {
		t.Fatalf("Resource(Gadget) = %v", err)
	}
	if f, ok := gadget.Field("label"); !ok || !f.Card.Required() {
		t.Errorf("Field(label) = %+v, %v; want a required field", f, ok)
	}
	if f, _, ok := gadget.Lookup("sizeInteger"); !ok || f.Name != "size" {
		t.Errorf("Lookup(sizeInteger) = %+v, %v; want the size choice", f, ok)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d; want 1 (profile skipped)", reg.Len())
	}
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "example.widgets#0.1.0", "package")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range members {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	l := New(root, logger.Nop())
	pkg, err := l.Load(ParsePackageSpec("example.widgets#0.1.0"))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	checkPackage(t, pkg)

	if _, err := l.Load(PackageRef{Name: "missing", Version: "1.0.0"}); err == nil {
		t.Error("Load(missing) = nil error")
	}
}

func TestReadTgz(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: "package/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatal(err)
	}
	for name, body := range members {
		hdr := &tar.Header{Name: "package/" + name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	other := "ignored"
	if err := tw.WriteHeader(&tar.Header{Name: "package/other/readme.json", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(other))}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(other)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	pkg, err := New("", logger.Nop()).ReadTgz(&buf, "widgets.tgz")
	if err != nil {
		t.Fatalf("ReadTgz() = %v", err)
	}
	checkPackage(t, pkg)
}

func TestReadTgzWithoutManifest(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	_ = tw.Close()
	_ = gz.Close()

	if _, err := New("", logger.Nop()).ReadTgz(&buf, "empty.tgz"); err == nil {
		t.Error("ReadTgz() = nil error; want missing package.json")
	}
}

func TestParsePackageSpec(t *testing.T) {
	tests := []struct {
		spec string
		want PackageRef
	}{
		{"hl7.fhir.r4.core#4.0.1", CorePackage},
		{"package-without-version", PackageRef{Name: "package-without-version"}},
	}
	for _, tt := range tests {
		if got := ParsePackageSpec(tt.spec); got != tt.want {
			t.Errorf("ParsePackageSpec(%q) = %+v; want %+v", tt.spec, got, tt.want)
		}
		if tt.want.Version != "" && tt.want.String() != tt.spec {
			t.Errorf("String() = %q; want %q", tt.want.String(), tt.spec)
		}
	}
}

func TestDefaultPackagePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got, want := DefaultPackagePath(), filepath.Join(home, ".fhir", "packages"); got != want {
		t.Errorf("DefaultPackagePath() = %q; want %q", got, want)
	}
}
