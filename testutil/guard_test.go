package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"example.com/mod/internal/x", true},
		{"example.com/mod/pkg/x", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestPrefixForbidden(t *testing.T) {
	forbidden := PrefixForbidden("entitygraph/pkg/store", "entitygraph/pkg/schema")
	cases := []struct {
		in   string
		want bool
	}{
		{"entitygraph/pkg/store", true},
		{"entitygraph/pkg/store/sub", true},
		{"entitygraph/pkg/storefront", false},
		{"entitygraph/pkg/schema", true},
		{"entitygraph/pkg/domain", false},
	}
	for _, c := range cases {
		if got := forbidden(c.in); got != c.want {
			t.Fatalf("PrefixForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func writeTempPackage(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestDirectImportViolationsIgnoresTests(t *testing.T) {
	dir := writeTempPackage(t, map[string]string{
		"x.go":      "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}\n",
		"x_test.go": "package tmp\nimport \"example.com/mod/internal/y\"\n",
	})
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 0 {
		t.Fatalf("test files must be ignored, got %v", viols)
	}
	AssertNoDirectImports(t, dir, InternalImportForbidden, "none")
}

func TestDirectImportViolationsReportsFile(t *testing.T) {
	dir := writeTempPackage(t, map[string]string{
		"bad.go": "package tmp\nimport (\n\t\"fmt\"\n\t_ \"example.com/mod/internal/y\"\n)\nvar _ = fmt.Sprint\n",
	})
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "example.com/mod/internal/y (in bad.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := writeTempPackage(t, map[string]string{"broken.go": "package"})
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected read error")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	var r recordingFatal
	failIfViolations(&r, "forbidden", "why", nil)
	if r.msg != "" {
		t.Fatalf("no violations must not fail")
	}
	failIfViolations(&r, "forbidden", "why", []string{"a", "b"})
	if !strings.Contains(r.msg, "forbidden (why):\na\nb") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}

func TestPublicPackagesStayOffInternal(t *testing.T) {
	AssertNoTransitiveDependency(t, "entitygraph/pkg/...", InternalImportForbidden, "pkg/... is the embeddable API")
}
