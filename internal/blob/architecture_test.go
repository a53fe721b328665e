package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestImportBoundaries loads the whole module once and checks the layering:
// only this package wraps the blob backends, and the domain package stays free
// of internal imports.
func TestImportBoundaries(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "fitsync/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	boundaries := []struct {
		name      string
		forbidden string
		exempt    []string
	}{
		{name: "blob backends", forbidden: "fitsync/internal/infra/blob", exempt: []string{"fitsync/internal/blob", "fitsync/internal/infra/blob"}},
		{name: "domain purity", forbidden: "fitsync/internal", exempt: []string{"fitsync/internal", "fitsync/cmd", "fitsync/plugins"}},
	}

	for _, b := range boundaries {
		t.Run(b.name, func(t *testing.T) {
			seen := make(map[string]struct{})
			for _, pkg := range pkgs {
				if within(pkg.PkgPath, b.exempt) {
					continue
				}
				for importPath := range pkg.Imports {
					if importPath == b.forbidden || strings.HasPrefix(importPath, b.forbidden+"/") {
						seen[pkg.PkgPath+": "+importPath] = struct{}{}
					}
				}
			}
			if len(seen) == 0 {
				return
			}
			violations := make([]string, 0, len(seen))
			for v := range seen {
				violations = append(violations, v)
			}
			sort.Strings(violations)
			for _, v := range violations {
				t.Errorf("forbidden import: %s", v)
			}
		})
	}
}

func within(pkgPath string, prefixes []string) bool {
	for _, p := range prefixes {
		if pkgPath == p || strings.HasPrefix(pkgPath, p+"/") {
			return true
		}
	}
	return false
}
