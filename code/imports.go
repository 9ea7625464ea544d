package code

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultAllowedPackages are the standard library packages actions may import.
// Packages with filesystem, process, network or unsafe access are excluded.
var DefaultAllowedPackages = []string{
	"bytes",
	"encoding/base64",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	"unicode/utf8",
}

// parseImports returns the import paths named in src. It recognizes single
// imports, aliased imports and import blocks.
func parseImports(src string) []string {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "import ("))
			if trimmed == "" {
				continue
			}
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
			continue
		case strings.HasPrefix(trimmed, "import "):
			trimmed = strings.TrimPrefix(trimmed, "import ")
		case !inBlock:
			continue
		}

		if path, ok := quoted(trimmed); ok {
			imports = append(imports, path)
		}
	}
	return imports
}

func quoted(s string) (string, bool) {
	for _, q := range []string{`"`, "`"} {
		start := strings.Index(s, q)
		if start < 0 {
			continue
		}
		end := strings.Index(s[start+1:], q)
		if end < 0 {
			continue
		}
		return s[start+1 : start+1+end], true
	}
	return "", false
}

// validateImports checks that src only imports allowed packages.
func validateImports(src string, allowed map[string]bool) error {
	var forbidden []string
	for _, pkg := range parseImports(src) {
		if !allowed[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(allowed))
	for pkg := range allowed {
		names = append(names, pkg)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden imports detected: %v (allowed: %v)", forbidden, names)
}
