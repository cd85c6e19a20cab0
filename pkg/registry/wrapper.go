package registry

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ClientModule is the wrapper support module, not a tool.
const ClientModule = "mcp_client.py"

var (
	defRe = regexp.MustCompile(`(?m)^def\s+([A-Za-z0-9_]+)\s*\(`)
	// name (required, string): description
	typedParamRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s+\((required|optional),\s*([^)]*)\):\s*(.*)$`)
	// name: description
	plainParamRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*):\s*(.*)$`)
)

// ErrNotWrapper is returned for Python sources without a tool function.
var ErrNotWrapper = errors.New("not a tool wrapper")

// ParseWrapper reads a descriptor from a wrapper's source. The name comes
// from the first top-level def, the description from the first docstring
// line and params from its Args section.
func ParseWrapper(src []byte) (Descriptor, error) {
	text := strings.ReplaceAll(string(src), "\r\n", "\n")
	m := defRe.FindStringSubmatch(text)
	if m == nil {
		return Descriptor{}, ErrNotWrapper
	}
	d := Descriptor{Name: m[1]}

	doc, ok := docstring(text[strings.Index(text, m[0]):])
	if !ok {
		return d, nil
	}
	lines := strings.Split(doc, "\n")

	for _, l := range lines {
		if s := strings.TrimSpace(l); s != "" {
			if !isSection(s) {
				d.Description = s
			}
			break
		}
	}

	d.Params = parseArgs(lines)
	return d, nil
}

// docstring returns the body of the first triple-quoted string after def.
func docstring(s string) (string, bool) {
	start := strings.Index(s, `"""`)
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	end := strings.Index(rest, `"""`)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

func isSection(s string) bool {
	return s == "Args:" || s == "Returns:"
}

// parseArgs reads the first Args section. Typed lines win; plain
// "name: desc" lines are used only when no typed line exists.
func parseArgs(lines []string) []Param {
	var typed, plain []Param
	inArgs := false
	argIndent := -1
	seen := map[string]bool{}

	for _, l := range lines {
		s := strings.TrimSpace(l)
		if s == "Args:" {
			if inArgs || argIndent >= 0 {
				// Only the first Args section describes the tool.
				break
			}
			inArgs = true
			argIndent = indent(l)
			continue
		}
		if !inArgs {
			continue
		}
		if strings.HasPrefix(s, "Returns:") && indent(l) <= argIndent {
			break
		}
		if s == "" || strings.EqualFold(s, "No parameters required") {
			continue
		}
		if strings.HasPrefix(s, "params ") || strings.HasPrefix(s, "params:") {
			continue
		}

		if m := typedParamRe.FindStringSubmatch(l); m != nil {
			if !seen[m[1]] {
				seen[m[1]] = true
				typed = append(typed, Param{
					Name:        m[1],
					Required:    m[2] == "required",
					Type:        strings.TrimSpace(m[3]),
					Description: strings.TrimSpace(m[4]),
				})
			}
			continue
		}
		// Plain entries sit one level inside Args; deeper lines continue
		// the previous description.
		if m := plainParamRe.FindStringSubmatch(l); m != nil && indent(l) <= argIndent+8 && !seen[m[1]] {
			seen[m[1]] = true
			plain = append(plain, Param{Name: m[1], Type: "any", Description: strings.TrimSpace(m[2])})
			continue
		}
		if n := len(plain); n > 0 {
			plain[n-1].Description = strings.TrimSpace(plain[n-1].Description + " " + s)
		}
	}
	if len(typed) > 0 {
		return typed
	}
	return plain
}

func indent(l string) int {
	return len(l) - len(strings.TrimLeft(l, " \t"))
}

// LoadDir parses every wrapper under dir, skipping package files and the
// client module.
func LoadDir(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("registry: %s is not a directory", dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.py")
	if err != nil {
		return nil, fmt.Errorf("registry: globbing %s: %w", dir, err)
	}

	var descs []Descriptor
	seen := map[string]string{}
	for _, rel := range matches {
		base := path.Base(rel)
		if base == "__init__.py" || base == ClientModule {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		d, err := ParseWrapper(src)
		if errors.Is(err, ErrNotWrapper) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("registry: %s: %w", rel, err)
		}
		if prev, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("registry: tool %s defined in %s and %s", d.Name, prev, rel)
		}
		seen[d.Name] = rel
		descs = append(descs, d)
	}
	return New(descs...)
}
