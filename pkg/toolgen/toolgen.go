// Package toolgen writes the Python wrapper package that generated code
// imports: one module per tool, an __init__.py, a README grouped by
// category and the gateway client module.
package toolgen

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/rhuss/finquery/pkg/gateway"
	"github.com/rhuss/finquery/pkg/registry"
	"github.com/rhuss/finquery/pkg/selection"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("toolgen").ParseFS(templateFS, "templates/*.tmpl"))

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidName is returned for tool names that are not Python identifiers.
var ErrInvalidName = errors.New("tool name is not a valid identifier")

// Options controls output locations.
type Options struct {
	// OutDir receives the per-tool modules, __init__.py and README.md.
	OutDir string
	// ClientDir receives mcp_client.py. Defaults to the parent of OutDir.
	ClientDir string
	// Title heads the README and package docstring.
	Title string
	// CallTimeout is the default client timeout written into mcp_client.py.
	CallTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.ClientDir == "" {
		o.ClientDir = filepath.Dir(o.OutDir)
	}
	if o.Title == "" {
		o.Title = "Alpha Vantage MCP Tools"
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 60 * time.Second
	}
}

// Report lists the files written.
type Report struct {
	Tools []string
	Files []string
}

// Generate writes the wrapper package for descs. Output is deterministic:
// tools are sorted by name.
func Generate(descs []registry.Descriptor, opts Options) (*Report, error) {
	if opts.OutDir == "" {
		return nil, errors.New("toolgen: output directory is required")
	}
	opts.setDefaults()

	tools, err := prepare(descs)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("toolgen: %w", err)
	}
	if err := os.MkdirAll(opts.ClientDir, 0o755); err != nil {
		return nil, fmt.Errorf("toolgen: %w", err)
	}

	rep := &Report{}
	write := func(path string, data []byte) error {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("toolgen: %w", err)
		}
		rep.Files = append(rep.Files, path)
		return nil
	}

	pkg := filepath.Base(opts.OutDir)
	clientImport := filepath.Base(opts.ClientDir) + ".mcp_client"
	for _, d := range tools {
		src, err := Wrapper(d, clientImport)
		if err != nil {
			return nil, err
		}
		if err := write(filepath.Join(opts.OutDir, d.Name+".py"), src); err != nil {
			return nil, err
		}
		rep.Tools = append(rep.Tools, d.Name)
	}

	index, err := Index(tools, pkg, opts.Title)
	if err != nil {
		return nil, err
	}
	if err := write(filepath.Join(opts.OutDir, "__init__.py"), index); err != nil {
		return nil, err
	}

	readme, err := Readme(tools, pkg, opts.Title)
	if err != nil {
		return nil, err
	}
	if err := write(filepath.Join(opts.OutDir, "README.md"), readme); err != nil {
		return nil, err
	}

	client, err := Client(opts.CallTimeout)
	if err != nil {
		return nil, err
	}
	if err := write(filepath.Join(opts.ClientDir, registry.ClientModule), client); err != nil {
		return nil, err
	}

	slog.Info("generated tool wrappers", "tools", len(rep.Tools), "dir", opts.OutDir)
	return rep, nil
}

// prepare validates names, drops duplicates and sorts.
func prepare(descs []registry.Descriptor) ([]registry.Descriptor, error) {
	seen := map[string]bool{}
	out := make([]registry.Descriptor, 0, len(descs))
	for _, d := range descs {
		if !identRe.MatchString(d.Name) {
			return nil, fmt.Errorf("toolgen: %w: %q", ErrInvalidName, d.Name)
		}
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b registry.Descriptor) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

type wrapperData struct {
	Name         string
	Description  string
	Params       []registry.Param
	ClientImport string
}

// Wrapper renders one tool module.
func Wrapper(d registry.Descriptor, clientImport string) ([]byte, error) {
	if !identRe.MatchString(d.Name) {
		return nil, fmt.Errorf("toolgen: %w: %q", ErrInvalidName, d.Name)
	}
	data := wrapperData{
		Name:         d.Name,
		Description:  docText(d.Description, "No description available"),
		ClientImport: clientImport,
	}
	for _, p := range d.Params {
		p.Description = oneLine(p.Description)
		if p.Type == "" {
			p.Type = "any"
		}
		data.Params = append(data.Params, p)
	}
	return render("wrapper.py.tmpl", data)
}

type indexData struct {
	Title   string
	Package string
	Tools   []registry.Descriptor
}

// Index renders __init__.py.
func Index(tools []registry.Descriptor, pkg, title string) ([]byte, error) {
	return render("init.py.tmpl", indexData{Title: title, Package: pkg, Tools: tools})
}

type readmeTool struct {
	Name        string
	Description string
}

type readmeCategory struct {
	Name  string
	Tools []readmeTool
}

type readmeData struct {
	Title      string
	Package    string
	Count      int
	Categories []readmeCategory
}

// Readme renders README.md with tools grouped by category. Categories and
// the tools inside them are sorted by name.
func Readme(tools []registry.Descriptor, pkg, title string) ([]byte, error) {
	groups := map[string][]readmeTool{}
	for _, d := range tools {
		c := selection.CategoryOf(d.Name)
		groups[c] = append(groups[c], readmeTool{Name: d.Name, Description: strings.Join(strings.Fields(d.Description), " ")})
	}
	names := make([]string, 0, len(groups))
	for n := range groups {
		names = append(names, n)
	}
	slices.Sort(names)

	data := readmeData{Title: title, Package: pkg, Count: len(tools)}
	for _, n := range names {
		ts := groups[n]
		slices.SortFunc(ts, func(a, b readmeTool) int { return strings.Compare(a.Name, b.Name) })
		data.Categories = append(data.Categories, readmeCategory{Name: n, Tools: ts})
	}
	return render("readme.md.tmpl", data)
}

// Client renders mcp_client.py.
func Client(timeout time.Duration) ([]byte, error) {
	return render("mcp_client.py.tmpl", map[string]any{
		"EnvURL":         gateway.EnvURL,
		"EnvToken":       gateway.EnvToken,
		"TimeoutSeconds": fmt.Sprintf("%g", timeout.Seconds()),
	})
}

func render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("toolgen: rendering %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// docText keeps line structure but cannot close the docstring early.
func docText(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"""`, `\"\"\"`)
}

func oneLine(s string) string {
	return docText(strings.Join(strings.Fields(s), " "), "")
}
