// Package prompts renders the per-stage agent instructions.
//
// Each stage has one text/template. The built-in set is embedded; a
// directory of <stage>.tmpl files can override any subset of them.
// Templates are treated as configuration: the pipeline only depends on the
// data it passes in and on the markers the replies are parsed for.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// Template names, one per stage.
const (
	Discovery = "discovery"
	Selection = "selection"
	Reader    = "reader"
	Coder     = "coder"
	Parser    = "parser"
	Explorer  = "explorer"
)

// Names lists every template a Set must provide.
var Names = []string{Discovery, Selection, Reader, Coder, Parser, Explorer}

// DiscoveryData feeds the discovery template.
type DiscoveryData struct {
	ToolsDir string
}

// SelectionData feeds the selection template.
type SelectionData struct {
	Query string
	Tools []string
}

// ReaderData feeds the reader template.
type ReaderData struct {
	Tool     string
	ToolsDir string
	Source   string
}

// CoderData feeds the coder template.
type CoderData struct {
	Query      string
	Tool       string
	Interface  string
	ImportPath string
}

// ParserData feeds the parser template.
type ParserData struct {
	Query     string
	Tool      string
	Succeeded bool
	Output    string
}

// ExplorerData feeds the combined discovery+selection template.
type ExplorerData struct {
	Query    string
	ToolsDir string
}

// Set is an immutable collection of parsed stage templates.
type Set struct {
	templates map[string]*template.Template
}

var funcs = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
}

// Default returns the built-in template set.
func Default() *Set {
	s, err := parseFS(builtin, "templates")
	if err != nil {
		panic(fmt.Sprintf("prompts: built-in templates: %v", err))
	}
	return s
}

// Load returns the built-in set with any <name>.tmpl files found in dir
// replacing their defaults. An empty dir returns Default().
func Load(dir string) (*Set, error) {
	s := Default()
	if dir == "" {
		return s, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("prompts: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("prompts: %q is not a directory", dir)
	}

	for _, name := range Names {
		path := filepath.Join(dir, name+".tmpl")
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("prompts: reading %s: %w", path, err)
		}
		t, err := parse(name, string(data))
		if err != nil {
			return nil, err
		}
		s.templates[name] = t
	}
	return s, nil
}

func parseFS(fsys fs.FS, root string) (*Set, error) {
	s := &Set{templates: make(map[string]*template.Template, len(Names))}
	for _, name := range Names {
		data, err := fs.ReadFile(fsys, root+"/"+name+".tmpl")
		if err != nil {
			return nil, err
		}
		t, err := parse(name, string(data))
		if err != nil {
			return nil, err
		}
		s.templates[name] = t
	}
	return s, nil
}

func parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("prompts: parsing %s: %w", name, err)
	}
	return t, nil
}

// Render executes the named template.
func (s *Set) Render(name string, data any) (string, error) {
	t, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("prompts: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompts: rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

// Discovery renders the discovery instructions.
func (s *Set) Discovery(d DiscoveryData) (string, error) { return s.Render(Discovery, d) }

// Selection renders the selection instructions.
func (s *Set) Selection(d SelectionData) (string, error) { return s.Render(Selection, d) }

// Reader renders the reader instructions.
func (s *Set) Reader(d ReaderData) (string, error) { return s.Render(Reader, d) }

// Coder renders the coder instructions.
func (s *Set) Coder(d CoderData) (string, error) { return s.Render(Coder, d) }

// Parser renders the parser instructions.
func (s *Set) Parser(d ParserData) (string, error) { return s.Render(Parser, d) }

// Explorer renders the combined discovery and selection instructions.
func (s *Set) Explorer(d ExplorerData) (string, error) { return s.Render(Explorer, d) }
