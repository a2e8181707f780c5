// Package render turns message contexts into markdown using text/template.
// The report and append templates are embedded and may be overridden by
// files of the same name in a directory.
package render

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

	"gopkg.in/yaml.v3"
)

const (
	Report = "report.md.tmpl"
	Append = "append.md.tmpl"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// TemplateError wraps failures to parse or execute a template, so callers can
// tell them apart from I/O errors.
type TemplateError struct {
	Template string
	Err      error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// ReportContext holds the values available to the report template.
type ReportContext struct {
	FileID        string
	GroupTitle    string
	GroupID       string
	TNR           string
	Timestamp     string
	SenderDisplay string
	SenderName    string
	SenderNumber  string
	Lat, Lon      string
	Quote         string
	Message       string
	Attachments   []string
}

// AppendContext holds the values available to the append template.
type AppendContext struct {
	TNR           string
	Timestamp     string
	SenderDisplay string
	Lat, Lon      string
	Message       string
	Attachments   []string
}

// Renderer executes the report and append templates.
type Renderer struct {
	templates map[string]*template.Template
}

// New loads the embedded templates, replacing each with dir/<name> when that
// file exists. An empty dir uses the embedded templates only.
func New(dir string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}
	for _, name := range []string{Report, Append} {
		source, err := loadSource(dir, name)
		if err != nil {
			return nil, err
		}
		t, err := parse(name, source)
		if err != nil {
			return nil, &TemplateError{Template: name, Err: err}
		}
		r.templates[name] = t
	}
	return r, nil
}

func loadSource(dir, name string) (string, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read template override: %w", err)
		}
	}
	data, err := embedded.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("read embedded template: %w", err)
	}
	return string(data), nil
}

func parse(name, source string) (*template.Template, error) {
	return template.New(name).
		Option("missingkey=error").
		Funcs(template.FuncMap{"yaml": yamlScalar}).
		Parse(source)
}

// Render executes the named template. All output is produced before the
// caller touches any file.
func (r *Renderer) Render(name string, data any) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", &TemplateError{Template: name, Err: errors.New("unknown template")}
	}
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", &TemplateError{Template: name, Err: err}
	}
	return b.String(), nil
}

func (r *Renderer) RenderReport(ctx ReportContext) (string, error) {
	return r.Render(Report, ctx)
}

func (r *Renderer) RenderAppend(ctx AppendContext) (string, error) {
	return r.Render(Append, ctx)
}

// yamlScalar encodes a value as a single YAML flow scalar for frontmatter.
func yamlScalar(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	s := strings.TrimSuffix(string(out), "\n")
	if strings.Contains(s, "\n") {
		// Keep one line per key: YAML double-quoted escapes match Go's %q for text.
		return fmt.Sprintf("%q", fmt.Sprint(v)), nil
	}
	return s, nil
}
