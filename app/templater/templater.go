package templater

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/vibast-solutions/ms-go-mailtasks/app/mailerr"
)

var ErrOutsideRoot = errors.New("template path escapes the template directory")

type Loader interface {
	Load(path string) (string, error)
}

type Renderer interface {
	Render(source string, data map[string]any) (string, error)
}

// FileLoader reads templates from disk. Paths are resolved inside root and may not leave it.
type FileLoader struct {
	root string
}

// NewFileLoader constructs a loader rooted at root.
func NewFileLoader(root string) *FileLoader {
	if root == "" {
		root = "."
	}
	return &FileLoader{root: root}
}

// Load returns the template source stored at path.
func (l *FileLoader) Load(path string) (string, error) {
	if path == "" {
		return "", mailerr.Template("load template", fmt.Errorf("template path is required"))
	}
	if !filepath.IsLocal(path) {
		return "", mailerr.Template("load template", fmt.Errorf("%w: %s", ErrOutsideRoot, path))
	}

	root, err := os.OpenRoot(l.root)
	if err != nil {
		return "", mailerr.Template("open template dir", err)
	}
	defer root.Close()

	data, err := root.ReadFile(path)
	if err != nil {
		return "", mailerr.Template("load template", err)
	}
	return string(data), nil
}

// TextRenderer renders text/template sources. Referencing a key absent from the data is an error.
type TextRenderer struct{}

// NewTextRenderer constructs a strict renderer.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

// Render executes source against data.
func (r *TextRenderer) Render(source string, data map[string]any) (string, error) {
	tmpl, err := template.New("body").Option("missingkey=error").Parse(source)
	if err != nil {
		return "", mailerr.Template("parse template", err)
	}
	if data == nil {
		data = map[string]any{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", mailerr.Template("render template", err)
	}
	return buf.String(), nil
}
