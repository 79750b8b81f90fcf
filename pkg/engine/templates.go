package engine

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// ErrEmptyPath is returned when a path template renders to nothing
var ErrEmptyPath = errors.New("path template rendered an empty path")

// PathData is the data passed to input and output path templates
type PathData struct {
	// Input is the trajectory path as given
	Input string
	// Dir is the directory holding the input
	Dir string
	// Name is the input file name without extension
	Name string
	// Ext is the input extension including the dot
	Ext       string
	OutputDir string
	Date      string
}

// NewPathData derives template data for input.
func NewPathData(input, outputDir string, now time.Time) PathData {
	base := filepath.Base(input)
	ext := filepath.Ext(base)

	return PathData{
		Input:     input,
		Dir:       filepath.Dir(input),
		Name:      strings.TrimSuffix(base, ext),
		Ext:       ext,
		OutputDir: outputDir,
		Date:      now.UTC().Format("2006-01-02"),
	}
}

func parsePathTemplate(text string) (*template.Template, error) {
	tmpl, err := template.New("path").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid path template %q: %w", text, err)
	}

	return tmpl, nil
}

// RenderPath renders a path template against data.
func RenderPath(text string, data PathData) (string, error) {
	tmpl, err := parsePathTemplate(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render path template %q: %w", text, err)
	}

	path := strings.TrimSpace(buf.String())
	if path == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyPath, text)
	}

	return filepath.Clean(path), nil
}
