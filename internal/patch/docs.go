package patch

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
)

// FeatureDoc is the data rendered into a feature's markdown file.
type FeatureDoc struct {
	Module     string
	Package    string
	Request    string
	EntryPoint string
}

// Title renders the module name as words, "monitoring_tools" -> "Monitoring Tools".
func (d FeatureDoc) Title() string {
	words := strings.Split(d.Module, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Overview is the request text, or a placeholder when it is empty.
func (d FeatureDoc) Overview() string {
	if s := strings.TrimSpace(d.Request); s != "" {
		return s
	}
	return "No description provided."
}

var featureDocTemplate = template.Must(template.New("feature").Parse(`# {{.Title}}

## Overview

{{.Overview}}

## Usage

` + "```python" + `
{{- if .EntryPoint}}
from {{.Package}}.{{.Module}} import {{.EntryPoint}}

{{.EntryPoint}}()
{{- else}}
from {{.Package}}.{{.Module}} import *
{{- end}}
` + "```" + `
`))

// RenderFeatureDoc renders the markdown for d.
func RenderFeatureDoc(d FeatureDoc) ([]byte, error) {
	var buf bytes.Buffer
	if err := featureDocTemplate.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("failed to render feature doc: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFeatureDoc writes <dir>/<module>.md and returns its path.
func WriteFeatureDoc(dir string, d FeatureDoc) (string, error) {
	data, err := RenderFeatureDoc(d)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, d.Module+".md")
	if err := WriteFileAtomic(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write feature doc: %w", err)
	}
	return path, nil
}
