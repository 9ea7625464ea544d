package util

import (
	"bytes"
	"strings"
	"text/template"
)

// RenderTemplate renders a system prompt template against data. Text without
// template markers is returned unchanged. Output is not HTML-escaped, and a
// key missing from data is an error.
func RenderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
