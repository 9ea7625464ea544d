package tool

import (
	"go/token"
	"strings"
	"unicode"

	"github.com/hupe1980/dexter/internal/util"
)

// Signature renders a tool as the Go declaration shown to the model.
func Signature(t Tool) string {
	var returns string
	if r, ok := t.(interface{ Returns() string }); ok {
		returns = r.Returns()
	}
	return RenderSignature(t.Name(), t.Description(), t.Params(), "any", returns)
}

// RenderSignature renders a capability as a documented Go function
// declaration:
//
//	// web_search searches the web.
//	//   query: search terms
//	func web_search(query string) any
func RenderSignature(name, description string, params []Param, result, returnsDoc string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSpace(description), "\n") {
		b.WriteString("// ")
		b.WriteString(strings.TrimSpace(line))
		b.WriteByte('\n')
	}
	for _, p := range params {
		if p.Description == "" && !p.Optional {
			continue
		}
		b.WriteString("//   ")
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(p.Description)
		if p.Optional {
			if p.Description != "" {
				b.WriteByte(' ')
			}
			b.WriteString("(optional, zero value means unset)")
		}
		b.WriteByte('\n')
	}
	if returnsDoc != "" {
		b.WriteString("//   returns: ")
		b.WriteString(returnsDoc)
		b.WriteByte('\n')
	}

	b.WriteString("func ")
	b.WriteString(name)
	b.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteByte(' ')
		b.WriteString(util.GoTypeName(p.Type))
	}
	b.WriteByte(')')
	if result != "" {
		b.WriteByte(' ')
		b.WriteString(result)
	}
	return b.String()
}

// ValidName reports whether name can be bound as a Go identifier.
func ValidName(name string) bool {
	return token.IsIdentifier(name) && name != "_"
}

// ExportName converts a snake_case capability name into the exported
// identifier used inside the interpreter's capabilities package.
func ExportName(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	out := b.String()
	if out == "" || !unicode.IsUpper([]rune(out)[0]) {
		out = "X" + out
	}
	return out
}
