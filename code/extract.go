package code

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultFenceTags are the fence labels recognized as code actions.
var DefaultFenceTags = []string{"python", "py", "tool_code", "tool_call"}

// Block is one fenced code block found in a response.
type Block struct {
	Tag   string
	Code  string // trimmed block body
	Start int    // byte offset of the opening fence
	End   int    // byte offset just past the closing fence
}

// Extraction is the result of scanning a response for code actions.
type Extraction struct {
	// Action is the trimmed bodies of all blocks joined by a blank line.
	Action string
	Blocks []Block

	source string
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Strip returns the response with every fenced block removed. Runs of three
// or more newlines left behind collapse to a single blank line.
func (e *Extraction) Strip() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	last := 0
	for _, blk := range e.Blocks {
		b.WriteString(e.source[last:blk.Start])
		last = blk.End
	}
	b.WriteString(e.source[last:])
	return strings.TrimSpace(blankRuns.ReplaceAllString(b.String(), "\n\n"))
}

// Extractor finds fenced blocks for a fixed tag set. It is safe for
// concurrent use.
type Extractor struct {
	re *regexp.Regexp
}

// NewExtractor compiles an extractor for tags (DefaultFenceTags when empty).
// Longer tags are tried first so "python" is never read as "py" + "thon".
func NewExtractor(tags ...string) *Extractor {
	if len(tags) == 0 {
		tags = DefaultFenceTags
	}
	sorted := append([]string(nil), tags...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, t := range sorted {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return &Extractor{re: regexp.MustCompile("(?s)```(" + strings.Join(quoted, "|") + ")(.*?)```")}
}

// Extract scans text and returns nil when it contains no code action.
func (x *Extractor) Extract(text string) *Extraction {
	matches := x.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	ext := &Extraction{source: text, Blocks: make([]Block, 0, len(matches))}
	bodies := make([]string, 0, len(matches))
	for _, m := range matches {
		body := strings.TrimSpace(text[m[4]:m[5]])
		ext.Blocks = append(ext.Blocks, Block{
			Tag:   text[m[2]:m[3]],
			Code:  body,
			Start: m[0],
			End:   m[1],
		})
		bodies = append(bodies, body)
	}
	ext.Action = strings.Join(bodies, "\n\n")
	return ext
}

var defaultExtractor = NewExtractor()

// Extract scans text with the default tag set.
func Extract(text string) *Extraction {
	return defaultExtractor.Extract(text)
}
