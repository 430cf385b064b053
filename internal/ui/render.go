package ui

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	"github.com/nickcecere/fpstore/internal/shard"
)

// RecordMarkdown describes a stored record as a markdown document.
func RecordMarkdown(rec *shard.Record) string {
	var b strings.Builder
	places := rec.DecimalPlaces

	fmt.Fprintf(&b, "# Record %s\n\n", rec.ID)
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Upper | `%s` |\n", fingerprint.FormatString(rec.Fingerprint.Upper, places))
	fmt.Fprintf(&b, "| Lower | `%s` |\n", fingerprint.FormatString(rec.Fingerprint.Lower, places))
	fmt.Fprintf(&b, "| Symbols | %d |\n", len(rec.Symbols))
	fmt.Fprintf(&b, "| Created | %s |\n", rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "| Hash | `%s` |\n", rec.Hash)
	if rec.Path != "" {
		fmt.Fprintf(&b, "| File | `%s` |\n", rec.Path)
	}

	fence := "```"
	for strings.Contains(rec.Text, fence) {
		fence += "`"
	}
	fmt.Fprintf(&b, "\n## Text\n\n%s\n%s\n%s\n", fence, rec.Text, fence)

	if len(rec.Metadata) > 0 {
		b.WriteString("\n## Metadata\n\n")
		for _, k := range slices.Sorted(maps.Keys(rec.Metadata)) {
			fmt.Fprintf(&b, "- **%s**: %v\n", k, rec.Metadata[k])
		}
	}

	return b.String()
}

// RenderMarkdown renders markdown content using glamour.
func RenderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

// HighlightCode highlights content with the lexer matching filename and
// prefixes each line with its number. Unknown or failed highlighting falls
// back to plain numbered lines.
func HighlightCode(content, filename string, startLine int) string {
	lexer := lexers.Match(filename)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	// Use a terminal-friendly style
	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	var buf bytes.Buffer
	iterator, err := lexer.Tokenise(nil, content)
	if err == nil {
		err = formatter.Format(&buf, style, iterator)
	}
	if err != nil {
		return NumberLines(content, startLine)
	}

	// The lexer may add a trailing newline; fold anything after the last
	// source line back into it.
	n := strings.Count(content, "\n") + 1
	lines := strings.Split(buf.String(), "\n")
	if len(lines) < n {
		return NumberLines(content, startLine)
	}
	lines[n-1] += strings.Join(lines[n:], "")
	return NumberLines(strings.Join(lines[:n], "\n"), startLine)
}

// Language names the lexer chroma picks for filename, or "text".
func Language(filename string) string {
	lexer := lexers.Match(filename)
	if lexer == nil {
		return "text"
	}
	return strings.ToLower(lexer.Config().Name)
}

// NumberLines prefixes each line of content with its line number.
func NumberLines(content string, startLine int) string {
	var b strings.Builder
	for i, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&b, "    %s %s\n",
			LineNum.Render(fmt.Sprintf("%4d│", startLine+i)),
			strings.ReplaceAll(line, "\t", "    "),
		)
	}
	return b.String()
}
