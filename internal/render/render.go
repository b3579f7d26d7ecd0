// ABOUTME: Renders message content markup as HTML or ANSI-styled terminal text
// ABOUTME: Parses with goldmark; terminal output walks the AST and styles with fatih/color

package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// Line breaks inside a paragraph are kept, as chat replies rely on them.
var md = goldmark.New(
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

var (
	boldStyle    = color.New(color.Bold)
	italicStyle  = color.New(color.Italic)
	codeStyle    = color.New(color.FgCyan)
	linkStyle    = color.New(color.FgBlue, color.Underline)
	headingStyle = color.New(color.Bold, color.FgYellow)
	quoteStyle   = color.New(color.Faint)
)

// HTML converts content to an HTML fragment. Raw HTML in content is omitted.
func HTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("converting markup: %w", err)
	}
	return buf.String(), nil
}

// Terminal converts content to text for a terminal, styling emphasis, code
// and links with ANSI escapes. Styling is dropped when color.NoColor is set.
func Terminal(content string) string {
	src := []byte(content)
	doc := md.Parser().Parse(text.NewReader(src))

	w := &termWriter{src: src}
	w.blocks(doc, "", true)
	return strings.TrimRight(w.out.String(), "\n")
}

type termWriter struct {
	src []byte
	out strings.Builder
}

// blocks renders the block children of parent. loose separates them with a
// blank line.
func (w *termWriter) blocks(parent ast.Node, indent string, loose bool) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if loose && n != parent.FirstChild() {
			w.out.WriteString(strings.TrimRight(indent, " ") + "\n")
		}
		w.block(n, indent)
	}
}

func (w *termWriter) block(n ast.Node, indent string) {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		w.lines(indent, w.inline(n))

	case *ast.Heading:
		w.lines(indent, headingStyle.Sprint(w.inline(n)))

	case *ast.FencedCodeBlock:
		w.lines(indent+"  ", codeStyle.Sprint(w.raw(n.Lines())))

	case *ast.CodeBlock:
		w.lines(indent+"  ", codeStyle.Sprint(w.raw(n.Lines())))

	case *ast.HTMLBlock:
		w.lines(indent, w.raw(n.Lines()))

	case *ast.Blockquote:
		sub := &termWriter{src: w.src}
		sub.blocks(n, "", true)
		w.lines(indent+"│ ", quoteStyle.Sprint(strings.TrimRight(sub.out.String(), "\n")))

	case *ast.ThematicBreak:
		w.lines(indent, "────────")

	case *ast.List:
		w.list(n, indent)

	default:
		w.blocks(n, indent, false)
	}
}

func (w *termWriter) list(list *ast.List, indent string) {
	num := list.Start
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "- "
		if list.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}

		sub := &termWriter{src: w.src}
		sub.blocks(item, "", !list.IsTight)
		body := strings.Split(strings.TrimRight(sub.out.String(), "\n"), "\n")

		pad := strings.Repeat(" ", len(marker))
		for i, line := range body {
			prefix := indent + pad
			if i == 0 {
				prefix = indent + marker
			}
			w.out.WriteString(prefix + line + "\n")
		}
	}
}

func (w *termWriter) inline(parent ast.Node) string {
	var b strings.Builder
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch n := n.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(w.src))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte('\n')
			}

		case *ast.String:
			b.Write(n.Value)

		case *ast.CodeSpan:
			b.WriteString(codeStyle.Sprint(w.inline(n)))

		case *ast.Emphasis:
			if n.Level >= 2 {
				b.WriteString(boldStyle.Sprint(w.inline(n)))
			} else {
				b.WriteString(italicStyle.Sprint(w.inline(n)))
			}

		case *ast.Link:
			label := w.inline(n)
			dest := string(n.Destination)
			if label == "" || label == dest {
				b.WriteString(linkStyle.Sprint(dest))
			} else {
				b.WriteString(label + " (" + linkStyle.Sprint(dest) + ")")
			}

		case *ast.AutoLink:
			b.WriteString(linkStyle.Sprint(string(n.URL(w.src))))

		case *ast.Image:
			b.WriteString("[image: " + w.inline(n) + "]")

		case *ast.RawHTML:
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				b.Write(seg.Value(w.src))
			}

		default:
			b.WriteString(w.inline(n))
		}
	}
	return b.String()
}

func (w *termWriter) raw(lines *text.Segments) string {
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(w.src))
	}
	return strings.TrimRight(b.String(), "\n")
}

// lines writes s with every line prefixed by indent.
func (w *termWriter) lines(indent, s string) {
	for _, line := range strings.Split(s, "\n") {
		w.out.WriteString(indent + line + "\n")
	}
}
