// Package preview renders file contents to HTML: markdown through goldmark,
// everything else as highlighted source through chroma.
package preview

import (
	"bytes"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

const style = "monokai"

// Kinds of rendered output.
const (
	KindMarkdown = "markdown"
	KindSource   = "source"
)

// TOCItem represents a table of contents entry
type TOCItem struct {
	Level  int    `json:"level"`
	Title  string `json:"title"`
	Anchor string `json:"anchor"`
}

// Preview is a rendered file
type Preview struct {
	Kind     string    `json:"kind"`
	Language string    `json:"language,omitempty"`
	HTML     string    `json:"html"`
	TOC      []TOCItem `json:"toc,omitempty"`
	Title    string    `json:"title"`
	Hash     string    `json:"hash"`
}

type cached struct {
	hash    string
	preview *Preview
}

// Renderer renders previews and caches them by path and content hash.
type Renderer struct {
	md        goldmark.Markdown
	formatter *chromahtml.Formatter
	exts      map[string]bool

	mu    sync.Mutex
	cache map[string]cached
}

// NewRenderer creates a renderer. extensions lists the file extensions
// treated as markdown; nil means .md and .markdown.
func NewRenderer(extensions []string) *Renderer {
	if extensions == nil {
		extensions = []string{".md", ".markdown"}
	}
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	return &Renderer{
		md:        md,
		formatter: chromahtml.New(chromahtml.WithClasses(true), chromahtml.WithLineNumbers(true)),
		exts:      exts,
		cache:     make(map[string]cached),
	}
}

// IsMarkdown reports whether p is rendered as markdown.
func (r *Renderer) IsMarkdown(p string) bool {
	return r.exts[strings.ToLower(path.Ext(p))]
}

// Render renders source read from p. A cached preview is returned when hash
// matches the one it was rendered from.
func (r *Renderer) Render(p string, source []byte, hash string) (*Preview, error) {
	r.mu.Lock()
	c, ok := r.cache[p]
	r.mu.Unlock()
	if ok && hash != "" && c.hash == hash {
		return c.preview, nil
	}

	var (
		out *Preview
		err error
	)
	if r.IsMarkdown(p) {
		out, err = r.renderMarkdown(source)
	} else {
		out, err = r.renderSource(p, source)
	}
	if err != nil {
		return nil, err
	}
	out.Hash = hash

	if hash != "" {
		r.mu.Lock()
		r.cache[p] = cached{hash: hash, preview: out}
		r.mu.Unlock()
	}
	return out, nil
}

// Forget drops cached previews for p and, when p is a directory, for
// everything below it. An empty p drops everything.
func (r *Renderer) Forget(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == "" {
		r.cache = make(map[string]cached)
		return
	}
	for k := range r.cache {
		if k == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(k, p)) {
			delete(r.cache, k)
		}
	}
}

func (r *Renderer) renderMarkdown(source []byte) (*Preview, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(source, &buf); err != nil {
		return nil, err
	}

	toc := r.extractTOC(source)
	title := ""
	if len(toc) > 0 {
		title = toc[0].Title
	}

	return &Preview{
		Kind:  KindMarkdown,
		HTML:  buf.String(),
		TOC:   toc,
		Title: title,
	}, nil
}

func (r *Renderer) renderSource(p string, source []byte) (*Preview, error) {
	lexer := lexers.Match(path.Base(p))
	if lexer == nil {
		lexer = lexers.Analyse(string(source))
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, string(source))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, styles.Get(style), iterator); err != nil {
		return nil, err
	}

	return &Preview{
		Kind:     KindSource,
		Language: lexer.Config().Name,
		HTML:     buf.String(),
		Title:    path.Base(p),
	}, nil
}

// extractTOC walks the AST to extract headings
func (r *Renderer) extractTOC(source []byte) []TOCItem {
	doc := r.md.Parser().Parse(text.NewReader(source))

	var toc []TOCItem
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			title := extractText(heading, source)
			toc = append(toc, TOCItem{
				Level:  heading.Level,
				Title:  title,
				Anchor: generateAnchor(title),
			})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil
	}
	return toc
}

func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}

var (
	anchorStrip  = regexp.MustCompile(`[^a-z0-9\-\p{Han}\p{Hiragana}\p{Katakana}]`)
	anchorHyphen = regexp.MustCompile(`-+`)
)

// generateAnchor creates a URL-safe anchor from text
func generateAnchor(s string) string {
	anchor := strings.ToLower(s)
	anchor = strings.ReplaceAll(anchor, " ", "-")
	anchor = anchorStrip.ReplaceAllString(anchor, "")
	anchor = anchorHyphen.ReplaceAllString(anchor, "-")
	return strings.Trim(anchor, "-")
}

// CSS returns the stylesheet for the highlighting classes.
func (r *Renderer) CSS() (string, error) {
	var buf bytes.Buffer
	if err := r.formatter.WriteCSS(&buf, styles.Get(style)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
