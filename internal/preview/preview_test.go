package preview

import (
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	r := NewRenderer(nil)
	source := []byte("# Hello World\n\nThis is a *test*.")

	result, err := r.Render("/docs/a.md", source, "h1")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if result.Kind != KindMarkdown {
		t.Errorf("expected markdown kind, got %s", result.Kind)
	}
	if !strings.Contains(result.HTML, "<h1") || !strings.Contains(result.HTML, "Hello World</h1>") {
		t.Error("expected H1 tag containing 'Hello World' in HTML")
	}
	if !strings.Contains(result.HTML, "<em>test</em>") {
		t.Error("expected italicized test in HTML")
	}
	if result.Title != "Hello World" {
		t.Errorf("expected title Hello World, got %s", result.Title)
	}
	if result.Hash != "h1" {
		t.Errorf("expected hash h1, got %s", result.Hash)
	}
}

func TestRenderMarkdownEscapesRawHTML(t *testing.T) {
	r := NewRenderer(nil)
	result, err := r.Render("/a.md", []byte("<script>alert(1)</script>"), "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(result.HTML, "<script>") {
		t.Error("raw HTML should not be rendered")
	}
}

func TestRenderSource(t *testing.T) {
	r := NewRenderer(nil)
	result, err := r.Render("/src/main.go", []byte("package main\n\nfunc main() {}\n"), "")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if result.Kind != KindSource {
		t.Errorf("expected source kind, got %s", result.Kind)
	}
	if result.Language != "Go" {
		t.Errorf("expected Go lexer, got %s", result.Language)
	}
	if !strings.Contains(result.HTML, "class=\"chroma\"") {
		t.Error("expected chroma markup")
	}
	if result.Title != "main.go" {
		t.Errorf("expected title main.go, got %s", result.Title)
	}
}

func TestRenderCache(t *testing.T) {
	r := NewRenderer(nil)

	first, err := r.Render("/docs/a.md", []byte("# One"), "v1")
	if err != nil {
		t.Fatal(err)
	}
	same, _ := r.Render("/docs/a.md", []byte("# Ignored"), "v1")
	if same != first {
		t.Error("expected cached preview for unchanged hash")
	}

	changed, _ := r.Render("/docs/a.md", []byte("# Two"), "v2")
	if changed.Title != "Two" {
		t.Errorf("expected re-render for new hash, got %s", changed.Title)
	}

	r.Forget("/docs/")
	again, _ := r.Render("/docs/a.md", []byte("# Three"), "v2")
	if again.Title != "Three" {
		t.Errorf("expected re-render after Forget, got %s", again.Title)
	}
}

func TestIsMarkdown(t *testing.T) {
	r := NewRenderer([]string{".md", ".MDX"})
	for p, want := range map[string]bool{
		"/a.md":     true,
		"/a.MD":     true,
		"/b.mdx":    true,
		"/c.txt":    false,
		"/markdown": false,
	} {
		if got := r.IsMarkdown(p); got != want {
			t.Errorf("IsMarkdown(%s) = %v, want %v", p, got, want)
		}
	}
}

func TestExtractTOC(t *testing.T) {
	r := NewRenderer(nil)
	source := []byte("# Head 1\n## Head 2\n### Head 3")

	toc := r.extractTOC(source)
	if len(toc) != 3 {
		t.Fatalf("expected 3 TOC items, got %d", len(toc))
	}

	if toc[0].Level != 1 || toc[0].Title != "Head 1" {
		t.Errorf("TOC item 0 mismatch: %+v", toc[0])
	}
	if toc[1].Level != 2 || toc[1].Title != "Head 2" {
		t.Errorf("TOC item 1 mismatch: %+v", toc[1])
	}
	if toc[2].Level != 3 || toc[2].Title != "Head 3" {
		t.Errorf("TOC item 2 mismatch: %+v", toc[2])
	}
}

func TestGenerateAnchor(t *testing.T) {
	tests := []struct {
		input  string
		output string
	}{
		{"Hello World", "hello-world"},
		{"Test! @# Content", "test-content"},
		{"Multiple   Spaces", "multiple-spaces"},
		{"-Start-and-End-", "start-and-end"},
		{"中文标题", "中文标题"},
	}

	for _, tt := range tests {
		got := generateAnchor(tt.input)
		if got != tt.output {
			t.Errorf("generateAnchor(%q) = %q, want %q", tt.input, got, tt.output)
		}
	}
}

func TestCSS(t *testing.T) {
	css, err := NewRenderer(nil).CSS()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(css, ".chroma") {
		t.Error("expected chroma class rules")
	}
}
