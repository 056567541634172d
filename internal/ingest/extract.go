package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Extractor turns one corpus file into plain text
type Extractor interface {
	// Name returns the extractor name
	Name() string

	// CanHandle reports whether this extractor reads the given file
	CanHandle(path string) bool

	// Extract returns the text of the file
	Extract(ctx context.Context, path string) (string, error)
}

// CommandRunner runs an external program and returns its stdout
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run executes name with args, including stderr in the error on failure
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Registry picks the extractor for a file by its extension
type Registry struct {
	extractors []Extractor
}

// NewRegistry registers the built-in extractors. PDFs are read with runner.
func NewRegistry(runner CommandRunner) *Registry {
	if runner == nil {
		runner = ExecRunner{}
	}
	r := &Registry{}
	r.Register(TextExtractor{})
	r.Register(HTMLExtractor{})
	r.Register(&PDFExtractor{Runner: runner})
	return r
}

// Register adds an extractor. Later registrations do not override earlier ones.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Find returns the extractor for path, or nil when the file type is unsupported
func (r *Registry) Find(path string) Extractor {
	for _, e := range r.extractors {
		if e.CanHandle(path) {
			return e
		}
	}
	return nil
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// TextExtractor reads plain text and Markdown as is
type TextExtractor struct{}

func (TextExtractor) Name() string { return "text" }

func (TextExtractor) CanHandle(path string) bool { return hasExt(path, ".txt", ".md") }

func (TextExtractor) Extract(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HTMLExtractor keeps the visible text of a page, one block per line
type HTMLExtractor struct{}

func (HTMLExtractor) Name() string { return "html" }

func (HTMLExtractor) CanHandle(path string) bool { return hasExt(path, ".html", ".htm") }

func (HTMLExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	doc, err := html.Parse(f)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return visibleText(doc), nil
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "pre": true, "table": true,
	"title": true,
}

// visibleText walks the tree skipping scripts and styles. Block elements end
// a line so article headings stay at the start of one.
func visibleText(n *html.Node) string {
	var buf strings.Builder
	atLineStart := true

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				if !atLineStart {
					buf.WriteString(" ")
				}
				buf.WriteString(text)
				atLineStart = false
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] && !atLineStart {
			buf.WriteString("\n")
			atLineStart = true
		}
	}

	walk(n)
	return strings.TrimSpace(buf.String())
}

// PDFExtractor shells out to pdftotext, keeping the page layout
type PDFExtractor struct {
	Runner CommandRunner
}

func (*PDFExtractor) Name() string { return "pdf" }

func (*PDFExtractor) CanHandle(path string) bool { return hasExt(path, ".pdf") }

func (p *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	out, err := p.Runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
