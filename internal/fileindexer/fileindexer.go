package fileindexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/quarrylabs/quarry-mcp/internal/embedder"
	"github.com/quarrylabs/quarry-mcp/internal/storage"
)

const (
	// maxEmbedChars bounds how much of a declaration body is embedded
	maxEmbedChars = 4000

	// windowLines is the chunk size for files without recognizable
	// declarations
	windowLines = 40
)

// DocumentWriter receives the semantic entries produced for a file
type DocumentWriter interface {
	UpsertDocument(ctx context.Context, doc *storage.Document, vector []float32, provider, model string) error
	DeleteByPath(ctx context.Context, scope, filePath string) error
}

// GraphWriter receives the structural entries produced for a file
type GraphWriter interface {
	UpsertNode(ctx context.Context, node *storage.Node) error
	UpsertEdge(ctx context.Context, scope, fromName, toName, kind string) error
	DeleteByPath(ctx context.Context, scope, filePath string) error
}

// Result summarizes indexing one file
type Result struct {
	Path    string
	Symbols int
	Errors  []string
	Success bool
}

// Indexer turns a single source file into semantic documents and
// structural graph entries. Symbol extraction is regex-based over line
// windows; it trades parser fidelity for language coverage.
type Indexer struct {
	vector DocumentWriter
	graph  GraphWriter
	emb    embedder.Embedder
	now    func() time.Time
}

// New creates a single-file indexer
func New(vector DocumentWriter, graph GraphWriter, emb embedder.Embedder) *Indexer {
	return &Indexer{
		vector: vector,
		graph:  graph,
		emb:    emb,
		now:    time.Now,
	}
}

// symbol is one extracted declaration
type symbol struct {
	Name     string
	Kind     string
	Line     int // 1-based
	Receiver string
}

type declarationRule struct {
	kind string
	re   *regexp.Regexp
}

// Declaration shapes across the languages the allow-list admits. Order
// matters: the method rule must win over the plain function rule.
var methodPattern = regexp.MustCompile(`^\s*func\s+\(\s*\w+\s+\*?(\w+)\s*\)\s+(\w+)\s*\(`)

var declarationRules = []declarationRule{
	{"function", regexp.MustCompile(`^\s*func\s+(\w+)\s*\(`)},
	{"struct", regexp.MustCompile(`^\s*type\s+(\w+)\s+struct\b`)},
	{"interface", regexp.MustCompile(`^\s*type\s+(\w+)\s+interface\b`)},
	{"type", regexp.MustCompile(`^\s*type\s+(\w+)\s`)},
	{"class", regexp.MustCompile(`^\s*(?:export\s+)?(?:abstract\s+)?class\s+(\w+)`)},
	{"interface", regexp.MustCompile(`^\s*(?:export\s+)?interface\s+(\w+)`)},
	{"function", regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)`)},
	{"function", regexp.MustCompile(`^\s*(?:export\s+)?const\s+(\w+)\s*=\s*(?:async\s*)?\(`)},
	{"function", regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)\s*\(`)},
}

var importPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*import\s+(?:\w+\s+)?"([^"]+)"`),
	regexp.MustCompile(`\bfrom\s+['"]([^'"]+)['"]`),
	regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`),
	regexp.MustCompile(`^\s*import\s+([\w.]+)\s*$`),
	regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`),
}

// IndexFile extracts declarations from path and writes them to both
// indexes under scope. Per-symbol failures are collected in the result;
// only an unreadable file is a hard error.
func (ix *Indexer) IndexFile(ctx context.Context, path, scope string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	normalized := storage.NormalizePath(path)
	lines := strings.Split(string(content), "\n")

	result := &Result{Path: normalized}

	symbols := extractSymbols(lines)
	if len(symbols) == 0 {
		symbols = windowSymbols(normalized, lines)
	}
	imports := extractImports(lines)

	// Stale entries for this file are replaced wholesale so renames and
	// deletions inside the file do not leave orphans
	if err := ix.vector.DeleteByPath(ctx, scope, normalized); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: clearing documents: %v", normalized, err))
	}
	if err := ix.graph.DeleteByPath(ctx, scope, normalized); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: clearing nodes: %v", normalized, err))
	}

	indexedAt := ix.now().UTC()

	for i, sym := range symbols {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		body := symbolBody(lines, symbols, i)

		if err := ix.writeSymbol(ctx, scope, normalized, sym, body, indexedAt); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s:%d %s: %v", normalized, sym.Line, sym.Name, err))
			continue
		}
		result.Symbols++

		ix.writePatterns(ctx, scope, normalized, sym, body, indexedAt, result)

		if sym.Receiver != "" {
			if err := ix.graph.UpsertEdge(ctx, scope, sym.Name, sym.Receiver, storage.EdgeDependsOn); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: edge %s->%s: %v", normalized, sym.Name, sym.Receiver, err))
			}
		}
		for _, dep := range imports {
			if err := ix.graph.UpsertEdge(ctx, scope, sym.Name, dep, storage.EdgeDependsOn); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: edge %s->%s: %v", normalized, sym.Name, dep, err))
			}
		}
	}

	// Edges between symbols declared in the same file, so impact queries
	// can walk local references
	ix.linkLocalReferences(ctx, scope, lines, symbols, result)

	result.Success = len(result.Errors) == 0
	return result, nil
}

// writeSymbol embeds one declaration body and stores it in both indexes
func (ix *Indexer) writeSymbol(ctx context.Context, scope, filePath string, sym symbol, body string, indexedAt time.Time) error {
	embedText := body
	if len(embedText) > maxEmbedChars {
		embedText = embedText[:maxEmbedChars]
	}

	emb, err := ix.emb.EmbedText(ctx, sym.Name+"\n"+embedText)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	doc := &storage.Document{
		Scope:         scope,
		FilePath:      filePath,
		Name:          sym.Name,
		Kind:          sym.Kind,
		Content:       body,
		Line:          sym.Line,
		LastIndexedAt: indexedAt,
	}
	if err := ix.vector.UpsertDocument(ctx, doc, emb.Vector, emb.Provider, emb.Model); err != nil {
		return fmt.Errorf("storing document failed: %w", err)
	}

	node := &storage.Node{
		Scope:    scope,
		Name:     sym.Name,
		Kind:     sym.Kind,
		FilePath: filePath,
		Line:     sym.Line,
		Snippet:  snippet(body),
	}
	if err := ix.graph.UpsertNode(ctx, node); err != nil {
		return fmt.Errorf("storing node failed: %w", err)
	}
	return nil
}

// linkLocalReferences adds depends-on edges between symbols of the same
// file when one symbol's body mentions another's name
func (ix *Indexer) linkLocalReferences(ctx context.Context, scope string, lines []string, symbols []symbol, result *Result) {
	names := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		names[sym.Name] = true
	}

	for i, sym := range symbols {
		body := symbolBody(lines, symbols, i)
		for other := range names {
			if other == sym.Name || !containsWord(body, other) {
				continue
			}
			if err := ix.graph.UpsertEdge(ctx, scope, sym.Name, other, storage.EdgeDependsOn); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("edge %s->%s: %v", sym.Name, other, err))
			}
		}
	}
}

// extractSymbols matches declaration shapes line by line
func extractSymbols(lines []string) []symbol {
	var symbols []symbol
	seen := make(map[string]bool)

	for i, line := range lines {
		if m := methodPattern.FindStringSubmatch(line); m != nil {
			key := m[2] + ":" + m[1]
			if !seen[key] {
				seen[key] = true
				symbols = append(symbols, symbol{Name: m[2], Kind: "method", Line: i + 1, Receiver: m[1]})
			}
			continue
		}

		for _, rule := range declarationRules {
			m := rule.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			key := m[1] + ":" + rule.kind
			if !seen[key] {
				seen[key] = true
				symbols = append(symbols, symbol{Name: m[1], Kind: rule.kind, Line: i + 1})
			}
			break
		}
	}
	return symbols
}

// windowSymbols falls back to fixed line windows when nothing declarative
// was found, so prose-heavy or config files still get semantic entries
func windowSymbols(filePath string, lines []string) []symbol {
	base := filepath.Base(filePath)
	var symbols []symbol
	for start := 0; start < len(lines); start += windowLines {
		if strings.TrimSpace(strings.Join(lines[start:min(start+windowLines, len(lines))], "")) == "" {
			continue
		}
		symbols = append(symbols, symbol{
			Name: fmt.Sprintf("%s#%d", base, len(symbols)+1),
			Kind: "file",
			Line: start + 1,
		})
	}
	return symbols
}

// symbolBody returns the text from a symbol's declaration to the next
// declaration, capped at windowLines
func symbolBody(lines []string, symbols []symbol, i int) string {
	start := symbols[i].Line - 1
	if start < 0 || start >= len(lines) {
		return ""
	}
	end := len(lines)
	if i+1 < len(symbols) && symbols[i+1].Line-1 > start {
		end = symbols[i+1].Line - 1
	}
	if end > start+windowLines {
		end = start + windowLines
	}
	return strings.Join(lines[start:end], "\n")
}

// extractImports returns the base names of imported modules
func extractImports(lines []string) []string {
	seen := make(map[string]bool)
	var imports []string

	inBlock := false
	blockLine := regexp.MustCompile(`^\s*(?:\w+\s+)?"([^"]+)"`)

	add := func(raw string) {
		base := importBase(raw)
		if base == "" || seen[base] {
			return
		}
		seen[base] = true
		imports = append(imports, base)
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "import (" {
			inBlock = true
			continue
		}
		if inBlock {
			if trimmed == ")" {
				inBlock = false
				continue
			}
			if m := blockLine.FindStringSubmatch(line); m != nil {
				add(m[1])
			}
			continue
		}
		for _, pat := range importPatterns {
			if m := pat.FindStringSubmatch(line); m != nil {
				add(m[1])
				break
			}
		}
	}
	return imports
}

// importBase reduces an import path to the name code refers to it by
func importBase(raw string) string {
	raw = strings.TrimPrefix(raw, "./")
	if i := strings.LastIndexAny(raw, "/."); i >= 0 && i+1 < len(raw) {
		raw = raw[i+1:]
	}
	return raw
}

func snippet(body string) string {
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		return body[:i]
	}
	return body
}

// containsWord reports whether name appears in text on identifier
// boundaries
func containsWord(text, name string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], name)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isIdentChar(text[i-1])
		afterIdx := i + len(name)
		after := afterIdx >= len(text) || !isIdentChar(text[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(name)
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
