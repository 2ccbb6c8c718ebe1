package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/spf13/afero"
)

// ParserPool hands out tree-sitter parsers per language so concurrent file
// scans never share a parser instance.
type ParserPool struct {
	cPool   sync.Pool
	cppPool sync.Pool
}

func NewParserPool() *ParserPool {
	return &ParserPool{
		cPool: sync.Pool{
			New: func() interface{} {
				parser := sitter.NewParser()
				parser.SetLanguage(c.GetLanguage())
				return parser
			},
		},
		cppPool: sync.Pool{
			New: func() interface{} {
				parser := sitter.NewParser()
				parser.SetLanguage(cpp.GetLanguage())
				return parser
			},
		},
	}
}

var globalParserPool = NewParserPool()

// GetParser borrows a parser for the given language ("c" or "cpp").
func GetParser(language string) *sitter.Parser {
	if language == "cpp" {
		return globalParserPool.cppPool.Get().(*sitter.Parser)
	}
	return globalParserPool.cPool.Get().(*sitter.Parser)
}

// PutParser returns a parser to the pool.
func PutParser(language string, parser *sitter.Parser) {
	parser.Reset()
	if language == "cpp" {
		globalParserPool.cppPool.Put(parser)
	} else {
		globalParserPool.cPool.Put(parser)
	}
}

// queryCache avoids recompiling identical tree-sitter queries.
var (
	queryCache   sync.Map // "lang:pattern" -> *sitter.Query
	queryBuildMu sync.Mutex
)

// GetQueryFromCache compiles a query once per language and caches it.
func GetQueryFromCache(queryPattern string, language string) (*sitter.Query, error) {
	key := language + ":" + queryPattern
	if cached, ok := queryCache.Load(key); ok {
		return cached.(*sitter.Query), nil
	}

	queryBuildMu.Lock()
	defer queryBuildMu.Unlock()
	if cached, ok := queryCache.Load(key); ok {
		return cached.(*sitter.Query), nil
	}

	lang := c.GetLanguage()
	if language == "cpp" {
		lang = cpp.GetLanguage()
	}
	query, err := sitter.NewQuery([]byte(queryPattern), lang)
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}
	queryCache.Store(key, query)
	return query, nil
}

// ParsedUnit is one parsed source file.
type ParsedUnit struct {
	FilePath string
	Root     *sitter.Node
	Source   []byte
	Tree     *sitter.Tree
	Language string
}

// Copy clones the tree so a second consumer can walk it concurrently.
func (u *ParsedUnit) Copy() *ParsedUnit {
	treeCopy := u.Tree.Copy()
	return &ParsedUnit{
		FilePath: u.FilePath,
		Root:     treeCopy.RootNode(),
		Source:   u.Source,
		Tree:     treeCopy,
		Language: u.Language,
	}
}

// QueryMatch is one match of a tree-sitter query.
type QueryMatch struct {
	Node     *sitter.Node
	Captures map[string]*sitter.Node
	Pattern  string
}

// AnalysisContext bundles a parsed unit with its query helpers. Checks read
// the program representation exclusively through it.
type AnalysisContext struct {
	Unit *ParsedUnit
}

func NewAnalysisContext(unit *ParsedUnit) *AnalysisContext {
	return &AnalysisContext{Unit: unit}
}

// LanguageForFile picks the grammar by extension. Headers default to C++
// since the C++ grammar is a superset for our purposes.
func LanguageForFile(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".c":
		return "c", nil
	case ".cpp", ".cxx", ".cc", ".c++", ".hpp", ".hxx", ".hh", ".h++", ".h":
		return "cpp", nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// ParseFile reads and parses one file through the given filesystem.
func ParseFile(ctx context.Context, fs afero.Fs, filePath string) (*ParsedUnit, error) {
	source, err := afero.ReadFile(fs, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	return ParseBytes(ctx, filePath, source)
}

// ParseBytes parses in-memory source; the language is derived from the name.
func ParseBytes(ctx context.Context, filePath string, source []byte) (*ParsedUnit, error) {
	language, err := LanguageForFile(filePath)
	if err != nil {
		return nil, err
	}

	// the grammar cannot represent GNU statement expressions; rewrite first
	source = normalizeStmtExprs(source)

	parser := GetParser(language)
	defer PutParser(language, parser)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", filePath, err)
	}

	return &ParsedUnit{
		FilePath: filePath,
		Root:     tree.RootNode(),
		Source:   source,
		Tree:     tree,
		Language: language,
	}, nil
}

// QueryNodes runs a query and returns every captured node.
func (ctx *AnalysisContext) QueryNodes(queryPattern string) ([]*sitter.Node, error) {
	query, err := GetQueryFromCache(queryPattern, ctx.Unit.Language)
	if err != nil {
		return nil, err
	}

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, ctx.Unit.Root)

	var nodes []*sitter.Node
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		for _, capture := range match.Captures {
			nodes = append(nodes, capture.Node)
		}
	}
	return nodes, nil
}

// Query runs a query and returns matches with named captures.
func (ctx *AnalysisContext) Query(queryPattern string) ([]QueryMatch, error) {
	query, err := GetQueryFromCache(queryPattern, ctx.Unit.Language)
	if err != nil {
		return nil, err
	}

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, ctx.Unit.Root)

	var matches []QueryMatch
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		if len(match.Captures) == 0 {
			continue
		}
		qm := QueryMatch{
			Node:     match.Captures[0].Node,
			Captures: make(map[string]*sitter.Node),
			Pattern:  queryPattern,
		}
		for _, capture := range match.Captures {
			captureName := query.CaptureNameForId(capture.Index)
			qm.Captures[captureName] = capture.Node
		}
		matches = append(matches, qm)
	}
	return matches, nil
}

// GetSourceText returns the source slice covered by a node.
func (ctx *AnalysisContext) GetSourceText(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if end > uint32(len(ctx.Unit.Source)) {
		end = uint32(len(ctx.Unit.Source))
	}
	if start > end || start >= uint32(len(ctx.Unit.Source)) {
		return ""
	}
	return string(ctx.Unit.Source[start:end])
}

// Expr wraps a node of this unit as an expression.
func (ctx *AnalysisContext) Expr(node *sitter.Node) Expr {
	return WrapExpr(node, ctx.Unit.Source)
}
