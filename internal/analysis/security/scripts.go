// internal/analysis/security/scripts.go
package security

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
)

const (
	CheckInlineScripts = "inline-scripts"
	CheckEval          = "eval-usage"
	CheckDOMSinks      = "unsafe-dom-sinks"
	CheckXSSPrevention = "xss-prevention"
)

// sinkKind separates code execution sinks from HTML injection sinks.
type sinkKind int

const (
	sinkEval sinkKind = iota
	sinkDOM
)

// sinkHit is one dangerous call or assignment found in a script.
type sinkHit struct {
	kind sinkKind
	name string
	line int // 1-based; 0 when found by substring scan.
}

var htmlProperties = map[string]bool{"innerHTML": true, "outerHTML": true}

// globalObjects may prefix eval without changing its meaning.
var globalObjects = map[string]bool{"window": true, "self": true, "globalThis": true}

var scriptTypes = map[string]bool{
	"":                       true,
	"text/javascript":        true,
	"application/javascript": true,
	"text/ecmascript":        true,
	"module":                 true,
}

// fallbackPatterns approximate the AST rules when a script cannot be parsed.
var fallbackPatterns = []struct {
	kind sinkKind
	name string
	re   *regexp.Regexp
}{
	{sinkEval, "eval", regexp.MustCompile(`\beval\s*\(`)},
	{sinkDOM, "innerHTML assignment", regexp.MustCompile(`\.innerHTML\s*\+?=[^=]`)},
	{sinkDOM, "outerHTML assignment", regexp.MustCompile(`\.outerHTML\s*\+?=[^=]`)},
	{sinkDOM, "insertAdjacentHTML", regexp.MustCompile(`\.insertAdjacentHTML\s*\(`)},
	{sinkDOM, "document.write", regexp.MustCompile(`document\.write(ln)?\s*\(`)},
}

// inlineScripts returns executable script elements without a src.
func inlineScripts(doc *goquery.Document) *goquery.Selection {
	return doc.Find("script:not([src])").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return scriptTypes[strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))]
	})
}

// checkInlineScripts reports the presence of inline scripts.
func checkInlineScripts(doc *goquery.Document) []schemas.Finding {
	scripts := inlineScripts(doc)
	if scripts.Length() == 0 {
		return []schemas.Finding{core.Passed(CheckInlineScripts, "No inline scripts found")}
	}
	var nodes []schemas.Node
	scripts.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, core.NodeFor(s, ""))
	})
	return []schemas.Finding{
		core.Warning(CheckInlineScripts, schemas.SeverityMedium, fmt.Sprintf("%d inline script(s) found", len(nodes))).
			WithDetails("Inline scripts may bypass CSP and increase XSS risk", "Move inline scripts to external files or use CSP nonces").
			WithNodes(nodes...),
	}
}

// checkScriptSinks parses every inline script and reports eval and unsafe
// DOM sinks.
func checkScriptSinks(ctx context.Context, logger *zap.Logger, doc *goquery.Document) ([]schemas.Finding, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	var evalNodes, domNodes []schemas.Node
	var domNames []string
	seen := make(map[string]bool)

	scripts := inlineScripts(doc)
	for i := range scripts.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := scripts.Eq(i)
		hits, parsed := scanScript(ctx, parser, s.Text())
		if !parsed {
			logger.Debug("Script did not parse cleanly, used pattern scan.", zap.String("script", core.SelectorFor(s)))
		}
		for _, hit := range hits {
			node := core.NodeFor(s, hit.String())
			if hit.kind == sinkEval {
				evalNodes = append(evalNodes, node)
				continue
			}
			domNodes = append(domNodes, node)
			if !seen[hit.name] {
				seen[hit.name] = true
				domNames = append(domNames, hit.name)
			}
		}
	}

	var out []schemas.Finding
	if len(evalNodes) > 0 {
		out = append(out, core.Violation(CheckEval, schemas.SeverityHigh, "eval() usage detected").
			WithDetails("eval() executes arbitrary strings as code and is a common XSS vector", "Remove eval() calls and use safer alternatives").
			WithNodes(evalNodes...))
	}
	if len(domNodes) > 0 {
		out = append(out, core.Warning(CheckDOMSinks, schemas.SeverityMedium, "Unsafe DOM methods detected: "+strings.Join(domNames, ", ")).
			WithDetails("These sinks can introduce XSS when given user input", "Use textContent instead of innerHTML, or sanitize input").
			WithNodes(domNodes...))
	} else {
		out = append(out, core.Passed(CheckXSSPrevention, "No unsafe DOM sinks detected"))
	}
	return out, nil
}

func (h sinkHit) String() string {
	if h.line == 0 {
		return h.name
	}
	return fmt.Sprintf("line %d: %s", h.line, h.name)
}

// scanScript finds sinks in one script. The second return is false when the
// source had syntax errors and the pattern scan was used instead.
func scanScript(ctx context.Context, parser *sitter.Parser, source string) ([]sinkHit, bool) {
	if strings.TrimSpace(source) == "" {
		return nil, true
	}
	src := []byte(source)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return scanPatterns(source), false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return scanPatterns(source), false
	}
	w := &sinkWalker{source: src}
	w.walk(root)
	return w.hits, true
}

func scanPatterns(source string) []sinkHit {
	var hits []sinkHit
	for _, p := range fallbackPatterns {
		if p.re.MatchString(source) {
			hits = append(hits, sinkHit{kind: p.kind, name: p.name})
		}
	}
	return hits
}

// -- AST Walker --

type sinkWalker struct {
	source []byte
	hits   []sinkHit
}

func (w *sinkWalker) walk(node *sitter.Node) {
	if node == nil || node.IsNull() {
		return
	}

	switch node.Type() {
	case "call_expression":
		w.checkCall(node)
	case "new_expression":
		if c := node.ChildByFieldName("constructor"); c != nil && c.Type() == "identifier" && c.Content(w.source) == "Function" {
			w.add(sinkEval, "Function constructor", node)
		}
	case "assignment_expression", "augmented_assignment_expression":
		left := node.ChildByFieldName("left")
		if prop := memberProperty(left, w.source); htmlProperties[prop] {
			w.add(sinkDOM, prop+" assignment", node)
		}
	}

	cursor := sitter.NewTreeCursor(node)
	defer cursor.Close()
	if ok := cursor.GoToFirstChild(); ok {
		for {
			w.walk(cursor.CurrentNode())
			if ok := cursor.GoToNextSibling(); !ok {
				break
			}
		}
	}
}

func (w *sinkWalker) checkCall(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}
	if fn.Type() == "identifier" {
		if fn.Content(w.source) == "eval" {
			w.add(sinkEval, "eval", node)
		}
		return
	}

	prop := memberProperty(fn, w.source)
	object := memberObject(fn, w.source)
	switch {
	case prop == "eval" && globalObjects[object]:
		w.add(sinkEval, "eval", node)
	case prop == "insertAdjacentHTML":
		w.add(sinkDOM, "insertAdjacentHTML", node)
	case (prop == "write" || prop == "writeln") && object == "document":
		w.add(sinkDOM, "document.write", node)
	}
}

func (w *sinkWalker) add(kind sinkKind, name string, node *sitter.Node) {
	w.hits = append(w.hits, sinkHit{kind: kind, name: name, line: int(node.StartPoint().Row) + 1})
}

// memberProperty returns the accessed property of obj.prop or obj['prop'],
// or "" for anything else.
func memberProperty(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	switch node.Type() {
	case "member_expression":
		if p := node.ChildByFieldName("property"); p != nil {
			return p.Content(source)
		}
	case "subscript_expression":
		if idx := node.ChildByFieldName("index"); idx != nil && idx.Type() == "string" {
			return strings.Trim(idx.Content(source), "\"'`")
		}
	}
	return ""
}

// memberObject returns the object of a member access when it is a plain
// identifier.
func memberObject(node *sitter.Node, source []byte) string {
	obj := node.ChildByFieldName("object")
	if obj == nil || obj.Type() != "identifier" {
		return ""
	}
	return obj.Content(source)
}
