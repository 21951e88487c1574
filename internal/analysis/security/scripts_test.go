// internal/analysis/security/scripts_test.go
package security

import (
	"context"
	"fmt"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

func newParser(t *testing.T) *sitter.Parser {
	t.Helper()
	p := sitter.NewParser()
	t.Cleanup(p.Close)
	p.SetLanguage(javascript.GetLanguage())
	return p
}

func TestScanScript(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []string
	}{
		{"direct eval", `eval("1+1");`, []string{"line 1: eval"}},
		{"global eval", "const x = 1;\nwindow.eval(code);", []string{"line 2: eval"}},
		{"subscript eval", `self["eval"](code);`, []string{"line 1: eval"}},
		{"function constructor", `const f = new Function("return 1");`, []string{"line 1: Function constructor"}},
		{"innerHTML assignment", `el.innerHTML = userInput;`, []string{"line 1: innerHTML assignment"}},
		{"augmented outerHTML", `el.outerHTML += more;`, []string{"line 1: outerHTML assignment"}},
		{"subscript innerHTML", `el["innerHTML"] = x;`, []string{"line 1: innerHTML assignment"}},
		{"insertAdjacentHTML", `list.insertAdjacentHTML("beforeend", row);`, []string{"line 1: insertAdjacentHTML"}},
		{"document.write", `document.write("<p>hi</p>"); document.writeln("x");`,
			[]string{"line 1: document.write", "line 1: document.write"}},
		{"comparison is not assignment", `if (el.innerHTML === "") { el.textContent = "x"; }`, nil},
		{"eval in a string literal", `const s = "eval(x)"; log.write("y");`, nil},
		{"lookalike names", `myeval(x); obj.evaluate(); doc.write(y);`, nil},
		{"nested in functions", "function render(x) {\n  return () => { target.innerHTML = x; };\n}", []string{"line 2: innerHTML assignment"}},
		{"empty", "   ", nil},
	}
	parser := newParser(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, parsed := scanScript(context.Background(), parser, tt.source)
			assert.True(t, parsed)
			var got []string
			for _, h := range hits {
				got = append(got, h.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanScript_FallsBackOnSyntaxErrors(t *testing.T) {
	hits, parsed := scanScript(context.Background(), newParser(t), `function ( { eval(payload); el.innerHTML = x`)
	assert.False(t, parsed)
	require.Len(t, hits, 2)
	assert.Equal(t, sinkHit{kind: sinkEval, name: "eval"}, hits[0])
	assert.Equal(t, sinkHit{kind: sinkDOM, name: "innerHTML assignment"}, hits[1])
	assert.Equal(t, "eval", hits[0].String())
}

func TestCheckInlineScripts(t *testing.T) {
	doc := parseHTML(t, `<html><head>
		<script src="/app.js"></script>
		<script type="application/ld+json">{"@type": "Organization"}</script>
		<script>window.dataLayer = [];</script>
		<script type="module">import "/m.js";</script>
	</head><body></body></html>`)
	f := single(t, checkInlineScripts(doc))
	assert.Equal(t, schemas.CategoryWarning, f.Category)
	assert.Equal(t, schemas.SeverityMedium, f.Severity)
	assert.Equal(t, "2 inline script(s) found", f.Message)

	clean := single(t, checkInlineScripts(parseHTML(t, `<script src="/a.js"></script>`)))
	assert.Equal(t, schemas.CategoryPassed, clean.Category)
}

func TestCheckScriptSinks(t *testing.T) {
	doc := parseHTML(t, `<html><head>
		<script type="application/ld+json">{"eval(": "not code"}</script>
		<script id="boot">eval(config);</script>
		<script>out.innerHTML = q; document.write(banner); out.innerHTML = r;</script>
	</head><body></body></html>`)
	fs, err := checkScriptSinks(context.Background(), zap.NewNop(), doc)
	require.NoError(t, err)
	require.Len(t, fs, 2)

	eval := fs[0]
	assert.Equal(t, CheckEval, eval.ID)
	assert.Equal(t, schemas.CategoryViolation, eval.Category)
	assert.Equal(t, schemas.SeverityHigh, eval.Severity)
	require.Len(t, eval.Nodes, 1)
	assert.Equal(t, "#boot", eval.Nodes[0].Target)

	dom := fs[1]
	assert.Equal(t, CheckDOMSinks, dom.ID)
	assert.Equal(t, schemas.CategoryWarning, dom.Category)
	assert.Equal(t, "Unsafe DOM methods detected: innerHTML assignment, document.write", dom.Message)
	assert.Len(t, dom.Nodes, 3)
}

func TestCheckScriptSinks_Clean(t *testing.T) {
	fs, err := checkScriptSinks(context.Background(), zap.NewNop(), parseHTML(t, `<script>el.textContent = q;</script>`))
	require.NoError(t, err)
	f := single(t, fs)
	assert.Equal(t, CheckXSSPrevention, f.ID)
	assert.Equal(t, schemas.CategoryPassed, f.Category)
}

func TestCheckScriptSinks_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := checkScriptSinks(ctx, zap.NewNop(), parseHTML(t, `<script>eval(x)</script>`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckScriptSinks_RepeatedAudits(t *testing.T) {
	doc := parseHTML(t, `<script id="boot">eval(config);</script>`)

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			fs, err := checkScriptSinks(context.Background(), zap.NewNop(), doc)
			if err != nil {
				return err
			}
			if len(fs) != 1 || fs[0].ID != CheckEval {
				return fmt.Errorf("unexpected findings: %+v", fs)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
