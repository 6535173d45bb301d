package metrics

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Workload and player names are unbounded; they belong in logs and
// traces, never in label sets.
var unboundedLabels = []string{"request_id", "correlation_id", "server_name", "player_name", "path"}

func TestMetrics_NoPerWorkloadOrPerPlayerLabels(t *testing.T) {
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, ".", func(fi os.FileInfo) bool {
		return !strings.HasSuffix(fi.Name(), "_test.go")
	}, 0)
	require.NoError(t, err)

	for _, pkg := range pkgs {
		for _, file := range pkg.Files {
			ast.Inspect(file, func(n ast.Node) bool {
				for _, lit := range vecLabels(n) {
					label, _ := strconv.Unquote(lit.Value)
					for _, bad := range unboundedLabels {
						if label == bad {
							t.Errorf("%s: unbounded metric label %q", fset.Position(lit.Pos()), label)
						}
					}
				}
				return true
			})
		}
	}
}

// vecLabels returns the label literals of a promauto.New*Vec call.
func vecLabels(n ast.Node) []*ast.BasicLit {
	call, ok := n.(*ast.CallExpr)
	if !ok || len(call.Args) < 2 {
		return nil
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || !strings.HasSuffix(sel.Sel.Name, "Vec") {
		return nil
	}
	if pkg, ok := sel.X.(*ast.Ident); !ok || pkg.Name != "promauto" {
		return nil
	}
	list, ok := call.Args[1].(*ast.CompositeLit)
	if !ok {
		return nil
	}
	var out []*ast.BasicLit
	for _, elt := range list.Elts {
		if lit, ok := elt.(*ast.BasicLit); ok && lit.Kind == token.STRING {
			out = append(out, lit)
		}
	}
	return out
}
