package transform

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"kiln/internal/deps"
	"kiln/internal/diag"
	"kiln/internal/source"
)

// Lint runs tree-sitter based checks. Each check is configured by an option
// named after it with value "off", "warn" or "error".
type Lint struct{}

func (Lint) Name() string { return "lint" }

type lintCheck struct {
	name string
	code diag.Code
	def  string
}

var lintChecks = []lintCheck{
	{name: "no-debugger", code: diag.LntNoDebugger, def: "warn"},
	{name: "no-eval", code: diag.LntNoEval, def: "warn"},
	{name: "no-console", code: diag.LntNoConsole, def: "off"},
	{name: "no-empty-import", code: diag.LntNoEmptyImport, def: "error"},
}

func (Lint) Lint(tc *Context, in []byte) error {
	levels := make(map[string]diag.Severity, len(lintChecks))
	for _, c := range lintChecks {
		sev, on, err := diag.ParseSeverity(tc.Options.String(c.name, c.def))
		if err != nil {
			return fmt.Errorf("lint: %s: %w", c.name, err)
		}
		if on {
			levels[c.name] = sev
		}
	}

	tree, err := deps.Parse(tc.context(), in)
	if err != nil {
		return err
	}
	defer tree.Close()

	root := tree.RootNode()
	rep := tc.reporter()
	report := func(check lintCheck, n *sitter.Node, msg string) {
		sev, on := levels[check.name]
		if !on {
			return
		}
		sp := source.Span{Start: n.StartByte(), End: n.EndByte()}
		rep.Report(check.code, sev, tc.ID, sp, fmt.Sprintf("%s (%s)", msg, check.name), nil)
	}

	if root.HasError() {
		rep.Report(diag.LdrParseFailed, diag.SevWarning, tc.ID, source.Span{}, "syntax errors; lint results may be incomplete", nil)
	}

	iter := sitter.NewIterator(root, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}
		switch n.Type() {
		case "debugger_statement":
			report(lintChecks[0], n, "unexpected 'debugger' statement")
		case "call_expression":
			callee := n.Child(0)
			if callee == nil {
				continue
			}
			switch {
			case callee.Type() == "identifier" && callee.Content(in) == "eval":
				report(lintChecks[1], n, "eval can be harmful")
			case callee.Type() == "member_expression":
				if obj := callee.ChildByFieldName("object"); obj != nil && obj.Type() == "identifier" && obj.Content(in) == "console" {
					report(lintChecks[2], n, "unexpected console statement")
				}
			case callee.Type() == "import" || (callee.Type() == "identifier" && callee.Content(in) == "require"):
				if args := n.Child(1); args != nil && emptyStringArg(args, in) {
					report(lintChecks[3], n, "empty module specifier")
				}
			}
		case "import_statement":
			if src := n.ChildByFieldName("source"); src != nil && len(strings.Trim(src.Content(in), "\"'")) == 0 {
				report(lintChecks[3], n, "empty module specifier")
			}
		}
	}
	return nil
}

func emptyStringArg(args *sitter.Node, in []byte) bool {
	if args.NamedChildCount() == 0 {
		return false
	}
	first := args.NamedChild(0)
	return first.Type() == "string" && len(strings.Trim(first.Content(in), "\"'")) == 0
}
