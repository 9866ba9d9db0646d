// Package deps extracts dependency specifiers from JavaScript sources using
// the tree-sitter JavaScript grammar.
package deps

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"kiln/internal/source"
)

type Kind uint8

const (
	// Static dependencies are part of the importer's chunk.
	Static Kind = iota
	// Dynamic dependencies are loaded on demand and seed their own chunk.
	Dynamic
)

func (k Kind) String() string {
	if k == Dynamic {
		return "dynamic"
	}
	return "static"
}

// Dependency is one import site. Span covers the string literal including
// its quotes; for dynamic imports Call covers the whole import(...) call.
type Dependency struct {
	Specifier string
	Kind      Kind
	Span      source.Span
	Call      source.Span
}

// Result is the outcome of one extraction.
type Result struct {
	Deps []Dependency
	// ESM is set when import or export declarations are present.
	ESM bool
	// SyntaxError is set when the parser had to recover from errors.
	SyntaxError bool
}

// Parse returns the syntax tree of content. Callers must Close the tree.
// A parser is never reused: cancelling ctx sets a flag on it that stays set.
func Parse(ctx context.Context, content []byte) (*sitter.Tree, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(javascript.GetLanguage())
	tree, err := p.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing failed: %w", err)
	}
	return tree, nil
}

// Extract lists the dependencies of content in source order.
func Extract(ctx context.Context, content []byte) (*Result, error) {
	tree, err := Parse(ctx, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	res := &Result{SyntaxError: root.HasError()}

	iter := sitter.NewIterator(root, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}
		switch n.Type() {
		case "import_statement", "export_statement":
			src := n.ChildByFieldName("source")
			if n.Type() == "import_statement" || src != nil {
				res.ESM = true
			}
			if src == nil {
				continue
			}
			if spec, ok := literal(src, content); ok {
				res.Deps = append(res.Deps, Dependency{Specifier: spec, Kind: Static, Span: span(src)})
			}
		case "call_expression":
			if d, ok := callDependency(n, content); ok {
				res.Deps = append(res.Deps, d)
			}
		}
	}
	return res, nil
}

// callDependency recognises require("x") and import("x").
func callDependency(n *sitter.Node, content []byte) (Dependency, bool) {
	if n.ChildCount() < 2 {
		return Dependency{}, false
	}
	callee := n.Child(0)
	args := n.Child(1)
	if callee == nil || args == nil || args.Type() != "arguments" {
		return Dependency{}, false
	}

	var kind Kind
	switch {
	case callee.Type() == "import":
		kind = Dynamic
	case callee.Type() == "identifier" && callee.Content(content) == "require":
		kind = Static
	default:
		return Dependency{}, false
	}

	arg := firstArgument(args)
	if arg == nil {
		return Dependency{}, false
	}
	spec, ok := literal(arg, content)
	if !ok {
		return Dependency{}, false
	}
	d := Dependency{Specifier: spec, Kind: kind, Span: span(arg)}
	if kind == Dynamic {
		d.Call = span(n)
	}
	return d, true
}

func firstArgument(args *sitter.Node) *sitter.Node {
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		return child
	}
	return nil
}

// literal returns the value of a string or substitution-free template.
func literal(n *sitter.Node, content []byte) (string, bool) {
	switch n.Type() {
	case "string":
	case "template_string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "template_substitution" {
				return "", false
			}
		}
	default:
		return "", false
	}
	raw := n.Content(content)
	if len(raw) < 2 {
		return "", false
	}
	return unescape(raw[1 : len(raw)-1]), true
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func span(n *sitter.Node) source.Span {
	return source.Span{Start: n.StartByte(), End: n.EndByte()}
}
