package ir

import (
	"fmt"
	"regexp"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// tsLanguages maps embedded dialects to their tree-sitter grammars. C++ has
// no grammar here and falls back to a lexical token scan.
var tsLanguages = map[Language]func() *tree_sitter.Language{
	LangPython:     func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_python.Language()) },
	LangGo:         func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_go.Language()) },
	LangRust:       func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_rust.Language()) },
	LangTypeScript: func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()) },
}

var cppToken = regexp.MustCompile(`\b\w+\b`)

// parseCode parses source in the given dialect. A new parser is created per
// call, matching the per-call lifecycle the grammars expect.
func parseCode(source []byte, lang Language) (*tree_sitter.Tree, error) {
	mk, ok := tsLanguages[lang]
	if !ok {
		return nil, fmt.Errorf("ir: no grammar for dialect %q", lang)
	}
	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(mk()); err != nil {
		return nil, fmt.Errorf("ir: set language %s: %w", lang, err)
	}
	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("ir: parse failed for dialect %q", lang)
	}
	return tree, nil
}

// identifierSpan is one identifier occurrence in a code body.
type identifierSpan struct {
	name       string
	start, end uint
}

// walkIdentifiers collects identifier leaves. Member names on the right of
// an attribute/field access are skipped: only the object prefix is a
// rewritable reference.
func walkIdentifiers(n *tree_sitter.Node, source []byte, out *[]identifierSpan) {
	kind := n.Kind()
	switch kind {
	case "identifier", "type_identifier":
		*out = append(*out, identifierSpan{
			name:  string(source[n.StartByte():n.EndByte()]),
			start: n.StartByte(),
			end:   n.EndByte(),
		})
		return
	case "attribute", "selector_expression", "field_expression", "member_expression":
		// Recurse into the object side only.
		obj := n.ChildByFieldName("object")
		if obj == nil {
			obj = n.ChildByFieldName("operand")
		}
		if obj == nil {
			obj = n.ChildByFieldName("value")
		}
		if obj == nil {
			obj = n.Child(0)
		}
		if obj != nil {
			walkIdentifiers(obj, source, out)
		}
		return
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			walkIdentifiers(c, source, out)
		}
	}
}

// codeIdentifiers returns the identifier spans of a code body, in byte
// order. For C++ this is a lexical whole-word scan; for dialects with a
// grammar it is a parse-tree walk.
func codeIdentifiers(cb *CodeBlock) ([]identifierSpan, error) {
	if cb.Language == LangCPP {
		var out []identifierSpan
		for _, loc := range cppToken.FindAllStringIndex(cb.Code, -1) {
			out = append(out, identifierSpan{
				name:  cb.Code[loc[0]:loc[1]],
				start: uint(loc[0]),
				end:   uint(loc[1]),
			})
		}
		return out, nil
	}
	source := []byte(cb.Code)
	tree, err := parseCode(source, cb.Language)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	var out []identifierSpan
	walkIdentifiers(tree.RootNode(), source, &out)
	return out, nil
}

// codeFreeSymbols returns the set of identifier names occurring in a code
// body. Unsupported dialects yield an empty set.
func codeFreeSymbols(cb *CodeBlock) map[string]struct{} {
	out := map[string]struct{}{}
	if cb.Code == "" {
		return out
	}
	spans, err := codeIdentifiers(cb)
	if err != nil {
		return out
	}
	for _, sp := range spans {
		out[sp.name] = struct{}{}
	}
	return out
}

// renameInNativeCode rewrites identifiers of a native-dialect code body via
// an AST walk, splicing every replacement in a single pass so the rewrite
// is simultaneous.
func renameInNativeCode(cb *CodeBlock, repl map[string]string) error {
	source := []byte(cb.Code)
	tree, err := parseCode(source, cb.Language)
	if err != nil {
		return err
	}
	defer tree.Close()
	var spans []identifierSpan
	walkIdentifiers(tree.RootNode(), source, &spans)

	var out []byte
	var cursor uint
	for _, sp := range spans {
		nn, ok := repl[sp.name]
		if !ok {
			continue
		}
		out = append(out, source[cursor:sp.start]...)
		out = append(out, nn...)
		cursor = sp.end
	}
	if cursor == 0 {
		return nil
	}
	out = append(out, source[cursor:]...)
	cb.Code = string(out)
	return nil
}

// shadowBinding renders a local binding statement that shadows name with
// value in the given dialect.
func shadowBinding(lang Language, name, value string) (string, error) {
	switch lang {
	case LangCPP:
		return fmt.Sprintf("auto %s = %s;\n", name, value), nil
	case LangGo:
		return fmt.Sprintf("%s := %s\n", name, value), nil
	case LangRust:
		return fmt.Sprintf("let %s = %s;\n", name, value), nil
	case LangTypeScript:
		return fmt.Sprintf("const %s = %s;\n", name, value), nil
	}
	return "", fmt.Errorf("ir: no shadow-binding form for dialect %q", lang)
}

// foreignDialect reports whether lang is an imperative dialect whose text
// cannot be rewritten structurally and must be shadowed instead.
func foreignDialect(lang Language) bool {
	switch lang {
	case LangCPP, LangGo, LangRust, LangTypeScript:
		return true
	}
	return false
}
