package locator

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alexaandru/go-sitter-forest/c"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

var (
	cLanguageOnce sync.Once
	cLanguage     *sitter.Language
)

func isCSource(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".c", ".h":
		return true
	}
	return false
}

// boundaryNodes are the C node types whose first row counts as a boundary:
// function definitions and the braces that open a block.
var boundaryNodes = map[string]bool{
	"function_definition": true,
	"compound_statement":  true,
}

// syntaxBoundaries parses lines as C and marks the rows where a boundary
// node starts. It reports false when the source cannot be parsed.
func syntaxBoundaries(lines []string) (map[int]bool, bool) {
	cLanguageOnce.Do(func() {
		cLanguage = sitter.NewLanguage(c.GetLanguage())
	})

	tsParser := sitter.NewParser()
	tsParser.SetLanguage(cLanguage)

	tree, err := tsParser.ParseString(context.Background(), nil, []byte(strings.Join(lines, "\n")))
	if err != nil {
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, false
	}

	rows := make(map[int]bool)
	stack := []sitter.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if boundaryNodes[node.Type()] {
			rows[int(node.StartPoint().Row)] = true
		}
		for idx := range node.NamedChildCount() {
			stack = append(stack, node.NamedChild(idx))
		}
	}
	if len(rows) == 0 {
		return nil, false
	}
	return rows, true
}
