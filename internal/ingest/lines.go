package ingest

import (
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/marcohefti/specc/internal/canon"
)

// lineMap records the source line of every pointer. JSON parses as YAML here,
// so both formats get real line numbers.
func lineMap(data []byte) map[string]int {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil
	}
	lines := map[string]int{}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		walkNode(doc.Content[0], "/", lines)
	}
	return lines
}

func walkNode(n *yaml.Node, ptr string, lines map[string]int) {
	if n == nil {
		return
	}
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	lines[ptr] = n.Line
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			child := canon.JoinPointer(ptr, key.Value)
			walkNode(val, child, lines)
			lines[child] = key.Line
		}
	case yaml.SequenceNode:
		for i, c := range n.Content {
			walkNode(c, canon.JoinPointer(ptr, strconv.Itoa(i)), lines)
		}
	}
}
