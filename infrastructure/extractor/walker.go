package extractor

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Walker provides AST traversal utilities shared by all language passes.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() Walker {
	return Walker{}
}

// WalkFunc is called for each node during traversal. Return false to stop.
type WalkFunc func(node *sitter.Node) bool

// Walk performs a breadth-first traversal of the AST. Child order is the
// grammar order, so traversal is deterministic for a given tree.
func (w Walker) Walk(root *sitter.Node, fn WalkFunc) {
	if root == nil {
		return
	}

	queue := []*sitter.Node{root}
	visited := make(map[uintptr]struct{})

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		nodeID := current.ID()
		if _, ok := visited[nodeID]; ok {
			continue
		}
		visited[nodeID] = struct{}{}

		if !fn(current) {
			return
		}

		for i := uint32(0); i < current.ChildCount(); i++ {
			child := current.Child(int(i))
			if child != nil {
				queue = append(queue, child)
			}
		}
	}
}

// CollectNodes returns all nodes whose type is in nodeTypes, in traversal
// order.
func (w Walker) CollectNodes(root *sitter.Node, nodeTypes []string) []*sitter.Node {
	typeSet := make(map[string]struct{}, len(nodeTypes))
	for _, t := range nodeTypes {
		typeSet[t] = struct{}{}
	}

	var nodes []*sitter.Node
	w.Walk(root, func(node *sitter.Node) bool {
		if _, ok := typeSet[node.Type()]; ok {
			nodes = append(nodes, node)
		}
		return true
	})

	return nodes
}

// CollectDescendants returns all descendants with the specified type.
func (w Walker) CollectDescendants(root *sitter.Node, nodeType string) []*sitter.Node {
	return w.CollectNodes(root, []string{nodeType})
}

// FindDescendant returns the first descendant with the specified type.
func (w Walker) FindDescendant(root *sitter.Node, nodeType string) *sitter.Node {
	var result *sitter.Node
	w.Walk(root, func(node *sitter.Node) bool {
		if node.Type() == nodeType {
			result = node
			return false
		}
		return true
	})
	return result
}

// NodeText extracts the text content of a node.
func (w Walker) NodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}

	start := node.StartByte()
	end := node.EndByte()
	if start >= uint32(len(source)) || end > uint32(len(source)) || start >= end {
		return ""
	}

	return string(source[start:end])
}

// IsIdentifier reports whether a node is an identifier type.
func (w Walker) IsIdentifier(node *sitter.Node) bool {
	if node == nil {
		return false
	}

	switch node.Type() {
	case "identifier", "type_identifier", "field_identifier",
		"property_identifier", "shorthand_property_identifier", "dotted_name":
		return true
	}
	return false
}

// HasAncestorOfType reports whether any ancestor of node has a type in
// nodeTypes.
func (w Walker) HasAncestorOfType(node *sitter.Node, nodeTypes map[string]struct{}) bool {
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		if _, ok := nodeTypes[parent.Type()]; ok {
			return true
		}
	}
	return false
}
