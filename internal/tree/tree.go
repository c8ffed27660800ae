// Package tree builds and walks the nested file tree derived from an
// owner's flat record collection.
package tree

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/lemesvini/codeLog/internal/files"
)

// Node is a record plus its ordered children. Nodes are rebuilt on every
// load and never patched in place.
type Node struct {
	files.Record
	Children []*Node
}

// Build turns a flat list of records into an ordered forest.
//
// Records with a nil ParentID become roots; every other record is attached
// to the record whose ID equals its ParentID. Records whose parent is
// missing are dropped, and so are records caught in a parent cycle since
// no root ever reaches them. Siblings are ordered folders first, then by
// name using a locale-aware collation.
func Build(records []files.Record) []*Node {
	byID := make(map[string]*Node, len(records))
	order := make([]*Node, 0, len(records))
	for i := range records {
		if _, dup := byID[records[i].ID]; dup {
			continue
		}
		n := &Node{Record: records[i]}
		byID[n.ID] = n
		order = append(order, n)
	}

	var roots []*Node
	for _, n := range order {
		if n.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		if parent, ok := byID[*n.ParentID]; ok {
			parent.Children = append(parent.Children, n)
		}
	}

	sortForest(roots)
	return roots
}

func sortForest(roots []*Node) {
	col := collate.New(language.English)
	pending := [][]*Node{roots}
	for len(pending) > 0 {
		level := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		sort.SliceStable(level, func(i, j int) bool {
			return less(col, level[i], level[j])
		})
		for _, n := range level {
			if len(n.Children) > 0 {
				pending = append(pending, n.Children)
			}
		}
	}
}

func less(col *collate.Collator, a, b *Node) bool {
	if a.Kind != b.Kind {
		return a.IsFolder()
	}
	if c := col.CompareString(a.Name, b.Name); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// Walk visits nodes depth-first in display order. fn returns false to skip
// a node's children.
func Walk(roots []*Node, fn func(n *Node, depth int) bool) {
	type item struct {
		n     *Node
		depth int
	}
	stack := make([]item, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, item{roots[i], 0})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(it.n, it.depth) {
			continue
		}
		for i := len(it.n.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{it.n.Children[i], it.depth + 1})
		}
	}
}

// Find returns the node with the given id, or nil.
func Find(roots []*Node, id string) *Node {
	var found *Node
	Walk(roots, func(n *Node, _ int) bool {
		if found != nil {
			return false
		}
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Count returns the number of nodes reachable from roots.
func Count(roots []*Node) int {
	count := 0
	Walk(roots, func(*Node, int) bool {
		count++
		return true
	})
	return count
}

// PathTo returns the chain of ancestors of id, outermost first, not
// including the node itself. ok is false when id is not in the forest.
func PathTo(roots []*Node, id string) (ancestors []*Node, ok bool) {
	parent := make(map[*Node]*Node)
	var target *Node
	stack := append([]*Node(nil), roots...)
	for len(stack) > 0 && target == nil {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.ID == id {
			target = n
			break
		}
		for _, c := range n.Children {
			parent[c] = n
			stack = append(stack, c)
		}
	}
	if target == nil {
		return nil, false
	}
	for p := parent[target]; p != nil; p = parent[p] {
		ancestors = append(ancestors, p)
	}
	for i, j := 0, len(ancestors)-1; i < j; i, j = i+1, j-1 {
		ancestors[i], ancestors[j] = ancestors[j], ancestors[i]
	}
	return ancestors, true
}
