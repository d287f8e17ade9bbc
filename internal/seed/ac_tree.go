package seed

import (
	"fmt"
	"sort"
)

// ACStatus is the one-way lifecycle state of an AC node, until a
// retrospective rolls the tree back (§4.8).
type ACStatus string

const (
	ACPending ACStatus = "pending"
	ACRunning ACStatus = "running"
	ACDone    ACStatus = "done"
	ACFailed  ACStatus = "failed"
	ACSkipped ACStatus = "skipped"
)

// Atomicity classifies whether an AC node needs decomposition (§4.5).
type Atomicity string

const (
	Atomic    Atomicity = "atomic"
	NonAtomic Atomicity = "non_atomic"
	Unknown   Atomicity = "unknown"
)

// MaxDepth is the hard ceiling on AC-tree depth (spec §3). The config
// carries ac_tree.max_depth, but Tree always enforces this constant and does
// not read that setting.
const MaxDepth = 5

// ACNode is one node of the acceptance-criterion tree. Children reference
// their parent only by ID; traversal is always through the owning Tree, not
// back-pointers, so a node can be copied by value safely.
type ACNode struct {
	ID       string
	ParentID string // "" for a root
	Depth    int
	Text     string
	Status   ACStatus
	Atomicity Atomicity
}

var errCycle = fmt.Errorf("ac_tree: cyclic decomposition (child text equals an ancestor's text)")

// Tree owns a generation's AC nodes, keyed by ID. It is the sole writer of
// node state; children never mutate their parent directly.
type Tree struct {
	nodes    map[string]*ACNode
	children map[string][]string // parentID -> ordered child IDs
	roots    []string
}

// NewTree builds an empty tree.
func NewTree() *Tree {
	return &Tree{nodes: make(map[string]*ACNode), children: make(map[string][]string)}
}

// AddRoot inserts a depth-0 node built from one of the Seed's flat
// acceptance criteria.
func (t *Tree) AddRoot(id, text string) *ACNode {
	n := &ACNode{ID: id, Depth: 0, Text: text, Status: ACPending, Atomicity: Unknown}
	t.nodes[id] = n
	t.roots = append(t.roots, id)
	return n
}

// AddChild inserts a node one level below parentID. It fails with errCycle
// if text equals any ancestor's text, and fails if the resulting depth would
// exceed MaxDepth.
func (t *Tree) AddChild(parentID, childID, text string) (*ACNode, error) {
	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("ac_tree: unknown parent %q", parentID)
	}
	if parent.Depth+1 > MaxDepth {
		return nil, fmt.Errorf("ac_tree: depth %d exceeds max depth %d", parent.Depth+1, MaxDepth)
	}
	for anc := parent; anc != nil; anc = t.nodes[anc.ParentID] {
		if anc.Text == text {
			return nil, errCycle
		}
		if anc.ParentID == "" {
			break
		}
	}
	n := &ACNode{ID: childID, ParentID: parentID, Depth: parent.Depth + 1, Text: text, Status: ACPending, Atomicity: Unknown}
	t.nodes[childID] = n
	t.children[parentID] = append(t.children[parentID], childID)
	return n, nil
}

// Get returns a node by ID.
func (t *Tree) Get(id string) (*ACNode, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Children returns the direct children of id, dependency-sorted by ID for
// deterministic parallel execution order.
func (t *Tree) Children(id string) []*ACNode {
	ids := append([]string(nil), t.children[id]...)
	sort.Strings(ids)
	out := make([]*ACNode, 0, len(ids))
	for _, cid := range ids {
		out = append(out, t.nodes[cid])
	}
	return out
}

// Roots returns the tree's depth-0 nodes in insertion order.
func (t *Tree) Roots() []*ACNode {
	out := make([]*ACNode, 0, len(t.roots))
	for _, id := range t.roots {
		out = append(out, t.nodes[id])
	}
	return out
}

// SetStatus transitions a node's status. Transitions are one-way (pending ->
// running -> done|failed|skipped); only a retrospective rollback (outside
// this type) may move a node backward.
func (t *Tree) SetStatus(id string, status ACStatus) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("ac_tree: unknown node %q", id)
	}
	if !validTransition(n.Status, status) {
		return fmt.Errorf("ac_tree: invalid transition %s -> %s for node %q", n.Status, status, id)
	}
	n.Status = status
	return nil
}

func validTransition(from, to ACStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case ACPending:
		return to == ACRunning || to == ACSkipped
	case ACRunning:
		return to == ACDone || to == ACFailed
	default:
		return false
	}
}

// RollbackTo resets a node and its descendants to ACPending, used exclusively
// by a retrospective (§4.8) to re-open a subtree for re-execution.
func (t *Tree) RollbackTo(id string) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	n.Status = ACPending
	for _, c := range t.children[id] {
		t.RollbackTo(c)
	}
}

// AllNodes returns every node in the tree in no particular order.
func (t *Tree) AllNodes() []*ACNode {
	out := make([]*ACNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}
