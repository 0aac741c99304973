package searcher

import (
	"fmt"
	"math"
	"sync"

	"pomcp/pomdp"
)

// Tree caches per-history statistics in an arena of nodes. Structural changes
// (expansion, insertion) are serialized by the tree lock; statistics are
// serialized per node.
type Tree struct {
	mu    sync.RWMutex
	nodes []*node
	index map[string]NodeID
	root  NodeID
}

// NewTree returns a tree holding a single unexpanded root for h.
func NewTree(h History) *Tree {
	t := &Tree{}
	t.reset(h)
	return t
}

func (t *Tree) reset(h History) {
	root := &node{kind: BeliefNode, parent: NoNode, history: h}
	if len(h)%2 == 1 {
		root.kind = ActionNode
	}
	if a, ok := h.LastAction(); ok {
		root.action = a
		root.hasAction = true
	}
	t.nodes = []*node{root}
	t.index = map[string]NodeID{h.Key(): 0}
	t.root = 0
}

// Reset discards every node and starts over from a fresh root for h.
func (t *Tree) Reset(h History) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reset(h)
}

func (t *Tree) Root() NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.root
}

func (t *Tree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.nodes)
}

// Find returns the node whose history equals h. A miss is not an error.
func (t *Tree) Find(h History) (NodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.index[h.Key()]
	return id, ok
}

func (t *Tree) Node(id NodeID) (NodeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.lookup(id)
	if n == nil {
		return NodeInfo{}, false
	}
	n.Lock()
	defer n.Unlock()
	return NodeInfo{
		ID:        id,
		Kind:      n.kind,
		Parent:    n.parent,
		Action:    n.action,
		HasAction: n.hasAction,
		History:   n.history,
		Children:  append([]NodeID(nil), n.children...),
		Visits:    n.visits,
		Value:     n.value,
	}, true
}

func (t *Tree) lookup(id NodeID) *node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Expand attaches a child for the untried action a under parent, keyed by
// childHistory. Expanding an action twice is an invariant violation.
func (t *Tree) Expand(parent NodeID, a pomdp.Action, childHistory History) (NodeID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.expand(parent, a, childHistory)
}

func (t *Tree) expand(parent NodeID, a pomdp.Action, childHistory History) (NodeID, error) {
	p := t.lookup(parent)
	if p == nil {
		return NoNode, &InvariantError{Op: "expand", Node: parent, Reason: "unknown parent"}
	}
	if p.kind != BeliefNode {
		return NoNode, &InvariantError{Op: "expand", Node: parent, Reason: "action nodes branch on observations"}
	}
	for _, c := range p.children {
		if t.nodes[c].action == a {
			return NoNode, &InvariantError{Op: "expand", Node: parent, Reason: fmt.Sprintf("action %d already has a child", a)}
		}
	}
	key := childHistory.Key()
	if _, ok := t.index[key]; ok {
		return NoNode, &InvariantError{Op: "expand", Node: parent, Reason: fmt.Sprintf("history %v already in tree", childHistory)}
	}

	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, &node{kind: ActionNode, parent: parent, action: a, hasAction: true, history: childHistory})
	t.index[key] = id
	p.children = append(p.children, id)
	return id, nil
}

// ExpandAll creates the missing action children of a belief node in action
// order. Only the first caller expands; it reports whether this call did.
func (t *Tree) ExpandAll(parent NodeID, actions []pomdp.Action) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.lookup(parent)
	if p == nil {
		return false, &InvariantError{Op: "expand", Node: parent, Reason: "unknown parent"}
	}
	if p.expanded {
		return false, nil
	}
	for _, a := range actions {
		if t.childFor(p, a) != NoNode {
			continue
		}
		if _, err := t.expand(parent, a, p.history.WithAction(a)); err != nil {
			return false, err
		}
	}
	p.expanded = true
	return true, nil
}

func (t *Tree) childFor(p *node, a pomdp.Action) NodeID {
	for _, c := range p.children {
		if t.nodes[c].action == a {
			return c
		}
	}
	return NoNode
}

// Insert returns the belief node for h, creating it under the action node
// h[:len(h)-1] when missing.
func (t *Tree) Insert(h History) (NodeID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := h.Key()
	if id, ok := t.index[key]; ok {
		return id, nil
	}
	if len(h)%2 != 0 || len(h) == 0 {
		return NoNode, &InvariantError{Op: "insert", Node: NoNode, Reason: fmt.Sprintf("history %v does not end in an observation", h)}
	}
	parent, ok := t.index[h[:len(h)-1].Key()]
	if !ok {
		return NoNode, &InvariantError{Op: "insert", Node: NoNode, Reason: fmt.Sprintf("no action node for %v", h)}
	}

	id := NodeID(len(t.nodes))
	a, _ := h.LastAction()
	t.nodes = append(t.nodes, &node{kind: BeliefNode, parent: parent, action: a, hasAction: true, history: h})
	t.index[key] = id
	p := t.nodes[parent]
	p.children = append(p.children, id)
	return id, nil
}

// Select picks the child of a belief node maximizing UCB1, preferring the
// first unvisited child in action order.
func (t *Tree) Select(id NodeID, c float64) (NodeID, pomdp.Action) {
	t.mu.RLock()
	p := t.lookup(id)
	if p == nil {
		t.mu.RUnlock()
		panic(&InvariantError{Op: "select", Node: id, Reason: "unknown node"})
	}
	p.Lock()
	visits := p.visits
	children := make([]*node, len(p.children))
	ids := append([]NodeID(nil), p.children...)
	for i, cid := range p.children {
		children[i] = t.nodes[cid]
	}
	p.Unlock()
	t.mu.RUnlock()

	if len(children) == 0 {
		panic(&InvariantError{Op: "select", Node: id, Reason: "node has no children"})
	}

	logN := 0.0
	if visits > 0 {
		logN = math.Log(float64(visits))
	}
	best := -1
	bestScore := math.Inf(-1)
	for i, child := range children {
		v, q := child.stats()
		score := ucb1(q, v, c, logN)
		if math.IsInf(score, 1) {
			return ids[i], child.action
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return ids[best], children[best].action
}

// Update backs ret up one level: the belief node gains a visit and the
// action child gains a visit and folds ret into its mean.
func (t *Tree) Update(parent NodeID, child NodeID, ret float64) {
	t.mu.RLock()
	p, c := t.lookup(parent), t.lookup(child)
	t.mu.RUnlock()
	if p == nil || c == nil {
		panic(&InvariantError{Op: "update", Node: parent, Reason: "unknown node"})
	}

	p.visit()
	c.record(ret)
}

// Prune re-roots the tree at keep and drops every node not below it. Node IDs
// are reassigned.
func (t *Tree) Prune(keep NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lookup(keep) == nil {
		return &InvariantError{Op: "prune", Node: keep, Reason: "unknown node"}
	}

	remap := map[NodeID]NodeID{keep: 0}
	order := []NodeID{keep}
	for i := 0; i < len(order); i++ {
		for _, c := range t.nodes[order[i]].children {
			remap[c] = NodeID(len(order))
			order = append(order, c)
		}
	}

	nodes := make([]*node, len(order))
	index := make(map[string]NodeID, len(order))
	for newID, oldID := range order {
		n := t.nodes[oldID]
		if newID == 0 {
			n.parent = NoNode
		} else {
			n.parent = remap[n.parent]
		}
		for j, c := range n.children {
			n.children[j] = remap[c]
		}
		nodes[newID] = n
		index[n.history.Key()] = NodeID(newID)
	}

	t.nodes = nodes
	t.index = index
	t.root = 0
	return nil
}
