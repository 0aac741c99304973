package searcher

import (
	"math"
	"sync"

	"pomcp/pomdp"
)

// NodeID addresses a node in a Tree's arena. IDs are only stable until the
// next Prune or Reset.
type NodeID int

const NoNode NodeID = -1

type Kind int

const (
	// BeliefNode is reached by a history ending in an observation (or the
	// empty history) and owns one action node per legal action.
	BeliefNode Kind = iota
	// ActionNode is reached by a history ending in its action and owns one
	// belief node per observation seen after taking it.
	ActionNode
)

type node struct {
	sync.Mutex
	kind      Kind
	parent    NodeID // traversal only, never ownership
	action    pomdp.Action
	hasAction bool // false only for the empty history
	history   History
	children  []NodeID
	expanded  bool
	visits    int
	value     float64
}

func (n *node) stats() (int, float64) {
	n.Lock()
	defer n.Unlock()

	return n.visits, n.value
}

func (n *node) visit() {
	n.Lock()
	defer n.Unlock()

	n.visits++
}

// record adds one visit and folds ret into the running mean.
func (n *node) record(ret float64) {
	n.Lock()
	defer n.Unlock()

	n.visits++
	n.value += (ret - n.value) / float64(n.visits)
}

// NodeInfo is a read-only snapshot of a node.
type NodeInfo struct {
	ID        NodeID
	Kind      Kind
	Parent    NodeID
	Action    pomdp.Action
	HasAction bool
	History   History
	Children  []NodeID
	Visits    int
	Value     float64
}

// ucb1 scores a child by value + c·sqrt(ln N / n). Unvisited children score
// +Inf so they are tried before any visited sibling.
func ucb1(value float64, visits int, c float64, logParentVisits float64) float64 {
	if visits == 0 {
		return math.Inf(1)
	}
	return value + c*math.Sqrt(logParentVisits/float64(visits))
}
