package searcher

import (
	"errors"
	"fmt"
)

var (
	ErrEpisodeDone   = errors.New("episode is done")
	ErrInvalidOption = errors.New("invalid option")
)

// InvariantError reports a broken tree construction invariant. The planner
// treats it as fatal.
type InvariantError struct {
	Op     string
	Node   NodeID
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("tree invariant violated in %s at node %d: %s", e.Op, e.Node, e.Reason)
}
