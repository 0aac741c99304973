package searcher

import (
	"strconv"
	"strings"

	"pomcp/pomdp"
)

// History alternates action and observation indices: a0 z0 a1 z1 ...
// Histories of belief nodes have even length; histories of action nodes end
// with their action.
//
// Extending a History never writes into the receiver's backing array, so
// prefixes can be shared between simulated trajectories.
type History []int

func (h History) WithAction(a pomdp.Action) History {
	return append(h[:len(h):len(h)], int(a))
}

func (h History) Extend(a pomdp.Action, z pomdp.Observation) History {
	return append(h[:len(h):len(h)], int(a), int(z))
}

// Steps counts completed action/observation pairs.
func (h History) Steps() int {
	return len(h) / 2
}

func (h History) LastAction() (pomdp.Action, bool) {
	if len(h) == 0 {
		return 0, false
	}
	if len(h)%2 == 1 {
		return pomdp.Action(h[len(h)-1]), true
	}
	return pomdp.Action(h[len(h)-2]), true
}

func (h History) HasPrefix(prefix History) bool {
	if len(prefix) > len(h) {
		return false
	}
	for i, v := range prefix {
		if h[i] != v {
			return false
		}
	}
	return true
}

// Key encodes h for tree lookups.
func (h History) Key() string {
	buf := make([]byte, 0, len(h)*3)
	for i, v := range h {
		if i > 0 {
			buf = append(buf, '.')
		}
		buf = strconv.AppendInt(buf, int64(v), 10)
	}
	return string(buf)
}

func (h History) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range h {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if i%2 == 0 {
			sb.WriteByte('a')
		} else {
			sb.WriteByte('z')
		}
		sb.WriteString(strconv.Itoa(v))
	}
	sb.WriteByte(']')
	return sb.String()
}
