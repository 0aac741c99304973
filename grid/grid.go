package grid

import (
	"errors"
	"fmt"

	"pomcp/pomdp"

	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/rand"
)

// Moves, in the order the planner enumerates them
const (
	Left pomdp.Action = iota
	Top
	Right
	Bottom
)

const (
	// Colours is the number of colours a non-goal cell can have.
	Colours = 3
	// GoalColour is the observation seen on entering the goal.
	GoalColour = Colours
	// RandomGoal asks New to pick the goal cell.
	RandomGoal = -1
)

var ErrInvalidGrid = errors.New("invalid grid")

var actionNames = [...]string{"left", "top", "right", "bottom"}

func ActionName(a pomdp.Action) string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", a)
	}
	return actionNames[a]
}

type Config struct {
	Width  int     `yaml:"width" validate:"min=1"`
	Height int     `yaml:"height" validate:"min=1"`
	Goal   int     `yaml:"goal" validate:"min=-1"`
	Noise  float64 `yaml:"noise" validate:"gte=0,lt=1"` // Probability of observing a wrong colour
	Slip   float64 `yaml:"slip" validate:"gte=0,lt=1"`  // Probability of a move failing
	// Colour per cell, drawn from Seed when empty. The goal cell's entry is
	// ignored.
	Cells []int  `yaml:"cells" validate:"omitempty,dive,min=0,max=2"`
	Seed  uint64 `yaml:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Width:  3,
		Height: 3,
		Goal:   8,
		Seed:   1,
	}
}

var validate = validator.New()

// Env is a grid the agent moves in without seeing its own position. Each step
// reveals only the colour of the cell entered.
type Env struct {
	config Config
	cells  []int
	goal   pomdp.State
	state  pomdp.State
	rng    *rand.Rand // Slip and noise
	starts *rand.Rand // Start cells, independent of how many steps were taken
}

func New(config Config) (*Env, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGrid, err)
	}
	size := config.Width * config.Height
	if size < 2 {
		return nil, fmt.Errorf("%w: a grid needs a goal and at least one other cell", ErrInvalidGrid)
	}
	if config.Goal >= size {
		return nil, fmt.Errorf("%w: goal %d outside %dx%d grid", ErrInvalidGrid, config.Goal, config.Width, config.Height)
	}
	if len(config.Cells) != 0 && len(config.Cells) != size {
		return nil, fmt.Errorf("%w: %d cell colours for %d cells", ErrInvalidGrid, len(config.Cells), size)
	}

	rng := rand.New(rand.NewSource(config.Seed))
	goal := config.Goal
	if goal == RandomGoal {
		goal = rng.Intn(size)
	}
	cells := make([]int, size)
	for i := range cells {
		switch {
		case i == goal:
			cells[i] = GoalColour
		case len(config.Cells) > 0:
			cells[i] = config.Cells[i]
		default:
			cells[i] = rng.Intn(Colours)
		}
	}

	e := &Env{
		config: config,
		cells:  cells,
		goal:   pomdp.State(goal),
		starts: rand.New(rand.NewSource(rng.Uint64())),
		rng:    rng,
	}
	e.Reset()
	return e, nil
}

func (e *Env) Width() int               { return e.config.Width }
func (e *Env) Height() int              { return e.config.Height }
func (e *Env) Goal() pomdp.State        { return e.goal }
func (e *Env) State() pomdp.State       { return e.state }
func (e *Env) Colour(s pomdp.State) int { return e.cells[s] }

func (e *Env) IsTerminal(s pomdp.State) bool { return s == e.goal }

// Reset places the agent on a random non-goal cell. Grids built from the same
// config draw the same start sequence whatever happened in between.
func (e *Env) Reset() {
	s := pomdp.State(e.starts.Intn(len(e.cells) - 1))
	if s >= e.goal {
		s++
	}
	e.state = s
}

// Place puts the agent on s, e.g. to replay a known start.
func (e *Env) Place(s pomdp.State) error {
	if s < 0 || int(s) >= len(e.cells) {
		return fmt.Errorf("%w: cell %d not in grid", pomdp.ErrInvalidIndex, s)
	}
	e.state = s
	return nil
}

// Step moves the agent and reports the reward, the colour it sees and
// whether it reached the goal.
func (e *Env) Step(a pomdp.Action) (float64, pomdp.Observation, bool, error) {
	if a < Left || a > Bottom {
		return 0, 0, false, fmt.Errorf("%w: action %d", pomdp.ErrInvalidIndex, a)
	}
	reward := e.reward(e.state)
	next := e.state
	if !e.IsTerminal(e.state) && !(e.config.Slip > 0 && e.rng.Float64() < e.config.Slip) {
		next = e.move(e.state, a)
	}
	e.state = next

	z := e.cells[next]
	if e.config.Noise > 0 && e.rng.Float64() < e.config.Noise {
		other := e.rng.Intn(Colours) // Uniform over the other observations
		if other >= z {
			other++
		}
		z = other
	}
	return reward, pomdp.Observation(z), e.IsTerminal(next), nil
}

// move returns the cell a leads to from s. Walls keep the agent in place.
func (e *Env) move(s pomdp.State, a pomdp.Action) pomdp.State {
	x, y := int(s)%e.config.Width, int(s)/e.config.Width
	switch a {
	case Left:
		x--
	case Top:
		y--
	case Right:
		x++
	case Bottom:
		y++
	}
	if x < 0 || y < 0 || x >= e.config.Width || y >= e.config.Height {
		return s
	}
	return pomdp.State(y*e.config.Width + x)
}

func (e *Env) reward(s pomdp.State) float64 {
	if e.IsTerminal(s) {
		return 0
	}
	return -1
}
