package grid

import (
	"fmt"

	"pomcp/pomdp"
)

// Model builds the dense tables of the grid's dynamics, matching the
// sampling in Step.
func (e *Env) Model() (*pomdp.Tables, error) {
	states := len(e.cells)
	tables, err := pomdp.NewTables(states, 4, Colours+1)
	if err != nil {
		return nil, err
	}

	for s := 0; s < states; s++ {
		state := pomdp.State(s)
		if err := tables.SetTerminal(state, e.IsTerminal(state)); err != nil {
			return nil, err
		}
		for a := Left; a <= Bottom; a++ {
			if err := tables.SetReward(state, a, e.reward(state)); err != nil {
				return nil, err
			}
			if e.IsTerminal(state) {
				err = tables.SetTransition(state, a, state, 1)
			} else {
				err = e.setMove(tables, state, a)
			}
			if err != nil {
				return nil, err
			}
			if err := e.setObservation(tables, a, state); err != nil {
				return nil, err
			}
		}
	}

	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("grid model: %w", err)
	}
	return tables, nil
}

func (e *Env) setMove(tables *pomdp.Tables, s pomdp.State, a pomdp.Action) error {
	next := e.move(s, a)
	if next == s {
		return tables.SetTransition(s, a, s, 1)
	}
	if err := tables.SetTransition(s, a, next, 1-e.config.Slip); err != nil {
		return err
	}
	return tables.SetTransition(s, a, s, e.config.Slip)
}

func (e *Env) setObservation(tables *pomdp.Tables, a pomdp.Action, next pomdp.State) error {
	colour := e.cells[next]
	wrong := e.config.Noise / Colours
	for z := 0; z <= Colours; z++ {
		p := wrong
		if z == colour {
			p = 1 - e.config.Noise
		}
		if err := tables.SetObservation(a, next, pomdp.Observation(z), p); err != nil {
			return err
		}
	}
	return nil
}
