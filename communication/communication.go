// Package communication carries environment steps over HTTP so the planner
// can act in a world hosted by another process.
package communication

import "pomcp/pomdp"

// Environment is a world that can be served: it steps like
// searcher.Environment and can start a new episode.
type Environment interface {
	Step(a pomdp.Action) (float64, pomdp.Observation, bool, error)
	Reset()
}

type EpisodeResponse struct {
	Episode string `json:"episode"`
}

type StepRequest struct {
	Episode string `json:"episode" binding:"required"`
	Action  int    `json:"action" binding:"min=0"`
}

type StepResponse struct {
	Episode     string  `json:"episode"`
	Step        int     `json:"step"`
	Reward      float64 `json:"reward"`
	Observation int     `json:"observation"`
	Done        bool    `json:"done"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
