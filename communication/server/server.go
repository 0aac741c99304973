package server

import (
	"net/http"
	"sync"

	"pomcp/communication"
	"pomcp/pomdp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Server hosts one environment. Starting an episode invalidates the previous
// one.
type Server struct {
	mu      sync.Mutex
	env     communication.Environment
	episode string
	steps   int
	done    bool
}

func New(env communication.Environment) *Server {
	return &Server{env: env}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/episodes", s.handleReset)
	router.POST("/step", s.handleStep)
	return router
}

func (s *Server) handleReset(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.env.Reset()
	s.episode = uuid.NewString()
	s.steps = 0
	s.done = false
	log.Info().Str("episode", s.episode).Msg("episode started")
	c.JSON(http.StatusCreated, communication.EpisodeResponse{Episode: s.episode})
}

func (s *Server) handleStep(c *gin.Context) {
	var req communication.StepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, communication.ErrorResponse{Error: "invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case req.Episode != s.episode:
		c.JSON(http.StatusNotFound, communication.ErrorResponse{Error: "unknown episode " + req.Episode})
		return
	case s.done:
		c.JSON(http.StatusConflict, communication.ErrorResponse{Error: "episode is done"})
		return
	}

	reward, z, done, err := s.env.Step(pomdp.Action(req.Action))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, communication.ErrorResponse{Error: err.Error()})
		return
	}
	s.steps++
	s.done = done
	log.Debug().Str("episode", s.episode).Int("step", s.steps).Int("action", req.Action).Msg("remote step")
	c.JSON(http.StatusOK, communication.StepResponse{
		Episode:     s.episode,
		Step:        s.steps,
		Reward:      reward,
		Observation: int(z),
		Done:        done,
	})
}
