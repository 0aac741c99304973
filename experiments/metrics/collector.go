package metrics

import (
	"sync/atomic"
	"time"
)

type SearchMetric struct {
	Goroutines   int
	Duration     time.Duration
	Episodes     int
	Horizon      int
	FullPlayouts int // Rollouts that reached a terminal state before the horizon
	IsTreeReset  bool
	TreeSize     int
}

type StepMetric struct {
	Step        int
	Action      int
	Observation int
	Reward      float64
	Confidence  float64 // Probability of the most likely state after the update
	SearchMetric
}

type EpisodeMetric struct {
	Steps       int
	Reached     bool // Whether the episode ended in a terminal state
	Return      float64
	Resets      int // Belief resets after degenerate updates
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Simulations int // Across every search of the episode
}

type Collector interface {
	Start(goroutines, horizon int)
	SetTreeReset(value bool)
	AddFullPlayout()
	AddEpisode()
	Complete(treeSize int) SearchMetric
}

type collector struct {
	goroutines   int
	horizon      int
	startTime    time.Time
	episodes     atomic.Int32
	fullPlayouts atomic.Int32
	isTreeReset  atomic.Bool
}

func NewCollector() Collector {
	return &collector{}
}

func (m *collector) SetTreeReset(value bool) {
	m.isTreeReset.Store(value)
}

func (m *collector) Start(goroutines, horizon int) {
	m.startTime = time.Now()
	m.goroutines = goroutines
	m.horizon = horizon
	m.episodes.Store(0)
	m.fullPlayouts.Store(0)
}

func (m *collector) AddFullPlayout() {
	m.fullPlayouts.Add(1)
}

func (m *collector) AddEpisode() {
	m.episodes.Add(1)
}

func (m *collector) Complete(treeSize int) SearchMetric {
	return SearchMetric{
		Goroutines:   m.goroutines,
		Duration:     time.Since(m.startTime),
		Episodes:     int(m.episodes.Load()),
		Horizon:      m.horizon,
		FullPlayouts: int(m.fullPlayouts.Load()),
		IsTreeReset:  m.isTreeReset.Load(),
		TreeSize:     treeSize,
	}
}

type dummyCollector struct{}

func NewDummyCollector() Collector {
	return &dummyCollector{}
}

func (m *dummyCollector) Start(goroutines, horizon int)      {}
func (m *dummyCollector) SetTreeReset(value bool)            {}
func (m *dummyCollector) AddFullPlayout()                    {}
func (m *dummyCollector) AddEpisode()                        {}
func (m *dummyCollector) Complete(treeSize int) SearchMetric { return SearchMetric{} }
