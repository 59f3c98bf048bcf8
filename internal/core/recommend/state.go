package recommend

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/core"
)

// State is a step of the per-request state machine.
type State string

const (
	StateInit        State = "INIT"
	StateRateLookup  State = "RATE_LOOKUP"
	StateRouteLookup State = "ROUTE_LOOKUP"
	StateFareFanout  State = "FARE_FANOUT"
	StateScoreRank   State = "SCORE_RANK"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Transition records entry into a state.
type Transition struct {
	State  State     `json:"state"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

func (r *run) enter(state State, detail string) {
	r.mu.Lock()
	r.trace = append(r.trace, Transition{State: state, At: r.ctrl.now(), Detail: detail})
	r.mu.Unlock()
	r.logger.Debug("Recommendation state", zap.String("state", string(state)), zap.String("detail", detail))
}

// annotate appends detail to the current transition.
func (r *run) annotate(detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.trace) == 0 {
		return
	}
	last := &r.trace[len(r.trace)-1]
	if last.Detail == "" {
		last.Detail = detail
		return
	}
	last.Detail += "; " + detail
}

func (r *run) current() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.trace) == 0 {
		return StateInit
	}
	return r.trace[len(r.trace)-1].State
}

func (r *run) snapshotTrace() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.trace...)
}

func sortRoutesByPopularity(routes []core.Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Popularity != routes[j].Popularity {
			return routes[i].Popularity > routes[j].Popularity
		}
		return routes[i].Destination < routes[j].Destination
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
