package pool

import (
	"sort"
	"time"

	"github.com/Dicklesworthstone/missionctl/internal/mission"
)

// CycleResult is the outcome of one pass over the whole pool.
type CycleResult struct {
	Number   int
	Started  time.Time
	Finished time.Time
	Outcomes map[string]mission.Outcome
}

// Succeeded returns the identities whose mission completed, sorted by name.
func (r CycleResult) Succeeded() []string {
	return r.names(true)
}

// Failed returns every other identity, sorted by name.
func (r CycleResult) Failed() []string {
	return r.names(false)
}

func (r CycleResult) names(success bool) []string {
	names := make([]string, 0, len(r.Outcomes))
	for name, out := range r.Outcomes {
		if out.Success == success {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Duration returns how long the cycle took.
func (r CycleResult) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
