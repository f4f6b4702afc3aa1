package poller

import (
	"time"

	"github.com/srg/blesoft/internal/extractor"
	"github.com/srg/blesoft/internal/session"
)

// Status describes the poller's view of its device.
type Status struct {
	Address             string              `json:"address"`
	State               session.State       `json:"state"`
	Breaker             string              `json:"breaker"`
	LastAttempt         time.Time           `json:"last_attempt"`
	LastSuccess         time.Time           `json:"last_success"`
	LastError           string              `json:"last_error,omitempty"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	Stale               bool                `json:"stale"`
	Snapshot            *extractor.Snapshot `json:"snapshot"`
	Stream              StreamStats         `json:"stream"`
}

// StreamStats describes the Updates stream. Overwritten counts snapshots a slow
// reader never saw.
type StreamStats struct {
	Sent        int64 `json:"sent"`
	Overwritten int64 `json:"overwritten"`
	Pending     int   `json:"pending"`
}

// Status returns a copy of the current status. The snapshot is stale when no poll
// has succeeded within StaleAfter.
func (p *Poller) Status() Status {
	p.mu.RLock()
	st := p.status
	p.mu.RUnlock()

	st.State = p.session.State()
	st.Breaker = p.breaker.State().String()
	stats := p.updates.Stats()
	st.Stream = StreamStats{Sent: stats.Written, Overwritten: stats.Overwritten, Pending: p.updates.Len()}
	st.Stale = st.LastSuccess.IsZero() || p.clock.Now().Sub(st.LastSuccess) > p.cfg.StaleAfter
	if st.Snapshot != nil {
		snap := *st.Snapshot
		st.Snapshot = &snap
	}
	return st
}
