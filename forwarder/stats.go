package forwarder

import "sync/atomic"

// Stats tracks delivery outcomes of a forwarder.
type Stats struct {
	emitted    atomic.Uint64
	published  atomic.Uint64
	dropped    atomic.Uint64
	failed     atomic.Uint64
	suppressed atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
//
// Emitted counts accepted Emit calls. Dropped counts records discarded because
// no channel was ready or the forwarder was closed. Failed counts declare,
// encode and publish errors. Suppressed counts diagnostics withheld by the
// diagnostic rate limit.
type StatsSnapshot struct {
	Emitted    uint64
	Published  uint64
	Dropped    uint64
	Failed     uint64
	Suppressed uint64
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Emitted:    s.emitted.Load(),
		Published:  s.published.Load(),
		Dropped:    s.dropped.Load(),
		Failed:     s.failed.Load(),
		Suppressed: s.suppressed.Load(),
	}
}
