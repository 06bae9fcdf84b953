package voice

import "sync/atomic"

// Stats counts speaker activity.
type Stats struct {
	Spoken        int64 `json:"spoken"`
	Dropped       int64 `json:"dropped"`
	SynthFailed   int64 `json:"synth_failed"`
	SinkFailed    int64 `json:"sink_failed"`
	LastLatencyMs int64 `json:"last_latency_ms"`
}

type counters struct {
	spoken      atomic.Int64
	dropped     atomic.Int64
	synthFailed atomic.Int64
	sinkFailed  atomic.Int64
	lastLatency atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Spoken:        c.spoken.Load(),
		Dropped:       c.dropped.Load(),
		SynthFailed:   c.synthFailed.Load(),
		SinkFailed:    c.sinkFailed.Load(),
		LastLatencyMs: c.lastLatency.Load(),
	}
}
