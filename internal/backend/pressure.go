package backend

import (
	"sync"
	"time"
)

// PressureTracker derives MAIN's 0..1 "pressure" signal (spec §4.5, resolved
// in SPEC_FULL §C) from a bounded rolling window of recent execution
// latencies plus current in-flight count relative to the backend's
// configured connection cap. The Delegation Engine is the consumer that acts
// on it; the status command only prints it.
type PressureTracker struct {
	mu           sync.Mutex
	window       []time.Duration
	windowSize   int
	baseline     time.Duration
	inFlight     int
	connectionCap int
}

func NewPressureTracker(baseline time.Duration, connectionCap int) *PressureTracker {
	if baseline <= 0 {
		baseline = 2 * time.Second
	}
	if connectionCap <= 0 {
		connectionCap = 4
	}
	return &PressureTracker{
		windowSize:    20,
		baseline:      baseline,
		connectionCap: connectionCap,
	}
}

// BeginCall records the start of an in-flight MAIN call.
func (p *PressureTracker) BeginCall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight++
}

// EndCall records completion and the observed latency.
func (p *PressureTracker) EndCall(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight > 0 {
		p.inFlight--
	}
	p.window = append(p.window, latency)
	if len(p.window) > p.windowSize {
		p.window = p.window[len(p.window)-p.windowSize:]
	}
}

// Pressure returns a 0..1 scalar: half from recent-latency/baseline ratio,
// half from in-flight/connection-cap ratio, each clamped to [0,1] before
// averaging.
func (p *PressureTracker) Pressure() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	latencyComponent := 0.0
	if len(p.window) > 0 {
		var total time.Duration
		for _, d := range p.window {
			total += d
		}
		avg := total / time.Duration(len(p.window))
		latencyComponent = float64(avg) / float64(p.baseline)
	}

	loadComponent := float64(p.inFlight) / float64(p.connectionCap)

	return clamp01((clamp01(latencyComponent) + clamp01(loadComponent)) / 2)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
