package orchestrator

import "sort"

// Strategy is spec §4.9's load-balancing advisory strategy name.
type Strategy string

const (
	LeastConnections Strategy = "least_connections"
	LeastLoad        Strategy = "least_load"
	PriorityAware    Strategy = "priority_aware"
	RoundRobin       Strategy = "round_robin"
)

// HighPriorityThreshold is the priority level at/above which
// PriorityAware routes to the least-loaded instance rather than the
// least-connected one (spec §4.9).
const HighPriorityThreshold = 8

// PeerInstance is one candidate target for SelectInstance; the
// orchestrator never moves traffic itself, this is advisory output for an
// external front door (spec §4.9).
type PeerInstance struct {
	ID          string
	Connections int
	Load        float64 // 0..1
}

// SelectionConfig carries the request attributes PriorityAware needs.
type SelectionConfig struct {
	Priority int
}

// roundRobinCounter is package-level because round_robin state is
// advisory and shared across all callers within a process.
var roundRobinCounter int

// SelectInstance implements spec §4.9's select_instance. Returns the empty
// string if peers is empty.
func SelectInstance(peers []PeerInstance, strategy Strategy, cfg SelectionConfig) string {
	if len(peers) == 0 {
		return ""
	}

	switch strategy {
	case LeastLoad:
		return leastLoad(peers)
	case PriorityAware:
		if cfg.Priority >= HighPriorityThreshold {
			return leastLoad(peers)
		}
		return leastConnections(peers)
	case RoundRobin:
		idx := roundRobinCounter % len(peers)
		roundRobinCounter++
		ordered := sortedByID(peers)
		return ordered[idx].ID
	default: // LeastConnections
		return leastConnections(peers)
	}
}

func leastConnections(peers []PeerInstance) string {
	best := peers[0]
	for _, p := range peers[1:] {
		if p.Connections < best.Connections {
			best = p
		}
	}
	return best.ID
}

func leastLoad(peers []PeerInstance) string {
	best := peers[0]
	for _, p := range peers[1:] {
		if p.Load < best.Load {
			best = p
		}
	}
	return best.ID
}

func sortedByID(peers []PeerInstance) []PeerInstance {
	ordered := make([]PeerInstance, len(peers))
	copy(ordered, peers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	return ordered
}
