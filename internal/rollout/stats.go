package rollout

import "math"

// Outcome indicates how an episode ended
type Outcome int

const (
	OutcomeNone       Outcome = iota
	OutcomeTerminated         // the simulator ended the episode
	OutcomeTruncated          // the step cap was reached
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeTerminated:
		return "terminated"
	case OutcomeTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// EpisodeStats captures one finished episode of one environment
type EpisodeStats struct {
	Env     int
	Return  float64
	Length  int
	Outcome Outcome
}

// AggregatedStats holds statistics across episodes
type AggregatedStats struct {
	ReturnMean    float64
	ReturnStd     float64
	LengthMean    float64
	OutcomeCounts map[Outcome]int
	NumEpisodes   int
}

// Aggregate computes statistics from finished episodes
func Aggregate(episodes []EpisodeStats) AggregatedStats {
	n := len(episodes)
	if n == 0 {
		return AggregatedStats{OutcomeCounts: make(map[Outcome]int)}
	}

	agg := AggregatedStats{
		OutcomeCounts: make(map[Outcome]int),
		NumEpisodes:   n,
	}

	var returnSum, lengthSum float64
	for _, ep := range episodes {
		returnSum += ep.Return
		lengthSum += float64(ep.Length)
		agg.OutcomeCounts[ep.Outcome]++
	}

	nf := float64(n)
	agg.ReturnMean = returnSum / nf
	agg.LengthMean = lengthSum / nf

	var variance float64
	for _, ep := range episodes {
		diff := ep.Return - agg.ReturnMean
		variance += diff * diff
	}
	agg.ReturnStd = math.Sqrt(variance / nf)

	return agg
}
