package runstats

import "github.com/ethpandaops/releasekpi/pkg/artifact"

// Stats are the normalized execution counters of one run (or the sum of
// several runs). Every field is >= 0 and ExecutedCases is reconciled from
// the status counters and the total/untested counters.
type Stats struct {
	TotalCases    int64 `json:"total_cases"`
	ExecutedCases int64 `json:"executed_cases"`
	UntestedCases int64 `json:"untested_cases"`
	Passed        int64 `json:"passed"`
	Failed        int64 `json:"failed"`
	Blocked       int64 `json:"blocked"`
	Skipped       int64 `json:"skipped"`
	Retest        int64 `json:"retest"`
	Invalid       int64 `json:"invalid"`
	InProgress    int64 `json:"in_progress"`
}

// SumStatuses returns passed+failed+blocked+skipped+retest.
func (s Stats) SumStatuses() int64 {
	return s.Passed + s.Failed + s.Blocked + s.Skipped + s.Retest
}

// Normalize clamps raw counters to >= 0 and reconciles the executed count.
func Normalize(c artifact.Counters) Stats {
	s := Stats{
		TotalCases:    clamp(c.Total),
		UntestedCases: clamp(c.Untested),
		Passed:        clamp(c.Passed),
		Failed:        clamp(c.Failed),
		Blocked:       clamp(c.Blocked),
		Skipped:       clamp(c.Skipped),
		Retest:        clamp(c.Retest),
		Invalid:       clamp(c.Invalid),
		InProgress:    clamp(c.InProgress),
	}

	s.ExecutedCases = reconcileExecuted(s.TotalCases, s.UntestedCases, s.SumStatuses())

	return s
}

// reconcileExecuted picks the more conservative of the status sum and
// total-untested whenever the two disagree.
func reconcileExecuted(total, untested, sumStatuses int64) int64 {
	if total <= 0 {
		return sumStatuses
	}

	diff := clamp(total - clamp(untested))

	switch {
	case sumStatuses == 0 && diff > 0:
		return diff
	case sumStatuses > diff && diff > 0:
		return diff
	default:
		return sumStatuses
	}
}

// Sum adds several normalized records field by field.
func Sum(stats ...Stats) Stats {
	var out Stats

	for _, s := range stats {
		out.TotalCases += s.TotalCases
		out.ExecutedCases += s.ExecutedCases
		out.UntestedCases += s.UntestedCases
		out.Passed += s.Passed
		out.Failed += s.Failed
		out.Blocked += s.Blocked
		out.Skipped += s.Skipped
		out.Retest += s.Retest
		out.Invalid += s.Invalid
		out.InProgress += s.InProgress
	}

	return out
}

// NormalizeRuns normalizes each run and returns the sum.
func NormalizeRuns(runs []artifact.Run) Stats {
	stats := make([]Stats, 0, len(runs))
	for _, r := range runs {
		stats = append(stats, Normalize(r.Counters))
	}

	return Sum(stats...)
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}

	return v
}
